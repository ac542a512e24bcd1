package api

import (
	"net/http"

	"modelhub_go_backend/internal/services"

	"github.com/gin-gonic/gin"
)

func listProvidersHandler(catalog services.CatalogServiceDB) gin.HandlerFunc {
	return func(c *gin.Context) {
		providers, err := catalog.ListProviders(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, providers)
	}
}

// Flag parameters only need to be present, matching the marketplace frontend.
func listModelsHandler(catalog services.CatalogServiceDB) gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := services.ModelFilter{
			Category:          c.Query("category"),
			Provider:          c.Query("provider"),
			SupportsFunctions: c.Query("supports_functions") != "",
			SupportsVision:    c.Query("supports_vision") != "",
			Featured:          c.Query("featured") != "",
			Search:            c.Query("search"),
		}
		list, err := catalog.ListModels(c.Request.Context(), filter)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

func getModelHandler(catalog services.CatalogServiceDB) gin.HandlerFunc {
	return func(c *gin.Context) {
		modelID := c.Param("vendor")
		if name := c.Param("name"); name != "" {
			modelID += "/" + name
		}
		m, err := catalog.GetActiveModel(c.Request.Context(), modelID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, m)
	}
}

func categoriesHandler(catalog services.CatalogServiceDB) gin.HandlerFunc {
	return func(c *gin.Context) {
		cats, err := catalog.Categories(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"categories": cats})
	}
}

func featuredHandler(catalog services.CatalogServiceDB) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := catalog.Featured(c.Request.Context(), services.FeaturedModelLimit)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"featured_models": list})
	}
}

func catalogStatsHandler(catalog services.CatalogServiceDB) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := catalog.Stats(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}
