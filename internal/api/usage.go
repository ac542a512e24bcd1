package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"modelhub_go_backend/internal/auth"
	"modelhub_go_backend/internal/errors"
	"modelhub_go_backend/internal/services"

	"github.com/gin-gonic/gin"
)

const defaultDailyWindow = 30

// parseDay reads a YYYY-MM-DD query parameter in the service timezone.
func parseDay(c *gin.Context, name string, loc *time.Location) (*time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	t, err := time.ParseInLocation("2006-01-02", raw, loc)
	if err != nil {
		errors.HandleError(c, errors.New400Error(fmt.Sprintf("%s must be a date in YYYY-MM-DD format", name)))
		return nil, false
	}
	return &t, true
}

func queryInt(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		errors.HandleError(c, errors.New400Error(fmt.Sprintf("%s must be a non-negative integer", name)))
		return 0, false
	}
	return n, true
}

func queryTrue(c *gin.Context, name string) bool {
	return strings.EqualFold(c.Query(name), "true")
}

func usageRecordsHandler(usage *services.UsageService) gin.HandlerFunc {
	return func(c *gin.Context) {
		clock := usage.Clock()
		from, ok := parseDay(c, "start_date", clock.Location())
		if !ok {
			return
		}
		to, ok := parseDay(c, "end_date", clock.Location())
		if !ok {
			return
		}
		limit, ok := queryInt(c, "limit", 50)
		if !ok {
			return
		}
		offset, ok := queryInt(c, "offset", 0)
		if !ok {
			return
		}

		f := services.RecordFilter{From: from, ModelID: c.Query("model"), Limit: limit, Offset: offset}
		if to != nil {
			_, end := clock.Day(*to)
			f.To = &end
		}
		if raw, present := c.GetQuery("success"); present {
			b := strings.EqualFold(raw, "true")
			f.Success = &b
		}

		recs, total, err := usage.Records(c.Request.Context(), auth.CurrentUser(c).ID, f)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"count": total, "results": recs})
	}
}

func dailyUsageHandler(usage *services.UsageService) gin.HandlerFunc {
	return func(c *gin.Context) {
		clock := usage.Clock()
		from, ok := parseDay(c, "start_date", clock.Location())
		if !ok {
			return
		}
		to, ok := parseDay(c, "end_date", clock.Location())
		if !ok {
			return
		}
		end := clock.Now()
		if to != nil {
			end = *to
		}
		start := end.AddDate(0, 0, -(defaultDailyWindow - 1))
		if from != nil {
			start = *from
		}
		if start.After(end) {
			errors.HandleError(c, errors.New400Error("start_date must not be after end_date"))
			return
		}

		days, err := usage.DailySummaries(c.Request.Context(), auth.CurrentUser(c).ID, start, end)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, days)
	}
}

func monthlyUsageHandler(usage *services.UsageService) gin.HandlerFunc {
	return func(c *gin.Context) {
		year, ok := queryInt(c, "year", usage.Clock().Now().In(usage.Clock().Location()).Year())
		if !ok {
			return
		}
		months, err := usage.MonthlySummaries(c.Request.Context(), auth.CurrentUser(c).ID, year)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, months)
	}
}

func alertsHandler(usage *services.UsageService) gin.HandlerFunc {
	return func(c *gin.Context) {
		alerts, err := usage.Alerts(c.Request.Context(), auth.CurrentUser(c).ID, queryTrue(c, "active_only"), queryTrue(c, "unread_only"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, alerts)
	}
}

func markAlertReadHandler(usage *services.UsageService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathUUID(c, "id")
		if !ok {
			return
		}
		if _, err := usage.MarkAlertRead(c.Request.Context(), auth.CurrentUser(c).ID, id); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Alert marked as read"})
	}
}

func dashboardHandler(usage *services.UsageService) gin.HandlerFunc {
	return func(c *gin.Context) {
		d, err := usage.Dashboard(c.Request.Context(), auth.CurrentUser(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, d)
	}
}

func statisticsHandler(usage *services.UsageService) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := usage.Statistics(c.Request.Context(), auth.CurrentUser(c).ID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, s)
	}
}

func quotasHandler(quota *services.QuotaService) gin.HandlerFunc {
	return func(c *gin.Context) {
		q, err := quota.Quotas(c.Request.Context(), auth.CurrentUser(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, q)
	}
}

func statementHandler(statements *services.StatementService, usage *services.UsageService) gin.HandlerFunc {
	return func(c *gin.Context) {
		now := usage.Clock().Now().In(usage.Clock().Location())
		year, ok := queryInt(c, "year", now.Year())
		if !ok {
			return
		}
		month, ok := queryInt(c, "month", int(now.Month()))
		if !ok {
			return
		}
		pdf, err := statements.Render(c.Request.Context(), auth.CurrentUser(c), year, time.Month(month))
		if err != nil {
			respondError(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="usage-%04d-%02d.pdf"`, year, month))
		c.Data(http.StatusOK, "application/pdf", pdf)
	}
}
