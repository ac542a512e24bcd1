package api

import (
	stdErrors "errors"

	"modelhub_go_backend/internal/errors"
	"modelhub_go_backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// respondError maps service errors onto the HTTP taxonomy. Ownership
// failures surface as 404 so callers cannot probe for other users' data.
func respondError(c *gin.Context, err error) {
	var (
		custom   *errors.CustomError
		quota    *services.QuotaError
		provider *services.ProviderError
		invalid  *services.ValidationError
	)
	switch {
	case stdErrors.As(err, &custom):
		errors.HandleError(c, custom)
	case stdErrors.As(err, &quota):
		errors.HandleError(c, errors.New429Error(quota.Reason))
	case stdErrors.As(err, &provider):
		errors.HandleError(c, errors.NewProviderError(provider.Message, err))
	case stdErrors.As(err, &invalid):
		errors.HandleError(c, errors.New400Error(invalid.Message))
	case stdErrors.Is(err, gorm.ErrRecordNotFound):
		errors.HandleError(c, errors.New404Error("Not found."))
	case stdErrors.Is(err, services.ErrInvalidCredentials):
		errors.HandleError(c, errors.New401Error(err.Error()))
	case stdErrors.Is(err, services.ErrUserExists):
		errors.HandleError(c, errors.New400Error(err.Error()))
	default:
		errors.HandleError(c, errors.New500Error(err))
	}
}

// pathUUID treats a malformed id like an unknown one.
func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		errors.HandleError(c, errors.New404Error("Not found."))
		return uuid.Nil, false
	}
	return id, true
}
