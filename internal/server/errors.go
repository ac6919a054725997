package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	campaigndomain "github.com/noxloop/digiforge/internal/campaign/domain"
	generationdomain "github.com/noxloop/digiforge/internal/generation/domain"
	"github.com/noxloop/digiforge/internal/guard"
	paymentsdomain "github.com/noxloop/digiforge/internal/payments/domain"
	"github.com/noxloop/digiforge/internal/plan"
	productdomain "github.com/noxloop/digiforge/internal/product/domain"
	workspacedomain "github.com/noxloop/digiforge/internal/workspace/domain"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInvalidRequest = errors.New("invalid_request")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, workspacedomain.ErrInsufficientCredit):
		return http.StatusPaymentRequired, errorPayload{
			Type:    "insufficient_credit",
			Message: err.Error(),
		}
	case errors.Is(err, guard.ErrRateLimited),
		errors.Is(err, guard.ErrLocked),
		errors.Is(err, guard.ErrAbuseCeiling):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: err.Error(),
		}
	case errors.Is(err, generationdomain.ErrUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "generation_unavailable",
			Message: "generation service unavailable",
		}
	case errors.Is(err, paymentsdomain.ErrProviderUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "provider_unavailable",
			Message: "payment provider unavailable",
		}
	case errors.Is(err, paymentsdomain.ErrInvalidSignature):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_signature",
			Message: "invalid webhook signature",
		}
	case errors.Is(err, paymentsdomain.ErrNotCompleted):
		return http.StatusBadRequest, errorPayload{
			Type:    "payment_not_completed",
			Message: err.Error(),
		}
	case errors.Is(err, paymentsdomain.ErrProviderDisabled):
		return http.StatusBadRequest, errorPayload{
			Type:    "provider_disabled",
			Message: "payment provider not configured",
		}
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, plan.ErrUnknownPlan),
		errors.Is(err, plan.ErrNotPurchasable),
		errors.Is(err, workspacedomain.ErrInvalidAmount):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_request",
			Message: err.Error(),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, workspacedomain.ErrNotFound),
		errors.Is(err, productdomain.ErrNotFound),
		errors.Is(err, campaigndomain.ErrNotFound),
		errors.Is(err, paymentsdomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}
