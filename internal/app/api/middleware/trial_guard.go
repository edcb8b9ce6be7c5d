package middleware

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/voxloop/trialguard/internal/app/service/admission"
)

// TrialAdmission is the admission decision the guard consumes.
type TrialAdmission interface {
	CheckTrialLimits(ctx context.Context, businessID string) admission.TrialLimitsResult
}

// businessIDFrom resolves the tenant being metered: route param first, then
// header, then query.
func businessIDFrom(c *gin.Context) string {
	if v := c.Param("business_id"); v != "" {
		return v
	}
	if v := c.GetHeader("X-Business-ID"); v != "" {
		return v
	}
	return c.Query("business_id")
}

// TrialGuardMiddleware denies requests for tenants whose trial is exhausted
// with a structured 402: machine-readable headers plus an upgrade hint in the
// body. Allowed requests pass through untouched. Verification failures deny
// (fail closed).
func TrialGuardMiddleware(adm TrialAdmission) gin.HandlerFunc {
	return func(c *gin.Context) {
		result := adm.CheckTrialLimits(c.Request.Context(), businessIDFrom(c))
		if result.Allowed {
			c.Next()
			return
		}

		c.Header("X-Trial-Limit-Exceeded", "true")
		c.Header("X-Remaining-Calls", strconv.Itoa(result.RemainingCalls))
		c.Header("X-Remaining-Days", strconv.Itoa(result.RemainingDays))
		c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{
			"error":          "Trial limit exceeded",
			"reason":         result.Reason,
			"remainingCalls": result.RemainingCalls,
			"remainingDays":  result.RemainingDays,
			"action":         "upgrade_required",
		})
	}
}
