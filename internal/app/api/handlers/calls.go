package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/voxloop/trialguard/internal/app/service/admission"
	"github.com/voxloop/trialguard/internal/platform/telnyx"
	"github.com/voxloop/trialguard/pkg/config"
	"github.com/voxloop/trialguard/pkg/response"
)

type PlaceCallRequest struct {
	To   string `json:"to" binding:"required"`
	From string `json:"from" binding:"required"`
}

type PlaceCallResponse struct {
	CallControlID string `json:"call_control_id"`
	CallSessionID string `json:"call_session_id"`
}

// @Summary      Place outbound call
// @Description  Places an outbound call through the provider. Every admitted call consumes one trial call.
// @Tags         Calls
// @Accept       json
// @Produce      json
// @Param        business_id path string true "Business id"
// @Param        request body handlers.PlaceCallRequest true "Call request"
// @Success      200  {object}  handlers.RespOK
// @Failure      402  {object}  map[string]any
// @Router       /api/v1/businesses/{business_id}/calls [post]
func ApiPlaceCall(guard *admission.Service, api telnyx.API, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		businessID := c.Param("business_id")
		var req PlaceCallRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}

		var out *telnyx.DialResponse
		err := guard.WrapExternalCall(c.Request.Context(), businessID, func(ctx context.Context) error {
			res, callErr := api.DialCall(ctx, telnyx.DialRequest{
				To:           req.To,
				From:         req.From,
				ConnectionID: cfg.Telnyx.ConnectionID,
			})
			if callErr != nil {
				return callErr
			}
			out = res
			return nil
		})
		if err != nil {
			var denied *admission.DeniedError
			if errors.As(err, &denied) {
				writeTrialDenied(c, denied.Result)
				return
			}
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(&PlaceCallResponse{
			CallControlID: out.CallControlID,
			CallSessionID: out.CallSessionID,
		}))
	}
}

// writeTrialDenied emits the 402 contract shared with the trial guard
// middleware so suspended callers see the same body either way.
func writeTrialDenied(c *gin.Context, res admission.TrialLimitsResult) {
	c.Header("X-Trial-Limit-Exceeded", "true")
	c.Header("X-Remaining-Calls", strconv.Itoa(res.RemainingCalls))
	c.Header("X-Remaining-Days", strconv.Itoa(res.RemainingDays))
	c.JSON(http.StatusPaymentRequired, gin.H{
		"error":          "Trial limit exceeded",
		"reason":         res.Reason,
		"remainingCalls": res.RemainingCalls,
		"remainingDays":  res.RemainingDays,
		"action":         "upgrade_required",
	})
}

func RegisterCallRoutes(r gin.IRouter, guard *admission.Service, api telnyx.API, cfg *config.Config) {
	r.POST("/businesses/:business_id/calls", ApiPlaceCall(guard, api, cfg))
}
