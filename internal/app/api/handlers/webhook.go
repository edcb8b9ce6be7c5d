package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/voxloop/trialguard/internal/app/service/blocking"
	"github.com/voxloop/trialguard/internal/platform/telnyx"
	"github.com/voxloop/trialguard/pkg/logctx"
	"github.com/voxloop/trialguard/pkg/types"
)

// @Summary      Blocked-call webhook
// @Description  Receives Telnyx call events for blocked numbers and returns the voice actions to execute.
// @Tags         Webhook
// @Accept       json
// @Produce      json
// @Param        reason query string false "Block reason"
// @Success      200  {array}  types.VoiceAction
// @Router       /api/v1/webhooks/telnyx/blocked-call [post]
func ApiBlockedCallWebhook(svc *blocking.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		reason := types.BlockReason(c.Query("reason"))
		if reason == "" {
			reason = types.BlockReasonManual
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			logctx.FromCtx(ctx, log).Warnw("blocked call webhook body read failed", "error", err)
			c.JSON(http.StatusOK, []types.VoiceAction{types.VoiceHangup()})
			return
		}

		event, err := telnyx.ParseCallEvent(body)
		if err != nil {
			logctx.FromCtx(ctx, log).Warnw("blocked call webhook decode failed", "error", err)
			c.JSON(http.StatusOK, []types.VoiceAction{types.VoiceHangup()})
			return
		}

		actions := svc.HandleBlockedCall(ctx, event, reason)
		if actions == nil {
			actions = []types.VoiceAction{}
		}
		c.JSON(http.StatusOK, actions)
	}
}

func RegisterWebhookRoutes(r gin.IRouter, svc *blocking.Service, log *zap.SugaredLogger) {
	r.POST("/webhooks/telnyx/blocked-call", ApiBlockedCallWebhook(svc, log))
}
