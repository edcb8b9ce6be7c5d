package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/voxloop/trialguard/internal/app/service/activitylog"
	"github.com/voxloop/trialguard/internal/app/service/blocking"
	cfgpkg "github.com/voxloop/trialguard/pkg/config"
	"github.com/voxloop/trialguard/pkg/types"
)

func webhookRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	log := zap.NewNop().Sugar()
	svc := blocking.NewService(&cfgpkg.Config{}, nil, nil, activitylog.New(nil, log), log)
	r := gin.New()
	RegisterWebhookRoutes(r.Group("/api/v1"), svc, log)
	return r
}

func postWebhook(t *testing.T, r *gin.Engine, url, body string) []types.VoiceAction {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, url, strings.NewReader(body))
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var actions []types.VoiceAction
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &actions))
	return actions
}

func TestBlockedCallWebhook_AnswersAndSpeaks(t *testing.T) {
	r := webhookRouter()
	body := `{"data": {"event_type": "call.initiated", "payload": {"call_control_id": "cc-1", "from": "+33600000001", "to": "+33100000001"}}}`

	actions := postWebhook(t, r, "/api/v1/webhooks/telnyx/blocked-call?reason=trial_calls_exhausted", body)
	require.Len(t, actions, 3)
	require.Equal(t, "answer", actions[0].Type)
	require.Equal(t, "speak", actions[1].Type)
	require.Contains(t, actions[1].Text, "période d'essai est terminée")
	require.Equal(t, "hangup", actions[2].Type)
}

func TestBlockedCallWebhook_MalformedBodyHangsUp(t *testing.T) {
	r := webhookRouter()

	actions := postWebhook(t, r, "/api/v1/webhooks/telnyx/blocked-call", "not json")
	require.Len(t, actions, 1)
	require.Equal(t, "hangup", actions[0].Type)
}

func TestBlockedCallWebhook_ProgressEventEmptyActions(t *testing.T) {
	r := webhookRouter()
	body := `{"data": {"event_type": "call.hangup"}}`

	actions := postWebhook(t, r, "/api/v1/webhooks/telnyx/blocked-call", body)
	require.Empty(t, actions)
}
