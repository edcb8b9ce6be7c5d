package handlers

import (
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func routeSet(r *gin.Engine) map[string]bool {
	set := map[string]bool{}
	for _, rt := range r.Routes() {
		set[rt.Method+" "+rt.Path] = true
	}
	return set
}

func TestRegisterAdminTrialRoutes_RegistersEndpoints(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterAdminTrialRoutes(r.Group("/api/v1/admin"), nil, nil, nil)

	routes := routeSet(r)
	require.True(t, routes["GET /api/v1/admin/trials/:identifier/status"])
	require.True(t, routes["POST /api/v1/admin/trials/scan"])
	require.True(t, routes["POST /api/v1/admin/trials/statistics"])
	require.True(t, routes["POST /api/v1/admin/trials/sweep"])
	require.True(t, routes["GET /api/v1/admin/trials/schedule"])
	require.True(t, routes["POST /api/v1/admin/businesses/:business_id/activate-paid"])
}

func TestRegisterCallRoutes_RegistersEndpoints(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterCallRoutes(r.Group("/api/v1"), nil, nil, nil)

	require.True(t, routeSet(r)["POST /api/v1/businesses/:business_id/calls"])
}

func TestRegisterWebhookRoutes_RegistersEndpoints(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterWebhookRoutes(r.Group("/api/v1"), nil, nil)

	require.True(t, routeSet(r)["POST /api/v1/webhooks/telnyx/blocked-call"])
}
