package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/voxloop/trialguard/internal/app/service/statistics"
	"github.com/voxloop/trialguard/internal/app/service/sweep"
	"github.com/voxloop/trialguard/internal/app/service/trial"
	"github.com/voxloop/trialguard/pkg/response"
)

// @Summary      Trial status
// @Description  Returns the current trial status for an identifier, creating the subject on first touch.
// @Tags         Admin
// @Produce      json
// @Param        identifier path string true "Trial identifier (business id)"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/admin/trials/{identifier}/status [get]
func ApiTrialStatus(engine *trial.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		identifier := c.Param("identifier")
		if identifier == "" {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "missing identifier"))
			return
		}
		status := engine.CheckStatus(c.Request.Context(), identifier)
		c.JSON(http.StatusOK, response.OKT(status))
	}
}

// @Summary      Scan trials
// @Description  Paginated, filterable listing of trial subjects.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body statistics.ScanTrialsRequest true "Scan request"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/admin/trials/scan [post]
func ApiScanTrials(stats *statistics.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req statistics.ScanTrialsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := stats.ScanTrials(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Trial statistics
// @Description  Resolves the requested statistic series for the admin dashboard.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body statistics.TrialStatisticRequest true "Statistic request"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/admin/trials/statistics [post]
func ApiTrialStatistics(stats *statistics.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req statistics.TrialStatisticRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := stats.GetTrialStatistic(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Run sweep
// @Description  Runs the full automated-email sweep synchronously and returns its stats.
// @Tags         Admin
// @Produce      json
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/admin/trials/sweep [post]
func ApiRunSweep(sweeper *sweep.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := sweeper.ProcessAutomatedEmails(c.Request.Context())
		c.JSON(http.StatusOK, response.OKT(stats))
	}
}

// @Summary      Sweep schedule
// @Description  Returns the adaptive schedule decision for the next sweep run.
// @Tags         Admin
// @Produce      json
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/admin/trials/schedule [get]
func ApiSweepSchedule(sweeper *sweep.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, response.OKT(sweeper.GetProcessingSchedule(c.Request.Context())))
	}
}

// @Summary      Activate paid plan
// @Description  Upgrades all suspended trial subjects of a business and unblocks its numbers.
// @Tags         Admin
// @Produce      json
// @Param        business_id path string true "Business id"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/admin/businesses/{business_id}/activate-paid [post]
func ApiActivatePaidPlan(engine *trial.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		businessID := c.Param("business_id")
		if businessID == "" {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "missing business_id"))
			return
		}
		if err := engine.ActivatePaidPlan(c.Request.Context(), businessID); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT[any](nil))
	}
}

func RegisterAdminTrialRoutes(r gin.IRouter, engine *trial.Service, sweeper *sweep.Service, stats *statistics.Service) {
	r.GET("/trials/:identifier/status", ApiTrialStatus(engine))
	r.POST("/trials/scan", ApiScanTrials(stats))
	r.POST("/trials/statistics", ApiTrialStatistics(stats))
	r.POST("/trials/sweep", ApiRunSweep(sweeper))
	r.GET("/trials/schedule", ApiSweepSchedule(sweeper))
	r.POST("/businesses/:business_id/activate-paid", ApiActivatePaidPlan(engine))
}
