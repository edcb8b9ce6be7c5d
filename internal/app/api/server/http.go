package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/voxloop/trialguard/docs"
	"github.com/voxloop/trialguard/internal/app/api/handlers"
	"github.com/voxloop/trialguard/internal/app/service/admission"
	"github.com/voxloop/trialguard/internal/app/service/blocking"
	"github.com/voxloop/trialguard/internal/app/service/statistics"
	"github.com/voxloop/trialguard/internal/app/service/sweep"
	"github.com/voxloop/trialguard/internal/app/service/trial"
	"github.com/voxloop/trialguard/internal/platform/telnyx"
	cfgpkg "github.com/voxloop/trialguard/pkg/config"

	mw "github.com/voxloop/trialguard/internal/app/api/middleware"

	metrics "github.com/voxloop/trialguard/pkg/metrics"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func newEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	// Add request tracing middleware only; request logger & access log are attached per group in registerRoutes
	r.Use(mw.TraceMiddleware())
	return r
}

type routeDeps struct {
	fx.In

	Log       *zap.SugaredLogger
	Cfg       *cfgpkg.Config
	Trial     *trial.Service
	Blocking  *blocking.Service
	Admission *admission.Service
	Sweep     *sweep.Service
	Stats     *statistics.Service
	Telnyx    telnyx.API
}

func registerRoutes(r *gin.Engine, d routeDeps) {
	// Prometheus metrics
	if d.Cfg != nil && d.Cfg.MetricsAddr != "" {
		p := metrics.NewPrometheus(metrics.NewPrometheusOptions{
			ReqCntURLLabelMappingFn: func(c *gin.Context) string {
				if fp := c.FullPath(); fp != "" {
					return fp
				}
				return c.Request.URL.Path
			},
			Logger: d.Log,
		})
		p.SetListenAddress(d.Cfg.MetricsAddr)
		p.Use(r)

		d.Log.Infow("metrics started", "addr", d.Cfg.MetricsAddr)
	}
	// Public group: request logger + access log
	pub := r.Group("/")
	pub.Use(mw.RequestLoggerMiddleware(d.Log), mw.AccessLogMiddleware())
	handlers.RegisterHealthRoutes(pub)
	// Swagger UI
	docs.SwaggerInfo.BasePath = "/"
	pub.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	apiV1 := r.Group("/api/v1")
	apiV1.Use(mw.RequestLoggerMiddleware(d.Log), mw.AccessLogMiddleware())

	// Telephony webhooks: no trial guard, blocked numbers must still answer.
	handlers.RegisterWebhookRoutes(apiV1, d.Blocking, d.Log)

	// Metered call APIs behind the trial guard.
	calls := apiV1.Group("/")
	calls.Use(mw.TrialGuardMiddleware(d.Admission))
	handlers.RegisterCallRoutes(calls, d.Admission, d.Telnyx, d.Cfg)

	// Admin APIs
	admin := apiV1.Group("/admin")
	admin.Use(mw.AdminAuthMiddleware(d.Cfg))
	handlers.RegisterAdminTrialRoutes(admin, d.Trial, d.Sweep, d.Stats)
}

func runServer(lc fx.Lifecycle, log *zap.SugaredLogger, cfg *cfgpkg.Config, r *gin.Engine) {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting HTTP server", "addr", addr)
			go func() {
				if err := srv.ListenAndServe(); err != nil {
					log.Errorf("server error: %v", err)
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("stopping HTTP server")
			shutdownCtx, cancel := context.WithTimeout(ctx, 120*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

var Module = fx.Options(
	fx.Provide(newEngine),
	fx.Invoke(registerRoutes),
	fx.Invoke(runServer),
)
