package app

import (
	"time"

	"github.com/voxloop/trialguard/internal/app/api/server"
	"github.com/voxloop/trialguard/internal/app/service/activitylog"
	"github.com/voxloop/trialguard/internal/app/service/admission"
	"github.com/voxloop/trialguard/internal/app/service/blocking"
	"github.com/voxloop/trialguard/internal/app/service/statistics"
	"github.com/voxloop/trialguard/internal/app/service/sweep"
	"github.com/voxloop/trialguard/internal/app/service/trial"
	"github.com/voxloop/trialguard/internal/platform/db"
	"github.com/voxloop/trialguard/internal/platform/email"
	"github.com/voxloop/trialguard/internal/platform/redis"
	"github.com/voxloop/trialguard/internal/platform/telnyx"
	"github.com/voxloop/trialguard/pkg/config"
	"github.com/voxloop/trialguard/pkg/logger"

	"go.uber.org/fx"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

var Module = fx.Options(
	logger.Module,
	config.Module,
	db.Module,
	redis.Module,
	telnyx.Module,
	email.Module,
	server.Module,
	activitylog.Module,
	trial.Module,
	blocking.Module,
	admission.Module,
	sweep.Module,
	statistics.Module,
)
