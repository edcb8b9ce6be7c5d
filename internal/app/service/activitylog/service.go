package activitylog

import (
	"context"
	"encoding/json"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/voxloop/trialguard/internal/models"
	"github.com/voxloop/trialguard/pkg/logctx"
	"github.com/voxloop/trialguard/pkg/tool"
)

type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func New(db *gorm.DB, log *zap.SugaredLogger) *Service { return &Service{db: db, log: log} }

// Record asynchronously persists an activity log entry. The payload is
// marshalled best-effort; a failed write is logged and dropped, auditing must
// never slow down or fail the calling path.
func (s *Service) Record(ctx context.Context, category, businessID string, payload any) {
	if s.db == nil {
		return
	}
	go func() {
		raw, err := json.Marshal(payload)
		if err != nil {
			logctx.FromCtx(ctx, s.log).Errorf("failed to marshal activity payload: %v", err)
			raw = []byte("{}")
		}
		entry := &models.ActivityLog{
			ID:         tool.GenerateUUIDV7(),
			Category:   category,
			BusinessID: businessID,
			Payload:    datatypes.JSON(raw),
		}
		if err := s.db.Create(entry).Error; err != nil {
			logctx.FromCtx(ctx, s.log).Errorf("failed to save activity log: %v", err)
		}
	}()
}

var Module = fx.Options(
	fx.Provide(New),
)
