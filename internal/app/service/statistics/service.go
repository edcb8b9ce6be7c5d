package statistics

import (
	"context"
	"fmt"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/fx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/voxloop/trialguard/internal/models"
	"github.com/voxloop/trialguard/pkg/types"
)

// Statistic types exposed to the admin dashboard API.
type StatisticType string

const (
	StatisticTypeDailyNewTrials    StatisticType = "daily_new_trials"
	StatisticTypeStatusBreakdown   StatisticType = "status_breakdown"
	StatisticTypeDailyBlockedCount StatisticType = "daily_blocked_count"
	StatisticTypeConversionRate    StatisticType = "conversion_rate"
)

type TrialStatisticDataItem struct {
	ID StatisticType `json:"id"`
}

type TrialStatisticRequest struct {
	Filters   []*types.CommonFilter     `json:"filters"`
	DataItems []*TrialStatisticDataItem `json:"data_items"`
}

type TrialStatisticResponseDataItem struct {
	Date  string `json:"date,omitempty"`
	Label string `json:"label,omitempty"`
	Value int64  `json:"value"`
}

type TrialStatisticResponse struct {
	DataItems map[StatisticType][]TrialStatisticResponseDataItem `json:"data_items"`
}

// filtersAnd combines CommonFilters into one clause expression.
type filtersAnd struct{ filters []*types.CommonFilter }

func (w filtersAnd) Build(builder clause.Builder) {
	if len(w.filters) == 0 {
		builder.WriteString("1=1")
		return
	}
	for i, f := range w.filters {
		if i > 0 {
			builder.WriteString(" AND ")
		}
		f.Build(builder)
	}
}

// Service provides trial statistics and admin listing.
type Service struct {
	db *gorm.DB

	// resolve computes one data item; swappable in tests.
	resolve func(ctx context.Context, request *TrialStatisticRequest, dataItem *TrialStatisticDataItem) ([]TrialStatisticResponseDataItem, error)
}

func New(db *gorm.DB) *Service {
	s := &Service{db: db}
	s.resolve = s.getTrialStatistic
	return s
}

func (s *Service) getDailyNewTrials(ctx context.Context, request *TrialStatisticRequest) ([]TrialStatisticResponseDataItem, error) {
	var results []TrialStatisticResponseDataItem
	q := s.db.WithContext(ctx).Table((models.TrialUsage{}).TableName()).
		Select("TO_CHAR(created_at, 'YYYY-MM-DD') as date, count(*) as value").
		Where(clause.Where{Exprs: []clause.Expression{filtersAnd{filters: request.Filters}}}).
		Group("TO_CHAR(created_at, 'YYYY-MM-DD')").
		Order("date")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getStatusBreakdown(ctx context.Context, _ *TrialStatisticRequest) ([]TrialStatisticResponseDataItem, error) {
	var results []TrialStatisticResponseDataItem
	q := s.db.WithContext(ctx).Table((models.TrialUsage{}).TableName()).
		Select("status as label, count(*) as value").
		Group("status").
		Order("label")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getDailyBlockedCount(ctx context.Context, _ *TrialStatisticRequest) ([]TrialStatisticResponseDataItem, error) {
	var results []TrialStatisticResponseDataItem
	q := s.db.WithContext(ctx).Table((models.TrialUsage{}).TableName()).
		Select("TO_CHAR(blocked_email_date, 'YYYY-MM-DD') as date, count(*) as value").
		Where("blocked_email_date IS NOT NULL").
		Group("TO_CHAR(blocked_email_date, 'YYYY-MM-DD')").
		Order("date DESC")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getConversionRate(ctx context.Context, _ *TrialStatisticRequest) ([]TrialStatisticResponseDataItem, error) {
	var results []TrialStatisticResponseDataItem
	err := s.db.WithContext(ctx).Raw(`
SELECT 'conversion' as label,
       CASE WHEN COUNT(*) = 0 THEN 0
            ELSE CAST(ROUND(COUNT(*) FILTER (WHERE status = ?) * 10000.0 / COUNT(*), 0) AS INTEGER)
       END as value
FROM trial_usage
`, types.TrialStatusPaid).Scan(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getTrialStatistic(ctx context.Context, request *TrialStatisticRequest, dataItem *TrialStatisticDataItem) ([]TrialStatisticResponseDataItem, error) {
	switch dataItem.ID {
	case StatisticTypeDailyNewTrials:
		return s.getDailyNewTrials(ctx, request)
	case StatisticTypeStatusBreakdown:
		return s.getStatusBreakdown(ctx, request)
	case StatisticTypeDailyBlockedCount:
		return s.getDailyBlockedCount(ctx, request)
	case StatisticTypeConversionRate:
		return s.getConversionRate(ctx, request)
	default:
		return nil, fmt.Errorf("invalid data item id: %s", dataItem.ID)
	}
}

// GetTrialStatistic resolves all requested data items concurrently.
func (s *Service) GetTrialStatistic(ctx context.Context, request *TrialStatisticRequest) (*TrialStatisticResponse, error) {
	var wg sync.WaitGroup
	errChan := make(chan error, len(request.DataItems))
	resChan := make(chan *lo.Entry[StatisticType, []TrialStatisticResponseDataItem], len(request.DataItems))

	for _, item := range request.DataItems {
		wg.Add(1)
		go func(di *TrialStatisticDataItem) {
			defer wg.Done()
			res, err := s.resolve(ctx, request, di)
			if err != nil {
				errChan <- err
				return
			}
			resChan <- &lo.Entry[StatisticType, []TrialStatisticResponseDataItem]{Key: di.ID, Value: res}
		}(item)
	}

	wg.Wait()
	close(errChan)
	close(resChan)

	if err := <-errChan; err != nil {
		return nil, err
	}

	results := make(map[StatisticType][]TrialStatisticResponseDataItem)
	for entry := range resChan {
		results[entry.Key] = entry.Value
	}
	return &TrialStatisticResponse{DataItems: results}, nil
}

type ScanTrialsRequest struct {
	Filters   []*types.CommonFilter `json:"filters"`
	From      int                   `json:"from"`
	Size      int                   `json:"size"`
	SortBy    string                `json:"sort_by"`
	SortOrder string                `json:"sort_order"`
}

type ScanTrialsResponse struct {
	Items []*models.TrialUsage `json:"items"`
	Total int64                `json:"total"`
}

// ScanTrials implements paginated admin listing with filters.
func (s *Service) ScanTrials(ctx context.Context, req *ScanTrialsRequest) (*ScanTrialsResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}
	if req.Size <= 0 {
		req.Size = 10
	}
	if req.From < 0 {
		req.From = 0
	}
	sortBy := req.SortBy
	if sortBy == "" {
		sortBy = "created_at"
	}
	desc := req.SortOrder != "asc"

	tx := s.db.WithContext(ctx).Model(&models.TrialUsage{})
	if len(req.Filters) > 0 {
		tx = tx.Where(clause.Where{Exprs: []clause.Expression{filtersAnd{filters: req.Filters}}})
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count trials: %w", err)
	}

	var items []*models.TrialUsage
	err := tx.Order(clause.OrderByColumn{Column: clause.Column{Name: sortBy}, Desc: desc}).
		Offset(req.From).Limit(req.Size).
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to scan trials: %w", err)
	}
	return &ScanTrialsResponse{Items: items, Total: total}, nil
}

var Module = fx.Options(
	fx.Provide(New),
)
