package trial

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/voxloop/trialguard/internal/models"
	"github.com/voxloop/trialguard/internal/platform/email"
	cfgpkg "github.com/voxloop/trialguard/pkg/config"
	"github.com/voxloop/trialguard/pkg/types"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeStore struct {
	subjects   map[string]*models.TrialUsage
	businesses map[string]*models.Business

	createErr    error
	raceWinner   *models.TrialUsage
	incrementErr error
	updateErr    error
	updateCount  int
	paidBusiness string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		subjects:   map[string]*models.TrialUsage{},
		businesses: map[string]*models.Business{},
	}
}

func (f *fakeStore) GetByIdentifier(_ context.Context, identifier string) (*models.TrialUsage, error) {
	subject, ok := f.subjects[identifier]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *subject
	return &copied, nil
}

func (f *fakeStore) Create(_ context.Context, subject *models.TrialUsage) error {
	if f.createErr != nil {
		if f.raceWinner != nil {
			f.subjects[f.raceWinner.Identifier] = f.raceWinner
		}
		return f.createErr
	}
	f.subjects[subject.Identifier] = subject
	return nil
}

func (f *fakeStore) Update(_ context.Context, identifier string, fields map[string]any) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	subject, ok := f.subjects[identifier]
	if !ok {
		return errors.New("trial subject not found: " + identifier)
	}
	f.updateCount++
	applyFields(subject, fields)
	return nil
}

func (f *fakeStore) IncrementUsage(_ context.Context, identifier string, now time.Time) (bool, error) {
	if f.incrementErr != nil {
		return false, f.incrementErr
	}
	subject, ok := f.subjects[identifier]
	if !ok || subject.CallsRemaining <= 0 {
		return false, nil
	}
	subject.CallsUsed++
	subject.CallsRemaining--
	subject.LastCallDate = &now
	subject.LastActivityDate = &now
	return true, nil
}

func (f *fakeStore) GetBusiness(_ context.Context, businessID string) (*models.Business, error) {
	business, ok := f.businesses[businessID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return business, nil
}

func (f *fakeStore) ListWarningCandidates(_ context.Context, warningCallsUsed, warningDaysRemaining int, now time.Time) ([]*models.TrialUsage, error) {
	var out []*models.TrialUsage
	warningEnd := now.Add(time.Duration(warningDaysRemaining) * 24 * time.Hour)
	for _, s := range f.subjects {
		if s.Status != types.TrialStatusActive || s.WarningEmailSent {
			continue
		}
		if s.CallsUsed >= warningCallsUsed || !s.TrialEndDate.After(warningEnd) ||
			(s.CallsRemaining <= 2 && s.CallsUsed >= 5) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) ListBlockingCandidates(_ context.Context, now time.Time) ([]*models.TrialUsage, error) {
	var out []*models.TrialUsage
	for _, s := range f.subjects {
		if s.IsBlocked || (s.Status != types.TrialStatusActive && s.Status != types.TrialStatusWarned) {
			continue
		}
		if s.CallsRemaining <= 0 || !s.TrialEndDate.After(now) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) ListDeletionWarningCandidates(_ context.Context, blockedBefore time.Time) ([]*models.TrialUsage, error) {
	var out []*models.TrialUsage
	for _, s := range f.subjects {
		if s.Status != types.TrialStatusBlocked || s.DeletionWarningEmailSent {
			continue
		}
		if s.BlockedEmailDate != nil && !s.BlockedEmailDate.After(blockedBefore) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) ListDeletionDue(_ context.Context, now time.Time) ([]*models.TrialUsage, error) {
	var out []*models.TrialUsage
	for _, s := range f.subjects {
		if s.Status != types.TrialStatusBlocked && s.Status != types.TrialStatusPendingDeletion {
			continue
		}
		if s.ScheduledDeletionDate != nil && !s.ScheduledDeletionDate.After(now) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) CountCritical(_ context.Context, now time.Time) (int64, error) {
	var count int64
	criticalEnd := now.Add(24 * time.Hour)
	for _, s := range f.subjects {
		if s.Status != types.TrialStatusActive {
			continue
		}
		if s.CallsRemaining <= 2 || !s.TrialEndDate.After(criticalEnd) {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) CountExpiredUnblocked(_ context.Context, now time.Time) (int64, error) {
	var count int64
	for _, s := range f.subjects {
		if s.IsBlocked || s.Status == types.TrialStatusDeleted || s.Status == types.TrialStatusPaid {
			continue
		}
		if s.CallsRemaining <= 0 || !s.TrialEndDate.After(now) {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) MarkPaidForBusiness(_ context.Context, businessID string) (int64, error) {
	f.paidBusiness = businessID
	var updated int64
	for _, s := range f.subjects {
		if s.BusinessID != businessID {
			continue
		}
		if s.Status != types.TrialStatusBlocked && s.Status != types.TrialStatusPendingDeletion {
			continue
		}
		s.Status = types.TrialStatusPaid
		s.IsBlocked = false
		s.BlockReason = nil
		s.ScheduledDeletionDate = nil
		updated++
	}
	return updated, nil
}

func applyFields(subject *models.TrialUsage, fields map[string]any) {
	for k, v := range fields {
		switch k {
		case "days_remaining":
			subject.DaysRemaining = v.(int)
		case "days_used":
			subject.DaysUsed = v.(int)
		case "status":
			subject.Status = v.(types.TrialStatus)
		case "is_blocked":
			subject.IsBlocked = v.(bool)
		case "block_reason":
			if v == nil {
				subject.BlockReason = nil
			} else {
				r := v.(string)
				subject.BlockReason = &r
			}
		case "scheduled_deletion_date":
			if v == nil {
				subject.ScheduledDeletionDate = nil
			} else {
				t := v.(time.Time)
				subject.ScheduledDeletionDate = &t
			}
		case "warning_email_sent":
			subject.WarningEmailSent = v.(bool)
		case "warning_email_date":
			t := v.(time.Time)
			subject.WarningEmailDate = &t
		case "blocked_email_sent":
			subject.BlockedEmailSent = v.(bool)
		case "blocked_email_date":
			t := v.(time.Time)
			subject.BlockedEmailDate = &t
		case "deletion_warning_email_sent":
			subject.DeletionWarningEmailSent = v.(bool)
		case "deletion_warning_email_date":
			t := v.(time.Time)
			subject.DeletionWarningEmailDate = &t
		case "deletion_email_sent":
			subject.DeletionEmailSent = v.(bool)
		case "deletion_email_date":
			t := v.(time.Time)
			subject.DeletionEmailDate = &t
		}
	}
}

type fakeNotifier struct {
	welcome          []email.TrialPayload
	warnings         []email.TrialPayload
	blocked          []email.TrialPayload
	deletionWarnings []email.TrialPayload
	deleted          []email.TrialPayload

	failWarning         bool
	failBlocked         bool
	failDeletionWarning bool
	failDeleted         bool
}

func (f *fakeNotifier) SendWelcome(_ context.Context, p email.TrialPayload) error {
	f.welcome = append(f.welcome, p)
	return nil
}

func (f *fakeNotifier) SendTrialWarning(_ context.Context, p email.TrialPayload) error {
	if f.failWarning {
		return errors.New("smtp unavailable")
	}
	f.warnings = append(f.warnings, p)
	return nil
}

func (f *fakeNotifier) SendTrialBlocked(_ context.Context, p email.TrialPayload) error {
	if f.failBlocked {
		return errors.New("smtp unavailable")
	}
	f.blocked = append(f.blocked, p)
	return nil
}

func (f *fakeNotifier) SendDeletionWarning(_ context.Context, p email.TrialPayload) error {
	if f.failDeletionWarning {
		return errors.New("smtp unavailable")
	}
	f.deletionWarnings = append(f.deletionWarnings, p)
	return nil
}

func (f *fakeNotifier) SendAccountDeleted(_ context.Context, p email.TrialPayload) error {
	if f.failDeleted {
		return errors.New("smtp unavailable")
	}
	f.deleted = append(f.deleted, p)
	return nil
}

type fakeBlocker struct {
	blocked    []string
	reasons    []types.BlockReason
	unblocked  []string
	blockErr   error
	unblockErr error
}

func (f *fakeBlocker) Block(_ context.Context, businessID string, reason types.BlockReason) error {
	if f.blockErr != nil {
		return f.blockErr
	}
	f.blocked = append(f.blocked, businessID)
	f.reasons = append(f.reasons, reason)
	return nil
}

func (f *fakeBlocker) Unblock(_ context.Context, businessID string) error {
	if f.unblockErr != nil {
		return f.unblockErr
	}
	f.unblocked = append(f.unblocked, businessID)
	return nil
}

func testConfig() *cfgpkg.Config {
	return &cfgpkg.Config{
		Trial: cfgpkg.TrialConfig{
			CallsLimit:           10,
			DaysLimit:            15,
			WarningCallsUsed:     8,
			WarningDaysRemaining: 3,
			DeletionGraceDays:    5,
			DeletionWarningDays:  3,
		},
	}
}

func newTestService() (*Service, *fakeStore, *fakeNotifier, *fakeBlocker) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	blocker := &fakeBlocker{}
	svc := NewService(testConfig(), store, notifier, blocker, zap.NewNop().Sugar())
	svc.now = func() time.Time { return testNow }
	return svc, store, notifier, blocker
}

func seedSubject(store *fakeStore, subject *models.TrialUsage) *models.TrialUsage {
	store.subjects[subject.Identifier] = subject
	if _, ok := store.businesses[subject.BusinessID]; !ok {
		store.businesses[subject.BusinessID] = &models.Business{
			ID:         subject.BusinessID,
			Name:       "Salon Lumière",
			OwnerName:  "Claire",
			OwnerEmail: "claire@example.com",
		}
	}
	return subject
}

func activeSubject(identifier string) *models.TrialUsage {
	return &models.TrialUsage{
		ID:             "01890000-0000-7000-8000-000000000001",
		Identifier:     identifier,
		IdentifierType: types.TrialIdentifierTypeBusiness,
		BusinessID:     identifier,
		CallsUsed:      3,
		CallsRemaining: 7,
		CallsLimit:     10,
		DaysUsed:       5,
		DaysRemaining:  10,
		DaysLimit:      15,
		TrialEndDate:   testNow.Add(10 * 24 * time.Hour),
		Status:         types.TrialStatusActive,
	}
}

func TestGetOrCreate_FirstTouchDefaults(t *testing.T) {
	svc, store, notifier, _ := newTestService()
	store.businesses["biz-1"] = &models.Business{ID: "biz-1", Name: "Biz", OwnerEmail: "o@example.com"}

	subject, err := svc.GetOrCreate(context.Background(), "biz-1", types.TrialIdentifierTypeBusiness, "biz-1")
	require.NoError(t, err)
	require.Equal(t, 10, subject.CallsRemaining)
	require.Equal(t, 10, subject.CallsLimit)
	require.Equal(t, 0, subject.CallsUsed)
	require.Equal(t, 15, subject.DaysRemaining)
	require.Equal(t, types.TrialStatusActive, subject.Status)
	require.Equal(t, testNow.Add(15*24*time.Hour), subject.TrialEndDate)
	require.NotEmpty(t, subject.ID)
	require.Len(t, notifier.welcome, 1)
}

func TestGetOrCreate_ExistingRowWins(t *testing.T) {
	svc, store, notifier, _ := newTestService()
	seeded := seedSubject(store, activeSubject("biz-1"))

	subject, err := svc.GetOrCreate(context.Background(), "biz-1", types.TrialIdentifierTypeBusiness, "biz-1")
	require.NoError(t, err)
	require.Equal(t, seeded.CallsUsed, subject.CallsUsed)
	require.Empty(t, notifier.welcome)
}

func TestGetOrCreate_CreateRaceReadsWinner(t *testing.T) {
	svc, store, notifier, _ := newTestService()
	winner := activeSubject("biz-1")
	winner.CallsUsed = 1
	store.createErr = errors.New("duplicate key value violates unique constraint")
	store.raceWinner = winner

	subject, err := svc.GetOrCreate(context.Background(), "biz-1", types.TrialIdentifierTypeBusiness, "biz-1")
	require.NoError(t, err)
	require.Equal(t, 1, subject.CallsUsed)
	require.Empty(t, notifier.welcome)
}

func TestCheckStatus_ActiveAllows(t *testing.T) {
	svc, store, _, _ := newTestService()
	seedSubject(store, activeSubject("biz-1"))

	status := svc.CheckStatus(context.Background(), "biz-1")
	require.True(t, status.CanMakeCall)
	require.Equal(t, 7, status.CallsRemaining)
	require.Equal(t, 10, status.DaysRemaining)
	require.Empty(t, status.BlockReason)
}

func TestCheckStatus_PaidAlwaysAllows(t *testing.T) {
	svc, store, _, _ := newTestService()
	subject := activeSubject("biz-1")
	subject.Status = types.TrialStatusPaid
	subject.IsBlocked = true
	subject.CallsRemaining = 0
	seedSubject(store, subject)

	status := svc.CheckStatus(context.Background(), "biz-1")
	require.True(t, status.CanMakeCall)
}

func TestCheckStatus_BlockedFlagWinsOverRecomputedCause(t *testing.T) {
	svc, store, _, _ := newTestService()
	subject := activeSubject("biz-1")
	subject.IsBlocked = true
	subject.Status = types.TrialStatusBlocked
	reason := types.BlockReasonTextCallLimit
	subject.BlockReason = &reason
	seedSubject(store, subject)

	status := svc.CheckStatus(context.Background(), "biz-1")
	require.False(t, status.CanMakeCall)
	require.Equal(t, types.BlockReasonTextCallLimit, status.BlockReason)
}

func TestCheckStatus_ExpiryCheckedBeforeCallExhaustion(t *testing.T) {
	svc, store, _, _ := newTestService()
	subject := activeSubject("biz-1")
	subject.CallsRemaining = 0
	subject.TrialEndDate = testNow.Add(-time.Hour)
	seedSubject(store, subject)

	status := svc.CheckStatus(context.Background(), "biz-1")
	require.False(t, status.CanMakeCall)
	require.Equal(t, types.BlockReasonTextExpired, status.BlockReason)
}

func TestCheckStatus_CallLimitReached(t *testing.T) {
	svc, store, _, _ := newTestService()
	subject := activeSubject("biz-1")
	subject.CallsRemaining = 0
	seedSubject(store, subject)

	status := svc.CheckStatus(context.Background(), "biz-1")
	require.False(t, status.CanMakeCall)
	require.Equal(t, types.BlockReasonTextCallLimit, status.BlockReason)
}

func TestCheckStatus_PersistsDaysOnlyWhenMoved(t *testing.T) {
	svc, store, _, _ := newTestService()
	subject := activeSubject("biz-1")
	subject.DaysRemaining = 12
	seedSubject(store, subject)

	svc.CheckStatus(context.Background(), "biz-1")
	require.Equal(t, 1, store.updateCount)
	require.Equal(t, 10, store.subjects["biz-1"].DaysRemaining)
	require.Equal(t, 5, store.subjects["biz-1"].DaysUsed)

	svc.CheckStatus(context.Background(), "biz-1")
	require.Equal(t, 1, store.updateCount)
}

func TestRecordUsage_ConsumesOneCall(t *testing.T) {
	svc, store, _, _ := newTestService()
	seedSubject(store, activeSubject("biz-1"))

	require.True(t, svc.RecordUsage(context.Background(), "biz-1"))
	subject := store.subjects["biz-1"]
	require.Equal(t, 4, subject.CallsUsed)
	require.Equal(t, 6, subject.CallsRemaining)
	require.NotNil(t, subject.LastCallDate)
}

func TestRecordUsage_PaidSubjectNotMetered(t *testing.T) {
	svc, store, _, _ := newTestService()
	subject := activeSubject("biz-1")
	subject.Status = types.TrialStatusPaid
	subject.CallsUsed = 10
	subject.CallsRemaining = 0
	seedSubject(store, subject)

	require.True(t, svc.RecordUsage(context.Background(), "biz-1"))
	require.Equal(t, 10, store.subjects["biz-1"].CallsUsed)
	require.Equal(t, 0, store.subjects["biz-1"].CallsRemaining)
	require.Nil(t, store.subjects["biz-1"].LastCallDate)
}

func TestRecordUsage_DeniedSubjectLosesNoQuota(t *testing.T) {
	svc, store, _, _ := newTestService()
	subject := activeSubject("biz-1")
	subject.IsBlocked = true
	subject.Status = types.TrialStatusBlocked
	seedSubject(store, subject)

	require.False(t, svc.RecordUsage(context.Background(), "biz-1"))
	require.Equal(t, 3, store.subjects["biz-1"].CallsUsed)
}

func TestRecordUsage_CrossingCallFiresWarning(t *testing.T) {
	svc, store, notifier, _ := newTestService()
	subject := activeSubject("biz-1")
	subject.CallsUsed = 7
	subject.CallsRemaining = 3
	seedSubject(store, subject)

	require.True(t, svc.RecordUsage(context.Background(), "biz-1"))
	require.Len(t, notifier.warnings, 1)
	require.Equal(t, types.TrialStatusWarned, store.subjects["biz-1"].Status)
	require.True(t, store.subjects["biz-1"].WarningEmailSent)
}

func TestRecordUsage_ExhaustingCallFiresBlocking(t *testing.T) {
	svc, store, notifier, blocker := newTestService()
	subject := activeSubject("biz-1")
	subject.CallsUsed = 9
	subject.CallsRemaining = 1
	subject.WarningEmailSent = true
	subject.Status = types.TrialStatusWarned
	seedSubject(store, subject)

	require.True(t, svc.RecordUsage(context.Background(), "biz-1"))
	require.Len(t, notifier.blocked, 1)
	require.Equal(t, []string{"biz-1"}, blocker.blocked)
	require.Equal(t, types.TrialStatusBlocked, store.subjects["biz-1"].Status)
	require.True(t, store.subjects["biz-1"].IsBlocked)
}

func TestRecordUsage_IncrementRaceToZero(t *testing.T) {
	svc, store, _, _ := newTestService()
	subject := activeSubject("biz-1")
	seedSubject(store, subject)
	// The guarded update loses after the status check passed.
	subject.CallsRemaining = 0
	subject.CallsUsed = 10
	checked := svc.statusOf(context.Background(), activeSubject("biz-1"))
	require.True(t, checked.CanMakeCall)

	ok, err := store.IncrementUsage(context.Background(), "biz-1", testNow)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 10, subject.CallsUsed)
}

func TestActivatePaidPlan_UpgradesAndUnblocks(t *testing.T) {
	svc, store, _, blocker := newTestService()
	subject := activeSubject("biz-1")
	subject.Status = types.TrialStatusBlocked
	subject.IsBlocked = true
	reason := types.BlockReasonTextCallLimit
	subject.BlockReason = &reason
	due := testNow.Add(24 * time.Hour)
	subject.ScheduledDeletionDate = &due
	seedSubject(store, subject)

	require.NoError(t, svc.ActivatePaidPlan(context.Background(), "biz-1"))
	require.Equal(t, types.TrialStatusPaid, subject.Status)
	require.False(t, subject.IsBlocked)
	require.Nil(t, subject.BlockReason)
	require.Nil(t, subject.ScheduledDeletionDate)
	require.Equal(t, []string{"biz-1"}, blocker.unblocked)
}

func TestActivatePaidPlan_UnblockFailureDoesNotFailUpgrade(t *testing.T) {
	svc, store, _, blocker := newTestService()
	subject := activeSubject("biz-1")
	subject.Status = types.TrialStatusBlocked
	subject.IsBlocked = true
	seedSubject(store, subject)
	blocker.unblockErr = errors.New("provider down")

	require.NoError(t, svc.ActivatePaidPlan(context.Background(), "biz-1"))
	require.Equal(t, types.TrialStatusPaid, subject.Status)
}

func TestScheduleCounts(t *testing.T) {
	svc, store, _, _ := newTestService()
	critical := activeSubject("biz-1")
	critical.CallsRemaining = 1
	seedSubject(store, critical)
	expired := activeSubject("biz-2")
	expired.BusinessID = "biz-2"
	expired.TrialEndDate = testNow.Add(-time.Hour)
	seedSubject(store, expired)

	criticalCount, expiredCount, err := svc.ScheduleCounts(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 2, criticalCount)
	require.EqualValues(t, 1, expiredCount)
}
