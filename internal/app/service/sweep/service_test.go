package sweep

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/voxloop/trialguard/internal/app/service/blocking"
	"github.com/voxloop/trialguard/internal/app/service/trial"
	"github.com/voxloop/trialguard/internal/models"
	"github.com/voxloop/trialguard/pkg/types"
)

type fakeEngine struct {
	warningCandidates  []*models.TrialUsage
	blockingCandidates []*models.TrialUsage
	warningErr         error
	blockingErr        error
	forceBlockOK       bool
	deletionStats      trial.DeletionStats
	critical           int64
	expired            int64
	countErr           error

	evaluated    []string
	forceBlocked []string
}

func (f *fakeEngine) WarningCandidates(context.Context) ([]*models.TrialUsage, error) {
	return f.warningCandidates, f.warningErr
}

func (f *fakeEngine) BlockingCandidates(context.Context) ([]*models.TrialUsage, error) {
	return f.blockingCandidates, f.blockingErr
}

func (f *fakeEngine) EvaluateThresholds(_ context.Context, subject *models.TrialUsage) (bool, bool) {
	f.evaluated = append(f.evaluated, subject.Identifier)
	return true, false
}

func (f *fakeEngine) ForceBlock(_ context.Context, subject *models.TrialUsage) bool {
	f.forceBlocked = append(f.forceBlocked, subject.Identifier)
	return f.forceBlockOK
}

func (f *fakeEngine) ProcessPendingDeletions(context.Context) trial.DeletionStats {
	return f.deletionStats
}

func (f *fakeEngine) ScheduleCounts(context.Context) (int64, int64, error) {
	return f.critical, f.expired, f.countErr
}

type fakeBlocker struct {
	stats blocking.PendingBlockStats
}

func (f *fakeBlocker) ProcessPendingBlocks(context.Context) blocking.PendingBlockStats {
	return f.stats
}

func newTestSweep(engine *fakeEngine, blocker *fakeBlocker) (*Service, *[]string) {
	phases := &[]string{}
	svc := &Service{
		engine:  engine,
		blocker: blocker,
		log:     zap.NewNop().Sugar(),
		observe: func(phase string, _ time.Duration) {
			*phases = append(*phases, phase)
		},
	}
	return svc, phases
}

func subjectWith(identifier string) *models.TrialUsage {
	return &models.TrialUsage{Identifier: identifier, Status: types.TrialStatusActive}
}

func TestProcessAutomatedEmails_PhaseOrder(t *testing.T) {
	svc, phases := newTestSweep(&fakeEngine{}, &fakeBlocker{})

	svc.ProcessAutomatedEmails(context.Background())
	require.Equal(t, []string{"warnings", "blockings", "deletions", "number_blocking"}, *phases)
}

func TestProcessAutomatedEmails_AggregatesStats(t *testing.T) {
	engine := &fakeEngine{
		warningCandidates:  []*models.TrialUsage{subjectWith("biz-1"), subjectWith("biz-2")},
		blockingCandidates: []*models.TrialUsage{subjectWith("biz-3")},
		forceBlockOK:       true,
		deletionStats:      trial.DeletionStats{DeletionWarningsSent: 1, DeletionsSent: 1},
	}
	blocker := &fakeBlocker{stats: blocking.PendingBlockStats{Processed: 1, Blocked: 2}}
	svc, _ := newTestSweep(engine, blocker)

	stats := svc.ProcessAutomatedEmails(context.Background())
	require.Equal(t, 5, stats.Processed)
	require.Equal(t, 2, stats.WarningsSent)
	require.Equal(t, 1, stats.BlockingsSent)
	require.Equal(t, 1, stats.DeletionWarningsSent)
	require.Equal(t, 1, stats.DeletionsSent)
	require.Equal(t, 2, stats.NumbersBlocked)
	require.Empty(t, stats.Errors)
	require.Equal(t, []string{"biz-1", "biz-2"}, engine.evaluated)
	require.Equal(t, []string{"biz-3"}, engine.forceBlocked)
}

func TestProcessAutomatedEmails_QueryFailuresCollected(t *testing.T) {
	engine := &fakeEngine{
		warningErr:  errors.New("db down"),
		blockingErr: errors.New("db down"),
		deletionStats: trial.DeletionStats{
			Errors: []trial.ItemError{{Identifier: "biz-9", Stage: "deletion", Error: "smtp unavailable"}},
		},
	}
	blocker := &fakeBlocker{stats: blocking.PendingBlockStats{
		Errors: []blocking.NumberResult{{PhoneNumber: "+33100000001", Error: "provider 500"}},
	}}
	svc, phases := newTestSweep(engine, blocker)

	stats := svc.ProcessAutomatedEmails(context.Background())
	require.Len(t, stats.Errors, 4)
	require.Equal(t, "warning_query", stats.Errors[0].Stage)
	require.Equal(t, "blocking_query", stats.Errors[1].Stage)
	require.Equal(t, "deletion", stats.Errors[2].Stage)
	require.Equal(t, "number_blocking", stats.Errors[3].Stage)
	// Every phase still ran.
	require.Len(t, *phases, 4)
}

func TestProcessAutomatedEmails_UnblockedSubjectReported(t *testing.T) {
	engine := &fakeEngine{
		blockingCandidates: []*models.TrialUsage{subjectWith("biz-1")},
		forceBlockOK:       false,
	}
	svc, _ := newTestSweep(engine, &fakeBlocker{})

	stats := svc.ProcessAutomatedEmails(context.Background())
	require.Len(t, stats.Errors, 1)
	require.Equal(t, "blocking", stats.Errors[0].Stage)
	require.Equal(t, "biz-1", stats.Errors[0].Identifier)
}

func TestGetProcessingSchedule_ExpiredRunsHot(t *testing.T) {
	svc, _ := newTestSweep(&fakeEngine{critical: 5, expired: 1}, &fakeBlocker{})

	sched := svc.GetProcessingSchedule(context.Background())
	require.Equal(t, types.SweepPriorityHigh, sched.Priority)
	require.Equal(t, 5*time.Minute, sched.NextRunDelay)
	require.EqualValues(t, 1, sched.ExpiredUnblocked)
}

func TestGetProcessingSchedule_CriticalOnly(t *testing.T) {
	svc, _ := newTestSweep(&fakeEngine{critical: 3}, &fakeBlocker{})

	sched := svc.GetProcessingSchedule(context.Background())
	require.Equal(t, types.SweepPriorityMedium, sched.Priority)
	require.Equal(t, 30*time.Minute, sched.NextRunDelay)
}

func TestGetProcessingSchedule_QuietBacksOff(t *testing.T) {
	svc, _ := newTestSweep(&fakeEngine{}, &fakeBlocker{})

	sched := svc.GetProcessingSchedule(context.Background())
	require.Equal(t, types.SweepPriorityLow, sched.Priority)
	require.Equal(t, 4*time.Hour, sched.NextRunDelay)
}

func TestGetProcessingSchedule_CountFailureDegradesToMedium(t *testing.T) {
	svc, _ := newTestSweep(&fakeEngine{countErr: errors.New("db down")}, &fakeBlocker{})

	sched := svc.GetProcessingSchedule(context.Background())
	require.Equal(t, types.SweepPriorityMedium, sched.Priority)
	require.Equal(t, time.Hour, sched.NextRunDelay)
}

func TestLocalLeaser_SingleFlight(t *testing.T) {
	leaser := NewLeaser(nil)

	ok, err := leaser.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = leaser.Acquire(context.Background())
	require.NoError(t, err)
	require.False(t, ok)

	leaser.Release(context.Background())
	ok, _ = leaser.Acquire(context.Background())
	require.True(t, ok)
}
