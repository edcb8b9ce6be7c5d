package sweep

import (
	"context"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/voxloop/trialguard/pkg/tool"
)

const (
	leaseKey = "trialguard:sweep:lease"
	leaseTTL = 10 * time.Minute
	// minDelay bounds the re-arm interval against a misbehaving schedule.
	minDelay = time.Minute
)

// Leaser guarantees single-flight sweeps across replicas. With no redis
// configured the process-local implementation is used, which is sufficient
// for a single-instance deployment.
type Leaser interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context)
}

type redisLeaser struct {
	client *goredis.Client
	id     string
}

func (l *redisLeaser) Acquire(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, leaseKey, l.id, leaseTTL).Result()
}

func (l *redisLeaser) Release(ctx context.Context) {
	// Only delete our own lease; a crashed holder just times out.
	val, err := l.client.Get(ctx, leaseKey).Result()
	if err == nil && val == l.id {
		l.client.Del(ctx, leaseKey)
	}
}

type localLeaser struct {
	mu sync.Mutex
}

func (l *localLeaser) Acquire(ctx context.Context) (bool, error) {
	return l.mu.TryLock(), nil
}

func (l *localLeaser) Release(ctx context.Context) {
	l.mu.Unlock()
}

func NewLeaser(client *goredis.Client) Leaser {
	if client == nil {
		return &localLeaser{}
	}
	return &redisLeaser{client: client, id: tool.GenerateUUIDV7()}
}

// Runner drives the sweep on the adaptive schedule: run once, ask
// GetProcessingSchedule how long to sleep, repeat.
type Runner struct {
	svc    *Service
	leaser Leaser
	log    *zap.SugaredLogger
	cancel context.CancelFunc
	done   chan struct{}
}

func NewRunner(svc *Service, leaser Leaser, log *zap.SugaredLogger) *Runner {
	return &Runner{svc: svc, leaser: leaser, log: log, done: make(chan struct{})}
}

func (r *Runner) loop(ctx context.Context) {
	defer close(r.done)
	timer := time.NewTimer(minDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		r.runOnce(ctx)

		delay := r.svc.GetProcessingSchedule(ctx).NextRunDelay
		if delay < minDelay {
			delay = minDelay
		}
		timer.Reset(delay)
	}
}

func (r *Runner) runOnce(ctx context.Context) {
	acquired, err := r.leaser.Acquire(ctx)
	if err != nil {
		r.log.Errorf("sweep lease acquire failed: %v", err)
		return
	}
	if !acquired {
		r.log.Infow("sweep lease held elsewhere, skipping run")
		return
	}
	defer r.leaser.Release(ctx)

	r.svc.ProcessAutomatedEmails(ctx)
}

func runSweep(lc fx.Lifecycle, r *Runner, log *zap.SugaredLogger) {
	var ctx context.Context
	ctx, r.cancel = context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			log.Infow("starting sweep runner")
			go r.loop(ctx)
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			r.cancel()
			select {
			case <-r.done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}

var Module = fx.Options(
	fx.Provide(NewService),
	fx.Provide(NewLeaser),
	fx.Provide(NewRunner),
	fx.Invoke(runSweep),
)
