// Package worker bootstraps the River job queue and its periodic jobs.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/callvault/callvault/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"gorm.io/gorm"
)

// tokenScrubGrace is how long past expiry an invite token is kept before
// the scrub job reclaims it. Rows keep their pending status either way.
const tokenScrubGrace = 24 * time.Hour

// InviteTokenScrubArgs is the periodic job that nulls expired invite tokens.
type InviteTokenScrubArgs struct{}

// Kind returns the unique job type identifier for scrub jobs.
func (InviteTokenScrubArgs) Kind() string { return "invite_token_scrub" }

type inviteTokenScrubWorker struct {
	river.WorkerDefaults[InviteTokenScrubArgs]
	db  *gorm.DB
	log *slog.Logger
}

func (w *inviteTokenScrubWorker) Work(ctx context.Context, _ *river.Job[InviteTokenScrubArgs]) error {
	cutoff := time.Now().UTC().Add(-tokenScrubGrace)

	coachRes := w.db.WithContext(ctx).Model(&model.CoachRelationship{}).
		Where("status = ? AND invite_token IS NOT NULL AND invite_expires_at < ?",
			model.RelationshipPending, cutoff).
		Update("invite_token", nil)
	if coachRes.Error != nil {
		return fmt.Errorf("scrub coach invite tokens: %w", coachRes.Error)
	}

	memberRes := w.db.WithContext(ctx).Model(&model.TeamMembership{}).
		Where("status = ? AND invite_token IS NOT NULL AND invite_expires_at < ?",
			model.MembershipPending, cutoff).
		Update("invite_token", nil)
	if memberRes.Error != nil {
		return fmt.Errorf("scrub membership invite tokens: %w", memberRes.Error)
	}

	teamRes := w.db.WithContext(ctx).Model(&model.Team{}).
		Where("invite_token IS NOT NULL AND invite_expires_at < ?", cutoff).
		Update("invite_token", nil)
	if teamRes.Error != nil {
		return fmt.Errorf("scrub team invite tokens: %w", teamRes.Error)
	}

	total := coachRes.RowsAffected + memberRes.RowsAffected + teamRes.RowsAffected
	if total > 0 {
		w.log.Info("scrubbed expired invite tokens",
			"coach", coachRes.RowsAffected,
			"membership", memberRes.RowsAffected,
			"team", teamRes.RowsAffected)
	}
	return nil
}

// Queue is the interface exposed by both the real River client and noopQueue.
type Queue interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Client wraps river.Client and exposes a Start/Stop lifecycle.
type Client struct {
	client *river.Client[pgx.Tx]
	log    *slog.Logger
}

// Start begins processing queued jobs.
func (c *Client) Start(ctx context.Context) error { return c.client.Start(ctx) }

// Stop gracefully shuts down the worker client.
func (c *Client) Stop(ctx context.Context) error { return c.client.Stop(ctx) }

// noopQueue is used when River is unavailable (e.g. DB_DRIVER=sqlite).
type noopQueue struct{ log *slog.Logger }

func (n *noopQueue) Start(_ context.Context) error {
	n.log.Info("worker queue disabled (sqlite driver; River requires postgres)")
	return nil
}
func (n *noopQueue) Stop(_ context.Context) error { return nil }

// New creates a queue implementation appropriate for the given driver.
//   - "postgres": returns a River client backed by pool, with the
//     invite-token scrub job scheduled hourly.
//   - anything else: returns a no-op queue that logs a startup notice.
//
// pool may be nil when driver != "postgres".
func New(ctx context.Context, pool *pgxpool.Pool, db *gorm.DB, driver string, concurrency int, log *slog.Logger) (Queue, error) {
	if driver != "postgres" {
		return &noopQueue{log: log}, nil
	}
	workers := river.NewWorkers()
	river.AddWorker(workers, &inviteTokenScrubWorker{db: db, log: log})

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: concurrency},
		},
		Workers: workers,
		Logger:  log,
		PeriodicJobs: []*river.PeriodicJob{
			river.NewPeriodicJob(
				river.PeriodicInterval(time.Hour),
				func() (river.JobArgs, *river.InsertOpts) {
					return InviteTokenScrubArgs{}, nil
				},
				&river.PeriodicJobOpts{RunOnStart: true},
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create river client: %w", err)
	}
	return &Client{client: client, log: log}, nil
}

// MigrateRiver runs River's built-in schema migrations against the given pool.
// Only call this when DB_DRIVER=postgres.
func MigrateRiver(ctx context.Context, db *pgxpool.Pool) error {
	migrator, err := rivermigrate.New(riverpgxv5.New(db), nil)
	if err != nil {
		return fmt.Errorf("create river migrator: %w", err)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		return fmt.Errorf("run river migrations: %w", err)
	}
	return nil
}
