package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/guildmarket/pkg/logger"
)

const (
	outboxRetentionDays = 30
	dlqRetentionDays    = 90
	day                 = 24 * time.Hour
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxRetentionRepo interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type dlqRetentionRepo interface {
	DeleteFailedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

// OutboxRetentionJobParams: Retention and DLQRetention are in days; zero
// selects 30 and 90.
type OutboxRetentionJobParams struct {
	Logger        *logger.Logger
	DB            txRunner
	Repository    outboxRetentionRepo
	DLQRepository dlqRetentionRepo
	Retention     int
	DLQRetention  int
}

// purge is one delete step of the retention job.
type purge struct {
	label string
	days  int
	run   func(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type outboxRetentionJob struct {
	logg   *logger.Logger
	db     txRunner
	purges []purge
	now    func() time.Time
}

// NewOutboxRetentionJob purges delivered outbox rows and stale dead letters
// in one transaction. Unpublished rows are never touched.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.DB == nil:
		return nil, errors.New("db runner required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository required")
	case params.DLQRepository == nil:
		return nil, errors.New("dlq repository required")
	}
	return &outboxRetentionJob{
		logg: params.Logger,
		db:   params.DB,
		purges: []purge{
			{label: "outbox", days: daysOr(params.Retention, outboxRetentionDays), run: params.Repository.DeletePublishedBefore},
			{label: "dlq", days: daysOr(params.DLQRetention, dlqRetentionDays), run: params.DLQRepository.DeleteFailedBefore},
		},
		now: time.Now,
	}, nil
}

func daysOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	fields := map[string]any{}
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		for _, p := range j.purges {
			cutoff := now.Add(-time.Duration(p.days) * day)
			n, err := p.run(ctx, tx, cutoff)
			if err != nil {
				return fmt.Errorf("%s purge: %w", p.label, err)
			}
			fields[p.label+"_cutoff"] = cutoff
			fields[p.label+"_retention_days"] = p.days
			fields[p.label+"_rows_deleted"] = n
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("outbox retention: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, fields), "outbox retention cleanup complete")
	return nil
}
