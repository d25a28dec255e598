package store

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const pruneTimeout = time.Minute

var scheduleParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Pruner deletes the records that are older than the retention.
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// PruneJob removes old records from the store on a cron schedule.
type PruneJob struct {
	store     Pruner
	retention time.Duration
	now       func() time.Time
	log       zerolog.Logger
	cron      *cron.Cron
}

// NewPruneJob creates a job that prunes the store on the given schedule (cron syntax or a descriptor like
// @hourly). The job must be started.
func NewPruneJob(store Pruner, schedule string, retention time.Duration, log zerolog.Logger) (*PruneJob, error) {
	if retention <= 0 {
		return nil, fmt.Errorf("invalid retention %s", retention)
	}
	result := &PruneJob{
		store:     store,
		retention: retention,
		now:       time.Now,
		log:       log,
		cron:      cron.New(cron.WithParser(scheduleParser)),
	}
	_, err := result.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), pruneTimeout)
		defer cancel()
		result.Run(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("invalid prune schedule %q: %w", schedule, err)
	}
	return result, nil
}

// Run prunes the store once.
func (j *PruneJob) Run(ctx context.Context) int64 {
	before := j.now().Add(-j.retention)
	n, err := j.store.Prune(ctx, before)
	if err != nil {
		j.log.Warn().Err(err).Msg("cannot prune message history")
		return 0
	}
	if n > 0 {
		j.log.Info().Int64("deleted", n).Time("before", before).Msg("message history pruned")
	}
	return n
}

// Start the schedule. It runs until ctx is done.
func (j *PruneJob) Start(ctx context.Context) {
	j.cron.Start()
	go func() {
		<-ctx.Done()
		<-j.cron.Stop().Done()
	}()
}
