package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingPruner struct{}

func (failingPruner) Prune(context.Context, time.Time) (int64, error) {
	return 0, errors.New("disk full")
}

func TestPruneJob_Run(t *testing.T) {
	s := openTestStore(t)
	now := time.Date(2021, time.April, 11, 10, 0, 0, 0, time.UTC)
	_, err := s.Insert(context.Background(), 0, testMessage(0x1112, 0xC000, now.Add(-49*time.Hour)), true)
	require.NoError(t, err)
	kept, err := s.Insert(context.Background(), 0, testMessage(0x1112, 0xC010, now.Add(-47*time.Hour)), true)
	require.NoError(t, err)

	job, err := NewPruneJob(s, "@hourly", 48*time.Hour, zerolog.Nop())
	require.NoError(t, err)
	job.now = func() time.Time { return now }

	assert.Equal(t, int64(1), job.Run(context.Background()))
	_, err = s.Get(context.Background(), kept)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), job.Run(context.Background()))
}

func TestPruneJob_Failure(t *testing.T) {
	job, err := NewPruneJob(failingPruner{}, "0 */5 * * * *", time.Hour, zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, int64(0), job.Run(context.Background()))
}

func TestNewPruneJob_Invalid(t *testing.T) {
	_, err := NewPruneJob(failingPruner{}, "every now and then", time.Hour, zerolog.Nop())
	assert.Error(t, err)

	_, err = NewPruneJob(failingPruner{}, "@daily", 0, zerolog.Nop())
	assert.Error(t, err)
}
