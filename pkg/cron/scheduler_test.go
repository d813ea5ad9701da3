package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sushiaki/sorabot/pkg/agent"
	"github.com/sushiaki/sorabot/pkg/config"
	"github.com/sushiaki/sorabot/pkg/connection"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestScheduler_AddValidates(t *testing.T) {
	s := NewScheduler()
	noop := func(context.Context, time.Time) error { return nil }

	require.NoError(t, s.Add("every-minute", "* * * * *", noop))
	assert.Error(t, s.Add("broken", "not a cron", noop))
	assert.Error(t, s.Add("every-minute", "*/5 * * * *", noop), "duplicate names are rejected")
	require.NoError(t, s.Add("disabled", "  ", noop))

	jobs := s.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "every-minute", jobs[0].Name)
}

func TestScheduler_RunDue(t *testing.T) {
	s := NewScheduler()
	var ran []time.Time
	require.NoError(t, s.Add("half-hour", "*/30 * * * *", func(_ context.Context, now time.Time) error {
		ran = append(ran, now)
		return nil
	}))
	require.NoError(t, s.Add("always", "* * * * *", func(context.Context, time.Time) error {
		return errors.New("boom")
	}))
	ctx := context.Background()

	assert.Equal(t, []string{"half-hour", "always"}, s.RunDue(ctx, base.Add(15*time.Second)))
	assert.Empty(t, s.RunDue(ctx, base.Add(40*time.Second)), "at most once per minute")
	assert.Equal(t, []string{"always"}, s.RunDue(ctx, base.Add(time.Minute)))
	assert.Equal(t, []string{"half-hour", "always"}, s.RunDue(ctx, base.Add(30*time.Minute)))

	require.Len(t, ran, 2)
	assert.Equal(t, base, ran[0], "jobs receive the due minute")
}

func TestScheduler_StartStop(t *testing.T) {
	s := NewScheduler()
	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()))
	s.Stop()
	s.Stop()
	require.NoError(t, s.Start(context.Background()))
	s.Stop()
}

type fakeMaintainer struct {
	swept []time.Time
}

func (f *fakeMaintainer) SweepHandoffs(now time.Time) []string {
	f.swept = append(f.swept, now)
	return nil
}

func (f *fakeMaintainer) Stats() agent.Stats {
	return agent.Stats{Sessions: 3, AutoReply: true}
}

func TestRegisterMaintenance(t *testing.T) {
	s := NewScheduler()
	m := &fakeMaintainer{}
	cfg := config.DefaultConfig().Cron

	require.NoError(t, RegisterMaintenance(s, cfg, m, connection.NewTracker()))
	assert.Len(t, s.Jobs(), 2)

	ran := s.RunDue(context.Background(), base.Add(time.Minute))
	assert.Equal(t, []string{JobHandoffSweep}, ran)
	assert.Equal(t, []time.Time{base.Add(time.Minute)}, m.swept)

	ran = s.RunDue(context.Background(), base.Add(30*time.Minute))
	assert.Equal(t, []string{JobHandoffSweep, JobStatusLog}, ran)
}

func TestRegisterMaintenance_InvalidSchedule(t *testing.T) {
	s := NewScheduler()
	err := RegisterMaintenance(s, config.CronConfig{HandoffSweep: "bogus"}, &fakeMaintainer{}, nil)
	assert.Error(t, err)
}
