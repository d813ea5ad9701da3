package cron

import (
	"context"
	"time"

	"github.com/sushiaki/sorabot/pkg/agent"
	"github.com/sushiaki/sorabot/pkg/config"
	"github.com/sushiaki/sorabot/pkg/connection"
	"github.com/sushiaki/sorabot/pkg/logger"
)

const (
	JobHandoffSweep = "handoff-sweep"
	JobStatusLog    = "status-log"
)

// Maintainer is the dispatcher surface the jobs need.
type Maintainer interface {
	SweepHandoffs(now time.Time) []string
	Stats() agent.Stats
}

// RegisterMaintenance adds the built-in jobs using the configured
// schedules. tracker may be nil when no transport reports status.
func RegisterMaintenance(s *Scheduler, cfg config.CronConfig, m Maintainer, tracker *connection.Tracker) error {
	if err := s.Add(JobHandoffSweep, cfg.HandoffSweep, HandoffSweepJob(m)); err != nil {
		return err
	}
	return s.Add(JobStatusLog, cfg.StatusLog, StatusLogJob(m, tracker))
}

// HandoffSweepJob releases expired handoffs so the dashboard does not
// show stale operator control until the customer writes again.
func HandoffSweepJob(m Maintainer) JobFunc {
	return func(_ context.Context, now time.Time) error {
		m.SweepHandoffs(now)
		return nil
	}
}

func StatusLogJob(m Maintainer, tracker *connection.Tracker) JobFunc {
	return func(_ context.Context, _ time.Time) error {
		st := m.Stats()
		fields := map[string]interface{}{
			"sessions":       st.Sessions,
			"workers":        st.Workers,
			"handled":        st.Handled,
			"replies":        st.Replies,
			"model_failures": st.ModelFailures,
			"dropped":        st.Dropped,
			"dedup_entries":  st.DedupEntries,
			"auto_reply":     st.AutoReply,
		}
		if tracker != nil {
			fields["connection"] = string(tracker.Snapshot().State)
		}
		logger.InfoCF("cron", "Attendant status", fields)
		return nil
	}
}
