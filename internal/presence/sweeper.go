package presence

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/vitalink-health/telehealth/internal/events"
	"github.com/vitalink-health/telehealth/internal/session"
)

// Sweeper periodically evicts stale participants across every open
// meeting. It is optional and off by default: without it, eviction rides
// on heartbeat traffic, which bounds detection at one heartbeat interval
// from any other live participant but never cleans up a meeting whose
// clients all vanished at once. Enabling the sweep tightens the worst case
// to the sweep interval regardless of traffic.
type Sweeper struct {
	participants session.ParticipantStore
	sink         events.Sink
	logger       *zap.Logger
	staleWindow  time.Duration
	interval     time.Duration
	now          session.Clock
}

// NewSweeper creates a presence sweeper. Zero durations fall back to the
// staleness default for both window and interval.
func NewSweeper(participants session.ParticipantStore, sink events.Sink, staleWindow, interval time.Duration, clock session.Clock, logger *zap.Logger) *Sweeper {
	if sink == nil {
		sink = events.Nop{}
	}
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if staleWindow <= 0 {
		staleWindow = session.DefaultStaleWindow
	}
	if interval <= 0 {
		interval = session.DefaultStaleWindow
	}
	return &Sweeper{
		participants: participants,
		sink:         sink,
		logger:       logger,
		staleWindow:  staleWindow,
		interval:     interval,
		now:          clock,
	}
}

// Run sweeps on a ticker until ctx is canceled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.logger.Info("presence sweeper started", zap.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("presence sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one eviction pass and returns the count evicted.
func (s *Sweeper) Sweep(ctx context.Context) int {
	now := s.now()
	evicted, err := s.participants.EvictStaleAll(ctx, now.Add(-s.staleWindow), now)
	if err != nil {
		s.logger.Error("presence sweep failed", zap.Error(err))
		return 0
	}
	for _, e := range evicted {
		s.sink.Emit(ctx, events.ParticipantLeft(now, e.MeetingID, e.ParticipantID, events.ReasonEvicted))
	}
	if len(evicted) > 0 {
		s.logger.Info("presence sweep evicted stale participants", zap.Int("count", len(evicted)))
	}
	return len(evicted)
}
