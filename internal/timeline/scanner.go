package timeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/DHoffman777/InvestmentPlatform-sub002/internal/domain"
)

// Scanner periodically sweeps tracked timelines for milestones running past
// their alert thresholds and raises deadline and SLA alerts. One instruction
// panicking never stops the sweep of the others.
type Scanner struct {
	tracker  *Tracker
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

// NewScanner creates a scanner over the tracker with the given sweep interval.
func NewScanner(tracker *Tracker, interval time.Duration) *Scanner {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scanner{
		tracker:  tracker,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the sweep loop until Stop is called or ctx is cancelled.
func (s *Scanner) Start(ctx context.Context) {
	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		slog.Info("timeline scanner started", "interval", s.interval)
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			case <-ticker.C:
				s.Scan(ctx)
			}
		}
	}()
}

// Stop halts the sweep loop and waits for it to exit.
func (s *Scanner) Stop() {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	<-s.done
}

// Scan sweeps every tracked instruction once and returns the number of
// alerts raised.
func (s *Scanner) Scan(ctx context.Context) int {
	raised := 0
	for _, id := range s.tracker.instructionIDs() {
		raised += s.scanInstruction(ctx, id)
	}
	if raised > 0 {
		slog.Info("timeline scan raised alerts", "count", raised)
	}
	return raised
}

func (s *Scanner) scanInstruction(ctx context.Context, instructionID string) (raised int) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("timeline scan panicked", "instruction_id", instructionID, "panic", r)
		}
	}()

	st, err := s.tracker.state(instructionID)
	if err != nil {
		return 0
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	now := s.tracker.now()
	sla := st.sla

	for _, m := range st.milestones {
		if m.Status != domain.MilestonePending && m.Status != domain.MilestoneDelayed {
			continue
		}
		overdue := now.Sub(m.ExpectedTime)
		if overdue <= 0 {
			continue
		}

		threshold := m.AlertThreshold
		if threshold <= 0 {
			threshold = time.Hour
		}
		ratio := float64(overdue) / float64(threshold)

		var (
			alertType domain.AlertType
			severity  domain.AlertLevel
		)
		switch {
		case ratio >= sla.CriticalRatio:
			alertType, severity = domain.AlertSLABreach, domain.AlertCritical
		case ratio >= sla.WarningRatio:
			alertType, severity = domain.AlertDeadlineApproaching, domain.AlertWarning
		case ratio >= 1:
			alertType, severity = domain.AlertDeadlineApproaching, domain.AlertInfo
		default:
			continue
		}

		if !s.acquireDedup(ctx, m.ID, severity) {
			continue
		}

		msg := fmt.Sprintf("milestone %s for instruction %s is %.1fh past its expected time",
			m.Type, instructionID, overdue.Hours())
		if alert := s.tracker.raiseAlertLocked(ctx, st, m, alertType, severity, msg); alert != nil {
			raised++
		}
	}
	return raised
}

// acquireDedup uses the shared cache as a cross-process guard so replicated
// scanners do not all raise the same alert. The in-memory alerted map remains
// the authoritative per-milestone escalation gate.
func (s *Scanner) acquireDedup(ctx context.Context, milestoneID string, severity domain.AlertLevel) bool {
	if s.tracker.cache == nil {
		return true
	}
	key := domain.CacheKeyAlertDedup + milestoneID + ":" + string(severity)
	n, err := s.tracker.cache.IncrementCounter(ctx, key, 24*time.Hour)
	if err != nil {
		// Cache trouble must not suppress alerting.
		return true
	}
	return n == 1
}
