package timeline

import (
	"sort"
	"time"

	"github.com/DHoffman777/InvestmentPlatform-sub002/internal/domain"
)

const (
	topDelayReasons      = 5
	worstCounterparties  = 5
	minCounterpartyTotal = 1
)

// GeneratePerformanceReport aggregates settlement timeliness over [start, end).
// An instruction is counted once, by its trade date; instructions still in
// flight count toward neither the on-time nor the late bucket.
func (t *Tracker) GeneratePerformanceReport(period string, start, end time.Time) *domain.PerformanceReport {
	report := &domain.PerformanceReport{
		Period:      period,
		Start:       start,
		End:         end,
		GeneratedAt: t.now(),
	}

	var totalHours float64
	var settled int
	perCounterparty := make(map[string]*domain.CounterpartyPerformance)

	for _, id := range t.instructionIDs() {
		s, err := t.state(id)
		if err != nil {
			continue
		}

		s.mu.Lock()
		instr := *s.instruction
		elapsed, done := settlementElapsed(s.milestones)
		late := timelineRanLate(s.milestones)
		s.mu.Unlock()

		if instr.TradeDate.Before(start) || !instr.TradeDate.Before(end) {
			continue
		}

		perf := perCounterparty[instr.CounterpartyID]
		if perf == nil {
			perf = &domain.CounterpartyPerformance{CounterpartyID: instr.CounterpartyID}
			perCounterparty[instr.CounterpartyID] = perf
		}
		perf.Total++

		switch instr.Status {
		case domain.InstructionFailed:
			report.Failed++
			perf.Failed++
		case domain.InstructionSettled:
			settled++
			if done {
				totalHours += elapsed.Hours()
			}
			if late {
				report.SettledLate++
				perf.Late++
			} else {
				report.SettledOnTime++
			}
		default:
			report.InFlight++
			if late {
				perf.Late++
			}
		}
	}

	if settled > 0 {
		report.AvgSettlementHours = totalHours / float64(settled)
	}
	if closed := report.SettledOnTime + report.SettledLate + report.Failed; closed > 0 {
		report.SLAComplianceRatio = float64(report.SettledOnTime) / float64(closed)
	}

	report.TopDelayReasons = t.delayReasons(start, end)
	report.WorstCounterparts = rankCounterparties(perCounterparty)

	return report
}

// settlementElapsed measures trade capture to final settlement when both
// actual times are known.
func settlementElapsed(milestones []*domain.SettlementMilestone) (time.Duration, bool) {
	var captured, settledAt *time.Time
	for _, m := range milestones {
		switch m.Type {
		case domain.MilestoneTradeCapture:
			captured = m.ActualTime
		case domain.MilestoneFinalSettlement:
			settledAt = m.ActualTime
		}
	}
	if captured == nil || settledAt == nil {
		return 0, false
	}
	return settledAt.Sub(*captured), true
}

// timelineRanLate reports whether any milestone completed after its expected
// time or passed through DELAYED.
func timelineRanLate(milestones []*domain.SettlementMilestone) bool {
	for _, m := range milestones {
		if m.Status == domain.MilestoneDelayed {
			return true
		}
		if m.ActualTime != nil && m.ActualTime.After(m.ExpectedTime) {
			return true
		}
	}
	return false
}

func (t *Tracker) delayReasons(start, end time.Time) []domain.DelayReasonCount {
	t.delayMu.RLock()
	counts := make(map[domain.DelayCause]int)
	for _, d := range t.delayLog {
		if d.RaisedAt.Before(start) || !d.RaisedAt.Before(end) {
			continue
		}
		counts[d.Cause]++
	}
	t.delayMu.RUnlock()

	out := make([]domain.DelayReasonCount, 0, len(counts))
	for cause, n := range counts {
		out = append(out, domain.DelayReasonCount{Cause: cause, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Cause < out[j].Cause
	})
	if len(out) > topDelayReasons {
		out = out[:topDelayReasons]
	}
	return out
}

func rankCounterparties(perf map[string]*domain.CounterpartyPerformance) []domain.CounterpartyPerformance {
	out := make([]domain.CounterpartyPerformance, 0, len(perf))
	for _, p := range perf {
		if p.Total < minCounterpartyTotal {
			continue
		}
		p.LateRatio = float64(p.Late+p.Failed) / float64(p.Total)
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LateRatio != out[j].LateRatio {
			return out[i].LateRatio > out[j].LateRatio
		}
		return out[i].CounterpartyID < out[j].CounterpartyID
	})
	if len(out) > worstCounterparties {
		out = out[:worstCounterparties]
	}
	return out
}
