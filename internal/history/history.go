// Package history maintains rolling settlement-outcome statistics per
// counterparty and per security type, and produces the historical context
// consumed by prediction and risk scoring.
package history

import (
	"sync"
	"time"

	"github.com/DHoffman777/InvestmentPlatform-sub002/internal/domain"
)

const (
	// rollingWindow bounds how many outcomes per counterparty feed the
	// rolling statistics.
	rollingWindow = 200

	// recentFailureWindow is the lookback for the recent failure count.
	recentFailureWindow = 30 * 24 * time.Hour

	// defaultSuccessRate is used for counterparties with no observed history.
	defaultSuccessRate = 0.95
)

// observation is one recorded settlement outcome.
type observation struct {
	outcome   domain.SettlementOutcome
	delayDays float64
	at        time.Time
}

// entityStats is the rolling outcome window for one counterparty or
// security type.
type entityStats struct {
	observations []observation
}

func (e *entityStats) record(obs observation) {
	e.observations = append(e.observations, obs)
	if len(e.observations) > rollingWindow {
		e.observations = e.observations[len(e.observations)-rollingWindow:]
	}
}

func (e *entityStats) successRate() (float64, int) {
	if len(e.observations) == 0 {
		return defaultSuccessRate, 0
	}
	settled := 0
	for _, o := range e.observations {
		if o.outcome == domain.OutcomeSettled {
			settled++
		}
	}
	return float64(settled) / float64(len(e.observations)), len(e.observations)
}

func (e *entityStats) avgDelayDays() float64 {
	if len(e.observations) == 0 {
		return 0
	}
	var sum float64
	for _, o := range e.observations {
		sum += o.delayDays
	}
	return sum / float64(len(e.observations))
}

func (e *entityStats) recentFailures(since time.Time) int {
	n := 0
	for _, o := range e.observations {
		if o.outcome == domain.OutcomeFailed && o.at.After(since) {
			n++
		}
	}
	return n
}

// Store accumulates settlement outcomes and answers historical-context
// queries. Safe for concurrent use.
type Store struct {
	mu             sync.RWMutex
	counterparties map[string]*entityStats
	securityTypes  map[domain.SecurityType]*entityStats
	now            func() time.Time
}

// NewStore creates an empty outcome store.
func NewStore() *Store {
	return &Store{
		counterparties: make(map[string]*entityStats),
		securityTypes:  make(map[domain.SecurityType]*entityStats),
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// RecordOutcome folds one observed settlement outcome into the rolling
// statistics for the counterparty and security type involved.
func (s *Store) RecordOutcome(counterpartyID string, securityType domain.SecurityType, outcome domain.SettlementOutcome, delayDays float64) {
	if delayDays < 0 {
		delayDays = 0
	}
	obs := observation{outcome: outcome, delayDays: delayDays, at: s.now()}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := s.counterparties[counterpartyID]
	if cp == nil {
		cp = &entityStats{}
		s.counterparties[counterpartyID] = cp
	}
	cp.record(obs)

	st := s.securityTypes[securityType]
	if st == nil {
		st = &entityStats{}
		s.securityTypes[securityType] = st
	}
	st.record(obs)
}

// ContextFor builds the historical context for a prediction over the given
// counterparty and security type. Unknown entities fall back to conservative
// defaults rather than failing.
func (s *Store) ContextFor(counterpartyID string, securityType domain.SecurityType, settlementDate time.Time) domain.HistoricalContext {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hc := domain.HistoricalContext{
		CounterpartySuccessRate: defaultSuccessRate,
		SecurityTypeSuccessRate: defaultSuccessRate,
		SeasonalFactor:          SeasonalFactor(settlementDate),
	}

	if cp, ok := s.counterparties[counterpartyID]; ok {
		hc.CounterpartySuccessRate, hc.CounterpartySampleSize = cp.successRate()
		hc.CounterpartyAvgDelayDays = cp.avgDelayDays()
		hc.RecentFailureCount = cp.recentFailures(s.now().Add(-recentFailureWindow))
	}
	if st, ok := s.securityTypes[securityType]; ok {
		hc.SecurityTypeSuccessRate, _ = st.successRate()
	}

	return hc
}

// CounterpartySampleSize returns how many outcomes back the counterparty's
// statistics.
func (s *Store) CounterpartySampleSize(counterpartyID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, ok := s.counterparties[counterpartyID]
	if !ok {
		return 0
	}
	return len(cp.observations)
}

// SeasonalFactor scales settlement friction by calendar position. Quarter
// ends and Decembers see elevated operational load.
func SeasonalFactor(date time.Time) float64 {
	factor := 0.1

	switch date.Month() {
	case time.March, time.June, time.September:
		if date.Day() >= 25 {
			factor = 0.5
		}
	case time.December:
		factor = 0.6
		if date.Day() >= 20 {
			factor = 0.8
		}
	}

	// Friday settlements carry weekend rollover exposure.
	if date.Weekday() == time.Friday {
		factor += 0.1
	}
	if factor > 1 {
		factor = 1
	}
	return factor
}
