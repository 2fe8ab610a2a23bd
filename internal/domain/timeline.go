package domain

import (
	"time"
)

// MilestoneType is a required checkpoint in the settlement lifecycle.
// Milestones form a fixed, ordered template per security type and
// settlement method; they are never reordered.
type MilestoneType string

const (
	MilestoneTradeCapture        MilestoneType = "TRADE_CAPTURE"
	MilestoneTradeConfirmation   MilestoneType = "TRADE_CONFIRMATION"
	MilestoneTradeAffirmation    MilestoneType = "TRADE_AFFIRMATION"
	MilestoneAllocation          MilestoneType = "ALLOCATION"
	MilestoneInstructionSent     MilestoneType = "INSTRUCTION_SENT"
	MilestoneCustodyConfirmation MilestoneType = "CUSTODY_CONFIRMATION"
	MilestoneCashConfirmation    MilestoneType = "CASH_CONFIRMATION"
	MilestoneFinalSettlement     MilestoneType = "FINAL_SETTLEMENT"
	MilestoneReconciliation      MilestoneType = "RECONCILIATION"
	MilestoneReporting           MilestoneType = "REGULATORY_REPORTING"
)

// MilestoneStatus is the state of one milestone. Transitions are one-way:
// PENDING may move to any other state; terminal states never reopen.
type MilestoneStatus string

const (
	MilestonePending   MilestoneStatus = "PENDING"
	MilestoneCompleted MilestoneStatus = "COMPLETED"
	MilestoneDelayed   MilestoneStatus = "DELAYED"
	MilestoneFailed    MilestoneStatus = "FAILED"
	MilestoneSkipped   MilestoneStatus = "SKIPPED"
)

// Terminal reports whether the status ends the milestone's lifecycle.
func (s MilestoneStatus) Terminal() bool {
	return s == MilestoneCompleted || s == MilestoneFailed || s == MilestoneSkipped
}

// ResponsibleParty names who owns completing a milestone.
type ResponsibleParty string

const (
	PartyInternalOps  ResponsibleParty = "INTERNAL_OPS"
	PartyCounterparty ResponsibleParty = "COUNTERPARTY"
	PartyCustodian    ResponsibleParty = "CUSTODIAN"
	PartyRegulator    ResponsibleParty = "REGULATOR"
)

// SettlementMilestone is one checkpoint of an instruction's timeline.
// Created in bulk when the timeline is built; mutated in place as the
// lifecycle progresses.
type SettlementMilestone struct {
	ID             string           `json:"id"`
	InstructionID  string           `json:"instructionId"`
	Type           MilestoneType    `json:"type"`
	Sequence       int              `json:"sequence"`
	Status         MilestoneStatus  `json:"status"`
	Required       bool             `json:"required"`
	ExpectedTime   time.Time        `json:"expectedTime"`
	ActualTime     *time.Time       `json:"actualTime,omitempty"`
	Responsible    ResponsibleParty `json:"responsible"`
	AlertThreshold time.Duration    `json:"alertThreshold"`
	Notes          string           `json:"notes,omitempty"`
}

// DelayCause classifies why a milestone ran late.
type DelayCause string

const (
	CauseCounterparty DelayCause = "COUNTERPARTY"
	CauseCustodian    DelayCause = "CUSTODIAN"
	CauseSystem       DelayCause = "SYSTEM"
	CauseMarket       DelayCause = "MARKET"
	CauseRegulatory   DelayCause = "REGULATORY"
	CauseOperational  DelayCause = "OPERATIONAL"
)

// ImpactSeverity grades how badly a delay hurts the settlement.
type ImpactSeverity string

const (
	ImpactLow      ImpactSeverity = "LOW"
	ImpactMedium   ImpactSeverity = "MEDIUM"
	ImpactHigh     ImpactSeverity = "HIGH"
	ImpactCritical ImpactSeverity = "CRITICAL"
)

// SettlementDelay is raised when a milestone is late and resolved when the
// milestone finally completes.
type SettlementDelay struct {
	ID             string         `json:"id"`
	InstructionID  string         `json:"instructionId"`
	MilestoneID    string         `json:"milestoneId"`
	MilestoneType  MilestoneType  `json:"milestoneType"`
	Cause          DelayCause     `json:"cause"`
	EstimatedHours float64        `json:"estimatedHours"`
	ActualHours    float64        `json:"actualHours"`
	Severity       ImpactSeverity `json:"severity"`
	Mitigations    []string       `json:"mitigations"`
	RaisedAt       time.Time      `json:"raisedAt"`
	ResolvedAt     *time.Time     `json:"resolvedAt,omitempty"`
}

// AlertType names what triggered a settlement alert.
type AlertType string

const (
	AlertDeadlineApproaching AlertType = "DEADLINE_APPROACHING"
	AlertSLABreach           AlertType = "SLA_BREACH"
	AlertMilestoneFailed     AlertType = "MILESTONE_FAILED"
	AlertHighRiskScore       AlertType = "HIGH_RISK_SCORE"
)

// AlertStatus is the acknowledgement lifecycle of an alert.
type AlertStatus string

const (
	AlertUnacknowledged AlertStatus = "UNACKNOWLEDGED"
	AlertAcknowledged   AlertStatus = "ACKNOWLEDGED"
	AlertResolved       AlertStatus = "RESOLVED"
)

// SettlementAlert is a severity-tagged notification tied to an instruction
// and optionally a milestone.
type SettlementAlert struct {
	ID             string        `json:"id"`
	InstructionID  string        `json:"instructionId"`
	MilestoneID    string        `json:"milestoneId,omitempty"`
	Type           AlertType     `json:"type"`
	Severity       AlertLevel    `json:"severity"`
	Message        string        `json:"message"`
	Status         AlertStatus   `json:"status"`
	CreatedAt      time.Time     `json:"createdAt"`
	AcknowledgedAt *time.Time    `json:"acknowledgedAt,omitempty"`
	ResolvedAt     *time.Time    `json:"resolvedAt,omitempty"`
}

// MilestoneUpdateEvent is the payload published when a milestone transitions.
// Carries the instruction snapshot so consumers see the derived status
// without a second lookup.
type MilestoneUpdateEvent struct {
	Milestone   *SettlementMilestone   `json:"milestone"`
	Instruction *SettlementInstruction `json:"instruction"`
}

// SLADefinition is the target, warning, and critical time thresholds for the
// settlement lifecycle of a given security type and method.
type SLADefinition struct {
	SecurityType SecurityType     `json:"securityType"`
	Method       SettlementMethod `json:"settlementMethod"`
	// TargetHours is the end-to-end target from trade capture to final
	// settlement.
	TargetHours float64 `json:"targetHours"`
	// WarningRatio and CriticalRatio scale a milestone's alert threshold
	// into WARNING and CRITICAL severities.
	WarningRatio  float64 `json:"warningRatio"`
	CriticalRatio float64 `json:"criticalRatio"`
}

// DelayReasonCount aggregates delays by cause for reporting.
type DelayReasonCount struct {
	Cause DelayCause `json:"cause"`
	Count int        `json:"count"`
}

// CounterpartyPerformance summarizes one counterparty's settlement record in
// a reporting window.
type CounterpartyPerformance struct {
	CounterpartyID string  `json:"counterpartyId"`
	Total          int     `json:"total"`
	Late           int     `json:"late"`
	Failed         int     `json:"failed"`
	LateRatio      float64 `json:"lateRatio"`
}

// PerformanceReport aggregates SLA compliance for a requested window.
type PerformanceReport struct {
	Period             string                    `json:"period"`
	Start              time.Time                 `json:"start"`
	End                time.Time                 `json:"end"`
	SettledOnTime      int                       `json:"settledOnTime"`
	SettledLate        int                       `json:"settledLate"`
	Failed             int                       `json:"failed"`
	InFlight           int                       `json:"inFlight"`
	AvgSettlementHours float64                   `json:"avgSettlementHours"`
	SLAComplianceRatio float64                   `json:"slaComplianceRatio"`
	TopDelayReasons    []DelayReasonCount        `json:"topDelayReasons"`
	WorstCounterparts  []CounterpartyPerformance `json:"worstCounterparties"`
	GeneratedAt        time.Time                 `json:"generatedAt"`
}
