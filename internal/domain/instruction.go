// Package domain defines the core types and interfaces for the settlement
// risk core.
package domain

import (
	"time"
)

// InstructionStatus is the lifecycle status of a settlement instruction.
// Status is derived from milestone states by the timeline tracker; identity
// fields never change after creation.
type InstructionStatus string

const (
	InstructionPending    InstructionStatus = "PENDING"
	InstructionProcessing InstructionStatus = "PROCESSING"
	InstructionSettled    InstructionStatus = "SETTLED"
	InstructionFailed     InstructionStatus = "FAILED"
	InstructionCancelled  InstructionStatus = "CANCELLED"
	InstructionDelayed    InstructionStatus = "DELAYED"
)

// SecurityType classifies the instrument being settled.
type SecurityType string

const (
	SecurityEquity            SecurityType = "EQUITY"
	SecurityCorporateBond     SecurityType = "CORPORATE_BOND"
	SecurityGovernmentBond    SecurityType = "GOVERNMENT_BOND"
	SecurityMoneyMarket       SecurityType = "MONEY_MARKET"
	SecurityStructuredProduct SecurityType = "STRUCTURED_PRODUCT"
	SecurityDerivative        SecurityType = "DERIVATIVE"
)

// SettlementMethod is how securities and cash are exchanged.
type SettlementMethod string

const (
	MethodDVP SettlementMethod = "DVP" // delivery versus payment
	MethodRVP SettlementMethod = "RVP" // receive versus payment
	MethodFOP SettlementMethod = "FOP" // free of payment
	MethodDFP SettlementMethod = "DFP" // delivery free of payment
)

// InstructionPriority orders competing instructions for operational attention.
type InstructionPriority string

const (
	PriorityLow    InstructionPriority = "LOW"
	PriorityNormal InstructionPriority = "NORMAL"
	PriorityHigh   InstructionPriority = "HIGH"
	PriorityUrgent InstructionPriority = "URGENT"
)

// SettlementInstruction is a single trade's record of what must be exchanged
// and when. Created on trade capture by the external settlement-management
// collaborator; only Status is mutated afterwards, and only by the timeline
// tracker.
type SettlementInstruction struct {
	ID             string              `json:"id"`
	TradeID        string              `json:"tradeId"`
	CounterpartyID string              `json:"counterpartyId"`
	SecurityID     string              `json:"securityId"`
	SecurityType   SecurityType        `json:"securityType"`
	NotionalAmount float64             `json:"notionalAmount"`
	Currency       string              `json:"currency"`
	TradeDate      time.Time           `json:"tradeDate"`
	SettlementDate time.Time           `json:"settlementDate"`
	Method         SettlementMethod    `json:"settlementMethod"`
	Priority       InstructionPriority `json:"priority"`
	Status         InstructionStatus   `json:"status"`
	CreatedAt      time.Time           `json:"createdAt"`
	UpdatedAt      time.Time           `json:"updatedAt"`
}

// InstructionRequest is the intake payload for instruction creation.
type InstructionRequest struct {
	TradeID        string              `json:"tradeId"`
	CounterpartyID string              `json:"counterpartyId"`
	SecurityID     string              `json:"securityId"`
	SecurityType   SecurityType        `json:"securityType"`
	NotionalAmount float64             `json:"notionalAmount"`
	Currency       string              `json:"currency"`
	TradeDate      time.Time           `json:"tradeDate"`
	SettlementDate time.Time           `json:"settlementDate"`
	Method         SettlementMethod    `json:"settlementMethod"`
	Priority       InstructionPriority `json:"priority"`
}

// ToInstruction converts an intake request to a SettlementInstruction.
func (r *InstructionRequest) ToInstruction(id string) *SettlementInstruction {
	now := time.Now().UTC()
	priority := r.Priority
	if priority == "" {
		priority = PriorityNormal
	}
	return &SettlementInstruction{
		ID:             id,
		TradeID:        r.TradeID,
		CounterpartyID: r.CounterpartyID,
		SecurityID:     r.SecurityID,
		SecurityType:   r.SecurityType,
		NotionalAmount: r.NotionalAmount,
		Currency:       r.Currency,
		TradeDate:      r.TradeDate,
		SettlementDate: r.SettlementDate,
		Method:         r.Method,
		Priority:       priority,
		Status:         InstructionPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
