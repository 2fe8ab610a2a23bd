package timeline

import (
	"time"

	"github.com/DHoffman777/InvestmentPlatform-sub002/internal/domain"
)

// templateStep describes one milestone in a lifecycle template. Fraction
// positions the expected time inside the trade-to-settlement window; steps
// with Fraction > 1 are anchored after the settlement date.
type templateStep struct {
	Type           domain.MilestoneType
	Fraction       float64
	AfterHours     float64 // hours after settlement date when Fraction >= 1
	Required       bool
	Responsible    domain.ResponsibleParty
	AlertThreshold time.Duration
}

// baseTemplate is the full settlement lifecycle. Security/method variants
// derive from it; milestones are never reordered.
var baseTemplate = []templateStep{
	{Type: domain.MilestoneTradeCapture, Fraction: 0.02, Required: true, Responsible: domain.PartyInternalOps, AlertThreshold: 2 * time.Hour},
	{Type: domain.MilestoneTradeConfirmation, Fraction: 0.15, Required: true, Responsible: domain.PartyCounterparty, AlertThreshold: 4 * time.Hour},
	{Type: domain.MilestoneTradeAffirmation, Fraction: 0.25, Required: true, Responsible: domain.PartyCounterparty, AlertThreshold: 4 * time.Hour},
	{Type: domain.MilestoneAllocation, Fraction: 0.35, Required: true, Responsible: domain.PartyInternalOps, AlertThreshold: 4 * time.Hour},
	{Type: domain.MilestoneInstructionSent, Fraction: 0.50, Required: true, Responsible: domain.PartyInternalOps, AlertThreshold: 2 * time.Hour},
	{Type: domain.MilestoneCustodyConfirmation, Fraction: 0.75, Required: true, Responsible: domain.PartyCustodian, AlertThreshold: 6 * time.Hour},
	{Type: domain.MilestoneCashConfirmation, Fraction: 0.85, Required: true, Responsible: domain.PartyCustodian, AlertThreshold: 6 * time.Hour},
	{Type: domain.MilestoneFinalSettlement, Fraction: 1.0, Required: true, Responsible: domain.PartyCustodian, AlertThreshold: 2 * time.Hour},
	{Type: domain.MilestoneReconciliation, Fraction: 1.0, AfterHours: 4, Required: false, Responsible: domain.PartyInternalOps, AlertThreshold: 8 * time.Hour},
	{Type: domain.MilestoneReporting, Fraction: 1.0, AfterHours: 24, Required: true, Responsible: domain.PartyRegulator, AlertThreshold: 12 * time.Hour},
}

// TemplateFor returns the milestone template for a security type and
// settlement method. Free-of-payment methods have no cash leg.
func TemplateFor(securityType domain.SecurityType, method domain.SettlementMethod) []templateStep {
	steps := make([]templateStep, 0, len(baseTemplate))
	for _, s := range baseTemplate {
		if s.Type == domain.MilestoneCashConfirmation &&
			(method == domain.MethodFOP || method == domain.MethodDFP) {
			continue
		}
		// Money-market paper settles same-day; affirmation is folded into
		// confirmation.
		if s.Type == domain.MilestoneTradeAffirmation && securityType == domain.SecurityMoneyMarket {
			continue
		}
		steps = append(steps, s)
	}
	return steps
}

// defaultSLAs is keyed by security type; method adjustments are applied in
// SLAFor.
var defaultSLAs = map[domain.SecurityType]domain.SLADefinition{
	domain.SecurityEquity:            {TargetHours: 48, WarningRatio: 1.0, CriticalRatio: 3.0},
	domain.SecurityCorporateBond:     {TargetHours: 48, WarningRatio: 1.0, CriticalRatio: 3.0},
	domain.SecurityGovernmentBond:    {TargetHours: 24, WarningRatio: 1.0, CriticalRatio: 3.0},
	domain.SecurityMoneyMarket:       {TargetHours: 24, WarningRatio: 0.75, CriticalRatio: 2.0},
	domain.SecurityStructuredProduct: {TargetHours: 96, WarningRatio: 1.0, CriticalRatio: 3.0},
	domain.SecurityDerivative:        {TargetHours: 72, WarningRatio: 1.0, CriticalRatio: 3.0},
}

// SLAFor returns the SLA definition for a security type and method.
func SLAFor(securityType domain.SecurityType, method domain.SettlementMethod) domain.SLADefinition {
	sla, ok := defaultSLAs[securityType]
	if !ok {
		sla = domain.SLADefinition{TargetHours: 48, WarningRatio: 1.0, CriticalRatio: 3.0}
	}
	sla.SecurityType = securityType
	sla.Method = method

	// Manual free-of-payment handling earns a tighter warning threshold.
	if method == domain.MethodFOP {
		sla.WarningRatio *= 0.75
	}
	return sla
}
