package repository

// Schema definitions for the settlement risk core audit store.
// Compatible with both SQLite and PostgreSQL.

const schemaInstructions = `
CREATE TABLE IF NOT EXISTS instructions (
    id TEXT PRIMARY KEY,
    trade_id TEXT NOT NULL,
    counterparty_id TEXT NOT NULL,
    security_id TEXT NOT NULL,
    security_type TEXT NOT NULL,
    notional_amount REAL NOT NULL,
    currency TEXT NOT NULL,
    trade_date TIMESTAMP NOT NULL,
    settlement_date TIMESTAMP NOT NULL,
    method TEXT NOT NULL,
    priority TEXT NOT NULL,
    status TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_instructions_counterparty ON instructions(counterparty_id);
CREATE INDEX IF NOT EXISTS idx_instructions_settlement_date ON instructions(settlement_date);
CREATE INDEX IF NOT EXISTS idx_instructions_status ON instructions(status);
`

const schemaPredictions = `
CREATE TABLE IF NOT EXISTS predictions (
    id TEXT PRIMARY KEY,
    instruction_id TEXT NOT NULL,
    failure_probability REAL NOT NULL,
    risk_tier TEXT NOT NULL,
    expected_delay_days REAL NOT NULL,
    confidence REAL NOT NULL,
    risk_factors TEXT NOT NULL,
    mitigations TEXT NOT NULL,
    early_warnings TEXT,
    model_version TEXT NOT NULL,
    generated_at TIMESTAMP NOT NULL,
    valid_until TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_predictions_instruction ON predictions(instruction_id);
CREATE INDEX IF NOT EXISTS idx_predictions_generated ON predictions(generated_at);
CREATE INDEX IF NOT EXISTS idx_predictions_tier ON predictions(risk_tier);
`

const schemaAssessments = `
CREATE TABLE IF NOT EXISTS assessments (
    id TEXT PRIMARY KEY,
    instruction_id TEXT NOT NULL,
    credit_score REAL NOT NULL,
    liquidity_score REAL NOT NULL,
    operational_score REAL NOT NULL,
    market_score REAL NOT NULL,
    composite_score REAL NOT NULL,
    grade TEXT NOT NULL,
    key_factors TEXT NOT NULL,
    mitigations TEXT NOT NULL,
    alert_level TEXT NOT NULL,
    assessed_at TIMESTAMP NOT NULL,
    valid_until TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_assessments_instruction ON assessments(instruction_id);
CREATE INDEX IF NOT EXISTS idx_assessments_assessed ON assessments(assessed_at);
`

const schemaDelays = `
CREATE TABLE IF NOT EXISTS delays (
    id TEXT PRIMARY KEY,
    instruction_id TEXT NOT NULL,
    milestone_id TEXT NOT NULL,
    milestone_type TEXT NOT NULL,
    cause TEXT NOT NULL,
    estimated_hours REAL NOT NULL,
    actual_hours REAL NOT NULL,
    severity TEXT NOT NULL,
    mitigations TEXT,
    raised_at TIMESTAMP NOT NULL,
    resolved_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_delays_instruction ON delays(instruction_id);
CREATE INDEX IF NOT EXISTS idx_delays_cause ON delays(cause);
CREATE INDEX IF NOT EXISTS idx_delays_raised ON delays(raised_at);
`

const schemaAlerts = `
CREATE TABLE IF NOT EXISTS alerts (
    id TEXT PRIMARY KEY,
    instruction_id TEXT NOT NULL,
    milestone_id TEXT,
    type TEXT NOT NULL,
    severity TEXT NOT NULL,
    message TEXT NOT NULL,
    status TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    acknowledged_at TIMESTAMP,
    resolved_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_alerts_instruction ON alerts(instruction_id);
CREATE INDEX IF NOT EXISTS idx_alerts_severity ON alerts(severity);
CREATE INDEX IF NOT EXISTS idx_alerts_created ON alerts(created_at);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaInstructions,
		schemaPredictions,
		schemaAssessments,
		schemaDelays,
		schemaAlerts,
	}
}
