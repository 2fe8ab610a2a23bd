// Package repository provides the durable audit store.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/DHoffman777/InvestmentPlatform-sub002/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveInstruction stores an instruction, updating status on replay.
func (r *SQLRepository) SaveInstruction(ctx context.Context, instr *domain.SettlementInstruction) error {
	if instr == nil || instr.ID == "" {
		return fmt.Errorf("%w: instruction with id is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO instructions (
			id, trade_id, counterparty_id, security_id, security_type,
			notional_amount, currency, trade_date, settlement_date,
			method, priority, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		instr.ID, instr.TradeID, instr.CounterpartyID,
		instr.SecurityID, instr.SecurityType,
		instr.NotionalAmount, instr.Currency,
		instr.TradeDate, instr.SettlementDate,
		instr.Method, instr.Priority, instr.Status,
		instr.CreatedAt, instr.UpdatedAt,
	)
	return err
}

// GetInstruction retrieves an instruction by ID.
func (r *SQLRepository) GetInstruction(ctx context.Context, id string) (*domain.SettlementInstruction, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalidInput)
	}

	query := `
		SELECT id, trade_id, counterparty_id, security_id, security_type,
			   notional_amount, currency, trade_date, settlement_date,
			   method, priority, status, created_at, updated_at
		FROM instructions
		WHERE id = ?
	`

	var instr domain.SettlementInstruction
	err := r.db.QueryRowContext(ctx, r.rebind(query), id).Scan(
		&instr.ID, &instr.TradeID, &instr.CounterpartyID,
		&instr.SecurityID, &instr.SecurityType,
		&instr.NotionalAmount, &instr.Currency,
		&instr.TradeDate, &instr.SettlementDate,
		&instr.Method, &instr.Priority, &instr.Status,
		&instr.CreatedAt, &instr.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &instr, nil
}

// SavePrediction appends a prediction to the audit trail.
func (r *SQLRepository) SavePrediction(ctx context.Context, p *domain.FailurePrediction) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("%w: prediction with id is required", ErrInvalidInput)
	}

	riskFactors, _ := json.Marshal(p.RiskFactors)
	mitigations, _ := json.Marshal(p.Mitigations)
	warnings, _ := json.Marshal(p.EarlyWarnings)

	query := `
		INSERT INTO predictions (
			id, instruction_id, failure_probability, risk_tier,
			expected_delay_days, confidence, risk_factors, mitigations,
			early_warnings, model_version, generated_at, valid_until
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		p.ID, p.InstructionID, p.FailureProbability, p.RiskTier,
		p.ExpectedDelayDays, p.Confidence,
		string(riskFactors), string(mitigations), string(warnings),
		p.ModelVersion, p.GeneratedAt, p.ValidUntil,
	)
	return err
}

// ListPredictions retrieves predictions for an instruction, newest first.
func (r *SQLRepository) ListPredictions(ctx context.Context, instructionID string, limit int) ([]*domain.FailurePrediction, error) {
	if instructionID == "" {
		return nil, fmt.Errorf("%w: instructionID is required", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, instruction_id, failure_probability, risk_tier,
			   expected_delay_days, confidence, risk_factors, mitigations,
			   early_warnings, model_version, generated_at, valid_until
		FROM predictions
		WHERE instruction_id = ?
		ORDER BY generated_at DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), instructionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var predictions []*domain.FailurePrediction
	for rows.Next() {
		var p domain.FailurePrediction
		var riskFactors, mitigations, warnings string

		if err := rows.Scan(
			&p.ID, &p.InstructionID, &p.FailureProbability, &p.RiskTier,
			&p.ExpectedDelayDays, &p.Confidence,
			&riskFactors, &mitigations, &warnings,
			&p.ModelVersion, &p.GeneratedAt, &p.ValidUntil,
		); err != nil {
			return nil, err
		}

		json.Unmarshal([]byte(riskFactors), &p.RiskFactors)
		json.Unmarshal([]byte(mitigations), &p.Mitigations)
		json.Unmarshal([]byte(warnings), &p.EarlyWarnings)

		predictions = append(predictions, &p)
	}

	return predictions, rows.Err()
}

// SaveAssessment appends a risk assessment to the audit trail.
func (r *SQLRepository) SaveAssessment(ctx context.Context, a *domain.RiskAssessment) error {
	if a == nil || a.ID == "" {
		return fmt.Errorf("%w: assessment with id is required", ErrInvalidInput)
	}

	keyFactors, _ := json.Marshal(a.KeyFactors)
	mitigations, _ := json.Marshal(a.Mitigations)

	query := `
		INSERT INTO assessments (
			id, instruction_id, credit_score, liquidity_score,
			operational_score, market_score, composite_score, grade,
			key_factors, mitigations, alert_level, assessed_at, valid_until
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		a.ID, a.InstructionID, a.CreditScore, a.LiquidityScore,
		a.OperationalScore, a.MarketScore, a.CompositeScore, a.Grade,
		string(keyFactors), string(mitigations), a.AlertLevel,
		a.AssessedAt, a.ValidUntil,
	)
	return err
}

// ListAssessments retrieves assessments for an instruction, newest first.
func (r *SQLRepository) ListAssessments(ctx context.Context, instructionID string, limit int) ([]*domain.RiskAssessment, error) {
	if instructionID == "" {
		return nil, fmt.Errorf("%w: instructionID is required", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, instruction_id, credit_score, liquidity_score,
			   operational_score, market_score, composite_score, grade,
			   key_factors, mitigations, alert_level, assessed_at, valid_until
		FROM assessments
		WHERE instruction_id = ?
		ORDER BY assessed_at DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), instructionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assessments []*domain.RiskAssessment
	for rows.Next() {
		var a domain.RiskAssessment
		var keyFactors, mitigations string

		if err := rows.Scan(
			&a.ID, &a.InstructionID, &a.CreditScore, &a.LiquidityScore,
			&a.OperationalScore, &a.MarketScore, &a.CompositeScore, &a.Grade,
			&keyFactors, &mitigations, &a.AlertLevel,
			&a.AssessedAt, &a.ValidUntil,
		); err != nil {
			return nil, err
		}

		json.Unmarshal([]byte(keyFactors), &a.KeyFactors)
		json.Unmarshal([]byte(mitigations), &a.Mitigations)

		assessments = append(assessments, &a)
	}

	return assessments, rows.Err()
}

// SaveDelay stores a delay record, updating resolution on replay.
func (r *SQLRepository) SaveDelay(ctx context.Context, d *domain.SettlementDelay) error {
	if d == nil || d.ID == "" {
		return fmt.Errorf("%w: delay with id is required", ErrInvalidInput)
	}

	mitigations, _ := json.Marshal(d.Mitigations)

	query := `
		INSERT INTO delays (
			id, instruction_id, milestone_id, milestone_type, cause,
			estimated_hours, actual_hours, severity, mitigations,
			raised_at, resolved_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			actual_hours = excluded.actual_hours,
			resolved_at = excluded.resolved_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		d.ID, d.InstructionID, d.MilestoneID, d.MilestoneType, d.Cause,
		d.EstimatedHours, d.ActualHours, d.Severity, string(mitigations),
		d.RaisedAt, d.ResolvedAt,
	)
	return err
}

// ListDelays retrieves the delay history of an instruction, newest first.
func (r *SQLRepository) ListDelays(ctx context.Context, instructionID string) ([]*domain.SettlementDelay, error) {
	if instructionID == "" {
		return nil, fmt.Errorf("%w: instructionID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, instruction_id, milestone_id, milestone_type, cause,
			   estimated_hours, actual_hours, severity, mitigations,
			   raised_at, resolved_at
		FROM delays
		WHERE instruction_id = ?
		ORDER BY raised_at DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), instructionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var delays []*domain.SettlementDelay
	for rows.Next() {
		var d domain.SettlementDelay
		var mitigations string
		var resolvedAt sql.NullTime

		if err := rows.Scan(
			&d.ID, &d.InstructionID, &d.MilestoneID, &d.MilestoneType, &d.Cause,
			&d.EstimatedHours, &d.ActualHours, &d.Severity, &mitigations,
			&d.RaisedAt, &resolvedAt,
		); err != nil {
			return nil, err
		}

		json.Unmarshal([]byte(mitigations), &d.Mitigations)
		if resolvedAt.Valid {
			t := resolvedAt.Time
			d.ResolvedAt = &t
		}

		delays = append(delays, &d)
	}

	return delays, rows.Err()
}

// SaveAlert stores an alert, updating its lifecycle fields on replay.
func (r *SQLRepository) SaveAlert(ctx context.Context, a *domain.SettlementAlert) error {
	if a == nil || a.ID == "" {
		return fmt.Errorf("%w: alert with id is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO alerts (
			id, instruction_id, milestone_id, type, severity, message,
			status, created_at, acknowledged_at, resolved_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			acknowledged_at = excluded.acknowledged_at,
			resolved_at = excluded.resolved_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		a.ID, a.InstructionID, a.MilestoneID, a.Type, a.Severity,
		a.Message, a.Status, a.CreatedAt, a.AcknowledgedAt, a.ResolvedAt,
	)
	return err
}

// ListAlerts retrieves alerts created since a point in time, newest first.
func (r *SQLRepository) ListAlerts(ctx context.Context, since time.Time, limit int) ([]*domain.SettlementAlert, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, instruction_id, milestone_id, type, severity, message,
			   status, created_at, acknowledged_at, resolved_at
		FROM alerts
		WHERE created_at >= ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []*domain.SettlementAlert
	for rows.Next() {
		var a domain.SettlementAlert
		var acknowledgedAt, resolvedAt sql.NullTime

		if err := rows.Scan(
			&a.ID, &a.InstructionID, &a.MilestoneID, &a.Type, &a.Severity,
			&a.Message, &a.Status, &a.CreatedAt, &acknowledgedAt, &resolvedAt,
		); err != nil {
			return nil, err
		}

		if acknowledgedAt.Valid {
			t := acknowledgedAt.Time
			a.AcknowledgedAt = &t
		}
		if resolvedAt.Valid {
			t := resolvedAt.Time
			a.ResolvedAt = &t
		}

		alerts = append(alerts, &a)
	}

	return alerts, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
