package domain

import (
	"context"
	"time"
)

// Repository is the durable audit sink. Authoritative state is in memory;
// persistence happens asynchronously off the event bus and must never block
// the scoring path.
type Repository interface {
	// Instruction audit trail
	SaveInstruction(ctx context.Context, instr *SettlementInstruction) error
	GetInstruction(ctx context.Context, id string) (*SettlementInstruction, error)

	// Prediction history (append-only)
	SavePrediction(ctx context.Context, p *FailurePrediction) error
	ListPredictions(ctx context.Context, instructionID string, limit int) ([]*FailurePrediction, error)

	// Risk assessments (append-only, for trend analysis)
	SaveAssessment(ctx context.Context, a *RiskAssessment) error
	ListAssessments(ctx context.Context, instructionID string, limit int) ([]*RiskAssessment, error)

	// Delays and alerts
	SaveDelay(ctx context.Context, d *SettlementDelay) error
	ListDelays(ctx context.Context, instructionID string) ([]*SettlementDelay, error)
	SaveAlert(ctx context.Context, a *SettlementAlert) error
	ListAlerts(ctx context.Context, since time.Time, limit int) ([]*SettlementAlert, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
