package domain

import (
	"context"
)

// EntryRecorder records and lists symptom entries for users
type EntryRecorder interface {
	RecordEntry(ctx context.Context, userID, date string, answers Answers, notes string) (*SymptomEntry, error)
	ListEntries(ctx context.Context, userID string, limit int) ([]*SymptomEntry, error)
}

// ScoreCalculator converts a completed answer set into a score result
type ScoreCalculator interface {
	CalculateScore(answers Answers) (*ScoreResult, error)
}

// HealthChecker is implemented by infrastructure that can report its own health
type HealthChecker interface {
	Health(ctx context.Context) error
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetServerConfig() *ServerConfig
	GetDatabaseConfig() *DatabaseConfig
	Reload() error
	Validate() error
	GetDatabaseURL() string
	IsProduction() bool
	IsDevelopment() bool
}
