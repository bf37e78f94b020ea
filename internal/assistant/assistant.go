// Package assistant assembles the question-answering pipeline and the
// database connectors from configuration. Both binaries share it.
package assistant

import (
	"fmt"
	"log/slog"

	"github.com/askdb/askdb/internal/config"
	"github.com/askdb/askdb/internal/database"
	"github.com/askdb/askdb/internal/database/duckdb"
	"github.com/askdb/askdb/internal/database/postgres"
	"github.com/askdb/askdb/internal/llm"
	"github.com/askdb/askdb/internal/nl2sql"
	"github.com/askdb/askdb/internal/pipeline"
)

// NewPipeline builds two models over the configured provider. SQL synthesis
// always samples at temperature 0; summarization uses the configured value.
func NewPipeline(cfg config.AIConfig, logger *slog.Logger) (*pipeline.Pipeline, error) {
	base := llm.Config{
		Provider:    cfg.Provider,
		BaseURL:     cfg.BaseURL,
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Timeout:     cfg.Timeout,
		Retries:     cfg.Retries,
	}

	sqlConfig := base
	sqlConfig.Temperature = 0
	sqlModel, err := llm.New(sqlConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("build sql model: %w", err)
	}
	answerModel, err := llm.New(base, logger)
	if err != nil {
		return nil, fmt.Errorf("build answer model: %w", err)
	}
	return pipeline.New(nl2sql.NewSynthesizer(sqlModel), nl2sql.NewSummarizer(answerModel), logger), nil
}

func NewRegistry(cfg config.DatabaseConfig) *database.Registry {
	registry := database.NewRegistry()
	registry.Register(postgres.DriverName, postgres.NewConnector(postgres.PoolConfig{
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, cfg.SchemaSampleRows))
	registry.Register(duckdb.DriverName, duckdb.NewConnector(cfg.SchemaSampleRows))
	return registry
}

func DefaultDescriptor(cfg config.DatabaseConfig) database.Descriptor {
	return database.Descriptor{
		Driver:   cfg.Driver,
		Host:     cfg.Host,
		Port:     cfg.Port,
		User:     cfg.User,
		Password: cfg.Password,
		Name:     cfg.Name,
		SSLMode:  cfg.SSLMode,
	}
}
