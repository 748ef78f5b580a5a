// Package mcp provides the MCP server implementation.
// This file contains the lightweight server that requires no external databases.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	litecfg "github.com/lars-symptom-tracker/internal/config"
	"github.com/lars-symptom-tracker/internal/domain"
	"github.com/lars-symptom-tracker/internal/entries"
	"github.com/lars-symptom-tracker/internal/logging"
	"github.com/lars-symptom-tracker/internal/service"
)

const (
	serverName    = "lars-symptom-tracker-lite"
	serverVersion = "v1.0.0"
)

// LiteServer is a lightweight MCP server that requires no external databases.
// Entries live in SQLite behind an in-memory read cache.
type LiteServer struct {
	config    *litecfg.LiteConfig
	mcpServer *mcp.Server
	store     entries.Store
	engine    *service.ScoreEngine
	entries   *service.EntryService
	logger    *logrus.Logger
}

// LiteServerOption is a functional option for LiteServer.
type LiteServerOption func(*LiteServer) error

// WithStore sets a custom entry store.
func WithStore(store entries.Store) LiteServerOption {
	return func(s *LiteServer) error {
		s.store = store
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *logrus.Logger) LiteServerOption {
	return func(s *LiteServer) error {
		s.logger = logger
		return nil
	}
}

// NewLiteServer creates a new lightweight MCP server instance.
func NewLiteServer(cfg *litecfg.LiteConfig, opts ...LiteServerOption) (*LiteServer, error) {
	server := &LiteServer{config: cfg}

	for _, opt := range opts {
		if err := opt(server); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	// stdout carries the protocol, so logs go to stderr
	if server.logger == nil {
		logger, err := logging.New(domain.LoggingConfig{
			Level:  cfg.LogLevel,
			Format: cfg.LogFormat,
			Output: "stderr",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
		server.logger = logger
	}

	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	if server.store == nil {
		sqlite, err := entries.NewSQLiteStore(cfg.EntriesDBPath())
		if err != nil {
			return nil, fmt.Errorf("failed to create entry store: %w", err)
		}
		cached, err := entries.NewCachedStore(sqlite, entries.CacheConfig{
			MaxUsers: cfg.CacheMaxUsers,
			TTL:      cfg.CacheTTL,
		}, server.logger)
		if err != nil {
			sqlite.Close()
			return nil, fmt.Errorf("failed to create entry cache: %w", err)
		}
		server.store = cached
	}

	engine, err := service.NewScoreEngine(server.logger, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create score engine: %w", err)
	}
	server.engine = engine
	server.entries = service.NewEntryService(server.store, engine, server.logger)

	server.mcpServer = mcp.NewServer(&mcp.Implementation{
		Name:    serverName,
		Version: serverVersion,
	}, nil)
	server.registerTools()

	server.logger.Info("Lite server initialized successfully")
	return server, nil
}

// Start serves MCP over stdio until ctx is cancelled or the client disconnects.
func (s *LiteServer) Start(ctx context.Context) error {
	s.logger.WithField("data_dir", s.config.DataDir).Info("Starting LARS symptom tracker MCP server (Lite)")

	if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}

// Close cleans up server resources.
func (s *LiteServer) Close() error {
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.WithError(err).Error("Failed to close entry store")
			return err
		}
	}
	return nil
}

// Store returns the entry store for external access.
func (s *LiteServer) Store() entries.Store {
	return s.store
}
