// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads service and sync-client configuration from the
// environment, with an optional YAML file for the sync client.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Embedding backends the service knows how to reach.
const (
	BackendHTTP   = "http"
	BackendOpenAI = "openai"
)

// ServiceConfig configures the knowledge store service.
type ServiceConfig struct {
	Port           string `validate:"required"`
	DataDir        string `validate:"required"`
	BackupDir      string `validate:"required"`
	CollectionName string `validate:"required"`

	EmbeddingBackend    string `validate:"oneof=http openai"`
	EmbeddingServiceURL string
	OpenAIAPIKey        string
	EmbeddingModel      string
	EmbeddingDimension  int     `validate:"gt=0"`
	ConfidenceThreshold float32 `validate:"gt=0,lte=2"`

	OTLPEndpoint string
}

// RequiredEnv lists the env vars the health battery treats as mandatory.
func (c *ServiceConfig) RequiredEnv() []string {
	if c.EmbeddingBackend == BackendOpenAI {
		return []string{"RAG_DATA_DIR", "OPENAI_API_KEY"}
	}
	return []string{"RAG_DATA_DIR", "EMBEDDING_SERVICE_URL"}
}

// LoadService reads the service configuration from the environment and
// validates it.
func LoadService() (*ServiceConfig, error) {
	cfg := &ServiceConfig{
		Port:                envOr("RAG_SERVICE_PORT", "12200"),
		DataDir:             os.Getenv("RAG_DATA_DIR"),
		BackupDir:           envOr("RAG_BACKUP_DIR", "/tmp/rag-backups"),
		CollectionName:      envOr("RAG_COLLECTION_NAME", "once_human_knowledge"),
		EmbeddingBackend:    envOr("EMBEDDING_BACKEND", BackendHTTP),
		EmbeddingServiceURL: os.Getenv("EMBEDDING_SERVICE_URL"),
		OpenAIAPIKey:        os.Getenv("OPENAI_API_KEY"),
		EmbeddingModel:      os.Getenv("EMBEDDING_MODEL"),
		EmbeddingDimension:  envInt("EMBEDDING_DIMENSION", 384),
		ConfidenceThreshold: envFloat("VERIFIED_CONFIDENCE_THRESHOLD", 0.5),
		OTLPEndpoint:        os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid service configuration: %w", err)
	}
	switch cfg.EmbeddingBackend {
	case BackendHTTP:
		if cfg.EmbeddingServiceURL == "" {
			return nil, fmt.Errorf("EMBEDDING_SERVICE_URL is required for the http embedding backend")
		}
	case BackendOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for the openai embedding backend")
		}
	}
	return cfg, nil
}

// SyncConfig configures one reconciliation run.
type SyncConfig struct {
	LocalURL       string `yaml:"local_url" validate:"required,url"`
	RemoteURL      string `yaml:"remote_url" validate:"required,url"`
	TimeoutSeconds int    `yaml:"timeout_seconds" validate:"gte=0"`
}

// LoadSync builds the sync configuration from the environment, then
// overlays the optional YAML file at path, then applies flag overrides
// supplied by the caller (empty strings leave the value unchanged).
func LoadSync(path, localOverride, remoteOverride string) (*SyncConfig, error) {
	cfg := &SyncConfig{
		LocalURL:       envOr("LOCAL_RAG_URL", "http://localhost:12200"),
		RemoteURL:      os.Getenv("REMOTE_RAG_URL"),
		TimeoutSeconds: envInt("SYNC_TIMEOUT_SECONDS", 120),
	}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if localOverride != "" {
		cfg.LocalURL = localOverride
	}
	if remoteOverride != "" {
		cfg.RemoteURL = remoteOverride
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid sync configuration: %w", err)
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float32) float32 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			return float32(f)
		}
	}
	return fallback
}
