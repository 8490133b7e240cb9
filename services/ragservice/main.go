// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Qiiks/once-human-ai/pkg/config"
	"github.com/Qiiks/once-human-ai/pkg/logging"
	"github.com/Qiiks/once-human-ai/services/ragservice/embed"
	"github.com/Qiiks/once-human-ai/services/ragservice/observability"
	"github.com/Qiiks/once-human-ai/services/ragservice/routes"
	"github.com/Qiiks/once-human-ai/services/ragservice/store"

	// --- OpenTelemetry imports ---
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func initTracer(endpoint string) (func(context.Context), error) {
	ctx := context.Background()

	if endpoint == "" {
		endpoint = "otel-collector:4317"
	}
	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("rag-service")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

func buildEmbedder(cfg *config.ServiceConfig) embed.Embedder {
	if cfg.EmbeddingBackend == config.BackendOpenAI {
		return embed.NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.EmbeddingModel, cfg.EmbeddingDimension)
	}
	return embed.NewHTTPEmbedder(cfg.EmbeddingServiceURL, cfg.EmbeddingDimension)
}

func main() {
	logger, err := logging.New(logging.Config{Service: "rag-service", JSON: true, LogDir: os.Getenv("RAG_LOG_DIR")})
	if err != nil {
		log.Fatalf("failed to initialize logging: %v", err)
	}
	defer logger.Close()

	cfg, err := config.LoadService()
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	cleanup, err := initTracer(cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	embedder := buildEmbedder(cfg)

	ctx := context.Background()
	ks, err := store.Open(ctx, cfg.CollectionName, cfg.DataDir, embedder)
	if err != nil {
		log.Fatalf("failed to open knowledge store: %v", err)
	}
	handle := store.NewHandle(ks)

	metrics := observability.InitMetrics()
	if count, err := ks.Count(ctx); err == nil {
		metrics.SetDocumentCount(count)
	}

	retrieval := store.NewRetrievalService(handle, cfg.ConfidenceThreshold)
	health := store.NewHealthManager(handle, embedder, cfg.RequiredEnv())
	backups := store.NewBackupManager(handle, cfg.BackupDir, func(ctx context.Context, dataDir string) (store.ManagedStore, error) {
		return store.Open(ctx, cfg.CollectionName, dataDir, embedder)
	})

	router := gin.Default()
	router.Use(otelgin.Middleware("rag-service"))
	routes.SetupRoutes(router, handle, retrieval, health, backups, metrics)

	slog.Info("Knowledge store service starting", "port", cfg.Port, "data_dir", cfg.DataDir)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
