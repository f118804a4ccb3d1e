package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/bookinterview/coordinator/internal/config"
	"github.com/bookinterview/coordinator/internal/httpapi"
	"github.com/bookinterview/coordinator/internal/llmtransport"
	"github.com/bookinterview/coordinator/internal/supervisor"
)

var (
	httpAddr string
	envFile  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the interview coordinator HTTP server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&httpAddr, "addr", getEnv("HTTP_ADDR", ":8080"), "HTTP listen address")
	serveCmd.Flags().StringVar(&envFile, "env-file", getEnv("ENV_FILE", ".env"), "Path to a .env file to load before startup")
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := godotenv.Load(envFile); err != nil {
		slog.Warn("could not load env file, continuing with existing environment", "path", envFile, "error", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	provider := buildProvider()

	sup, err := supervisor.New(cfg, provider)
	if err != nil {
		return err
	}

	if mode := getEnv("GIN_MODE", "release"); mode != "" {
		gin.SetMode(mode)
	}

	promReg := prometheus.NewRegistry()
	server := httpapi.NewServer(sup, promReg, fullVersion())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("interviewd starting", "addr", httpAddr, "version", fullVersion())
	if err := server.Run(ctx, httpAddr); err != nil {
		return err
	}
	slog.Info("interviewd stopped")
	return nil
}

func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Builtin()
	}
	return config.Load(configPath)
}

func buildProvider() llmtransport.Provider {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		slog.Warn("ANTHROPIC_API_KEY not set: LLM agents will use deterministic fallbacks only")
		return nil
	}
	return llmtransport.New(apiKey)
}
