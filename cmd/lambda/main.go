package main

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/spf13/viper"

	"github.com/mlespinoza1/swarm/handler"
	"github.com/mlespinoza1/swarm/internal/app"
	"github.com/mlespinoza1/swarm/internal/config"
	"github.com/mlespinoza1/swarm/internal/integrations/huggingface"
	"github.com/mlespinoza1/swarm/internal/logging"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	v := viper.New()
	config.SetDefaults(v)
	v.Set("secrets.param_prefix", mustEnv("PARAM_PREFIX"))
	v.Set("swarm.agents", splitList(mustEnv("SWARM_AGENTS")))
	if table := os.Getenv("RUN_TABLE"); table != "" {
		v.Set("history.table", table)
	}
	v.Set("codegen.max_attempts", envInt("CODEGEN_MAX_ATTEMPTS", huggingface.DefaultMaxAttempts))
	v.Set("codegen.retry_delay_seconds", envInt("CODEGEN_RETRY_DELAY_SECONDS", 10))
	v.Set("logging.format", "json")

	cfg, err := config.Load(v)
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	logger := logging.New(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	// ---- Clients ----
	components, err := app.NewComponents(ctx, cfg, logger)
	if err != nil {
		slog.Error("failed to create clients", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	svc, err := app.NewService(components)
	if err != nil {
		slog.Error("failed to create gather service", "err", err)
		os.Exit(1)
	}

	h, err := handler.NewHandler(svc)
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
