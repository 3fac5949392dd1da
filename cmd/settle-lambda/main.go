// Command settle-lambda runs activations as an AWS Lambda function.
//
// Configuration comes from SETTLE_* environment variables, optionally layered
// over the YAML file named by SETTLE_CONFIG. SETTLE_EVENT selects the event
// shape: "activation" (default) for direct or Step Functions invocations,
// "apigateway" for API Gateway proxy requests.
package main

import (
	"context"
	"log/slog"
	"os"

	awslambda "github.com/aws/aws-lambda-go/lambda"

	"github.com/aretw0/settle/internal/cli"
	"github.com/aretw0/settle/internal/config"
	"github.com/aretw0/settle/pkg/adapters/lambda"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	cfg, err := config.NewLoader(os.Getenv("SETTLE_CONFIG")).Load()
	if err != nil {
		slog.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}
	logger, err := cli.NewLogger(os.Stderr, cfg.Logging)
	if err != nil {
		slog.Error("failed to create logger", "err", err)
		os.Exit(1)
	}

	// ---- Engine ----
	// The backend stays open for the lifetime of the execution environment.
	app, err := cli.Build(ctx, cfg, cli.WithLogger(logger))
	if err != nil {
		logger.Error("failed to build engine", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	h, err := lambda.NewHandler(app.Engine, lambda.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	switch event := os.Getenv("SETTLE_EVENT"); event {
	case "", "activation":
		awslambda.Start(h.Handle)
	case "apigateway":
		awslambda.Start(h.HandleAPIGateway)
	default:
		logger.Error("unknown event shape", "SETTLE_EVENT", event)
		os.Exit(1)
	}
}
