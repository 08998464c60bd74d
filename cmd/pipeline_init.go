package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/saldang/grezzi/internal/normalize"
	"github.com/saldang/grezzi/internal/pipeline"
	"github.com/saldang/grezzi/internal/reach"
	"github.com/saldang/grezzi/internal/reconcile"
	"github.com/saldang/grezzi/internal/resilience"
	"github.com/saldang/grezzi/pkg/nocodb"
)

// pipelineEnv holds the registry, the NocoDB client and the driver
// needed by the clean and serve commands.
type pipelineEnv struct {
	Registry *reconcile.Registry
	NocoDB   nocodb.Client // nil without a token
	Driver   *pipeline.Driver
}

// initPipeline loads the CAP registry and builds the Driver. forward=false
// builds a driver that never contacts NocoDB.
func initPipeline(ctx context.Context, mode string, forward bool) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	reg, err := reconcile.LoadRegistry(ctx, cfg.Pipeline.ReferencePath)
	if err != nil {
		return nil, eris.Wrap(err, "load registry")
	}

	checker := reach.NewDNSChecker(nil, reach.Options{
		Concurrency: cfg.Reach.Concurrency,
		Timeout:     time.Duration(cfg.Reach.TimeoutMs) * time.Millisecond,
		RatePerSec:  cfg.Reach.RatePerSec,
	})

	env := &pipelineEnv{Registry: reg}

	var fw pipeline.Forwarder
	switch {
	case !forward:
		zap.L().Info("nocodb forwarding disabled")
	case cfg.NocoDB.Token == "":
		zap.L().Warn("nocodb token not set, forwarding disabled")
	default:
		env.NocoDB = newNocoDBClient()
		fw = env.NocoDB
	}

	env.Driver = pipeline.NewDriver(cfg.Pipeline,
		normalize.New(checker, cfg.Pipeline.Country),
		reconcile.NewReconciler(reg),
		fw,
	)
	return env, nil
}

func newNocoDBClient() nocodb.Client {
	policy := resilience.NewPolicy(cfg.NocoDB.MaxAttempts)
	policy.OnRetry = resilience.LogRetries("nocodb", "request")

	opts := []nocodb.Option{
		nocodb.WithBaseURL(cfg.NocoDB.BaseURL),
		nocodb.WithRetry(policy),
		nocodb.WithBatchSize(cfg.NocoDB.BatchSize),
	}
	if cfg.NocoDB.TimeoutSecs > 0 {
		opts = append(opts, nocodb.WithHTTPClient(&http.Client{
			Timeout: time.Duration(cfg.NocoDB.TimeoutSecs) * time.Second,
		}))
	}
	return nocodb.NewClient(cfg.NocoDB.Token, opts...)
}
