package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"github.com/vnmchuo/llm-batch/config"
	"github.com/vnmchuo/llm-batch/internal/batch"
	"github.com/vnmchuo/llm-batch/internal/cache"
	"github.com/vnmchuo/llm-batch/internal/invoker"
	"github.com/vnmchuo/llm-batch/internal/ledger"
	"github.com/vnmchuo/llm-batch/internal/metrics"
	"github.com/vnmchuo/llm-batch/internal/sink"
	"github.com/vnmchuo/llm-batch/internal/source"
	"github.com/vnmchuo/llm-batch/internal/telemetry"
	"github.com/vnmchuo/llm-batch/internal/tokenizer"
)

func main() {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	input := flag.String("input", cfg.InputPath, "prompt file, one prompt per line")
	output := flag.String("output", cfg.OutputPath, "JSON file to write results to")
	flag.Parse()

	os.Exit(run(cfg, *input, *output))
}

func run(cfg *config.Config, inputPath, outputPath string) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Init telemetry
	shutdownTracer, err := telemetry.InitTracer("llm-batch", cfg)
	if err != nil {
		log.Printf("failed to init tracer: %v", err)
		return 1
	}
	defer shutdownTracer()

	m := metrics.New()
	invokerOpts := []invoker.Option{
		invoker.WithTracer(otel.GetTracerProvider().Tracer("llm-batch/invoker")),
		invoker.WithMetrics(m),
	}

	// 3. Connect Redis (optional response cache)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Printf("[Cache] redis unreachable, running without cache: %v", err)
		} else {
			log.Println("[Cache] Redis connected")
			invokerOpts = append(invokerOpts, invoker.WithCache(cache.NewRedisCache(rdb, cfg.CacheTTL)))
		}
	}

	// 4. Token estimation (optional)
	if cfg.TokenEstimate {
		tk, err := tokenizer.New()
		if err != nil {
			log.Printf("token estimation disabled: %v", err)
		} else {
			invokerOpts = append(invokerOpts, invoker.WithTokenCounter(tk))
		}
	}

	// 5. Init invoker
	inv, err := invoker.New(cfg.Provider, invokerOpts...)
	if err != nil {
		log.Printf("failed to init invoker: %v", err)
		return 1
	}
	log.Printf("provider: %s", cfg.Provider)

	runnerOpts := []batch.Option{
		batch.WithTimestampMode(cfg.TimestampMode),
		batch.WithTracer(otel.GetTracerProvider().Tracer("llm-batch/batch")),
		batch.WithMetrics(m),
	}

	// 6. Connect PostgreSQL (optional run ledger)
	if cfg.PostgresDSN != "" {
		store, closeLedger, err := openLedger(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Printf("[Ledger] postgres unavailable, running without ledger: %v", err)
		} else {
			defer closeLedger()
			log.Println("[Ledger] PostgreSQL connected")
			runnerOpts = append(runnerOpts, batch.WithLedger(store, ledger.Run{
				Style:    string(cfg.Provider.Style),
				Endpoint: cfg.Provider.EndpointURL,
				Model:    cfg.Provider.Model,
			}))
		}
	}

	// 7. Run the batch
	runner := batch.NewRunner(inv, runnerOpts...)
	summary, err := runner.Execute(ctx, inputPath, outputPath)
	switch {
	case errors.Is(err, source.ErrSourceUnavailable):
		log.Printf("failed to read prompts: %v", err)
		return 1
	case errors.Is(err, sink.ErrSinkUnavailable):
		log.Printf("failed to save responses: %v", err)
		return 1
	case err != nil:
		log.Printf("batch failed: %v", err)
		return 1
	}

	for kind, n := range summary.Failed {
		log.Printf("  %s: %d", kind, n)
	}

	// 8. Export metrics
	if err := m.WriteTextfile(cfg.MetricsTextfile); err != nil {
		log.Printf("failed to write metrics textfile %s: %v", cfg.MetricsTextfile, err)
	}

	log.Printf("All done in %s! Results saved to %s", summary.Duration.Round(time.Millisecond), outputPath)
	return 0
}

// openLedger connects to PostgreSQL and makes sure the ledger tables exist.
func openLedger(ctx context.Context, dsn string) (ledger.Store, func(), error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	store := ledger.NewPostgresStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return store, pool.Close, nil
}
