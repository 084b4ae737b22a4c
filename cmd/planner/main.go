// Package main provides the entrypoint for the fieldroute planner: a JSON
// plan request in, a JSON plan result out. The planning core itself never
// exits the process; this harness maps planner errors onto a structured
// error document and a non-zero exit code.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/fieldroute/fieldroute/internal/database"
	"github.com/fieldroute/fieldroute/internal/planner"
	"github.com/fieldroute/fieldroute/internal/telemetry"
	"github.com/fieldroute/fieldroute/internal/travel"
	"github.com/fieldroute/fieldroute/internal/travel/openmatrix"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// errorDoc is the structured error payload written on failure.
type errorDoc struct {
	Kind            string   `json:"kind"`
	Message         string   `json:"message"`
	Recommendations []string `json:"recommendations,omitempty"`
}

func main() {
	const serviceName = "fieldroute-planner"

	log := zerolog.New(os.Stderr).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().Str("build_time", BuildTime).Msg("starting fieldroute planner")

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}
	otlpEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otlpEndpoint == "" {
		otlpEndpoint = "localhost:4317"
	}

	ctx := context.Background()
	tp, err := telemetry.Init(ctx, telemetry.Config{
		Version:      Version,
		Environment:  env,
		OTLPEndpoint: otlpEndpoint,
		Enabled:      os.Getenv("OTEL_ENABLED") == "true",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	req, err := readRequest(os.Args[1:])
	if err != nil {
		fail(log, planner.KindInvalidRequest, err)
	}

	estimator := buildEstimator(ctx, log)
	pl := planner.New(planner.Config{
		Estimator:        estimator,
		Logger:           log,
		Instruments:      tp.Instruments,
		SolverTimeBudget: durationEnv("PLANNER_SOLVER_TIME_BUDGET", 60*time.Second),
	})

	planCtx := ctx
	if deadline := durationEnv("PLANNER_DEADLINE", 0); deadline > 0 {
		var cancel context.CancelFunc
		planCtx, cancel = context.WithTimeout(ctx, deadline)
		defer cancel()
	}

	result, err := pl.Plan(planCtx, req)
	if err != nil {
		var pe *planner.Error
		if errors.As(err, &pe) {
			failDoc(log, errorDoc{
				Kind:            string(pe.Kind),
				Message:         pe.Message,
				Recommendations: pe.Recommendations,
			}, err)
		}
		fail(log, planner.KindSolverError, err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		log.Fatal().Err(err).Msg("failed to encode plan result")
	}
}

// readRequest loads the plan request from the file named on the command
// line, or from stdin when the argument is missing or "-".
func readRequest(args []string) (planner.PlanRequest, error) {
	var in io.Reader = os.Stdin
	if len(args) > 0 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return planner.PlanRequest{}, fmt.Errorf("open request file: %w", err)
		}
		defer f.Close() //nolint:errcheck // read-only file
		in = f
	}

	var req planner.PlanRequest
	dec := json.NewDecoder(in)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return planner.PlanRequest{}, fmt.Errorf("decode plan request: %w", err)
	}
	return req, nil
}

// buildEstimator wires the travel-time oracle: the external matrix provider
// when an API key is configured, the speed-based estimator otherwise, both
// behind the in-memory LRU cache and optional Redis/Postgres stores.
func buildEstimator(ctx context.Context, log zerolog.Logger) travel.Estimator {
	var inner travel.Estimator = travel.SpeedEstimator{}
	if apiKey := os.Getenv("ORS_API_KEY"); apiKey != "" {
		inner = openmatrix.NewClient(openmatrix.ClientConfig{
			APIKey:  apiKey,
			BaseURL: os.Getenv("ORS_BASE_URL"),
			Logger:  log,
		})
		log.Info().Msg("using external matrix provider for travel times")
	}

	var store travel.Store
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr})
		store = travel.NewRedisStore(travel.RedisStoreConfig{Client: client})
		log.Info().Str("addr", addr).Msg("travel cache backed by redis")
	} else if os.Getenv("DATABASE_URL") != "" {
		pool, err := database.Connect(ctx, database.ConfigFromEnv())
		if err != nil {
			log.Warn().Err(err).Msg("postgres travel store unavailable, continuing without it")
		} else {
			store = travel.NewPostgresStore(pool)
			log.Info().Msg("travel cache backed by postgres")
		}
	}

	capacity, _ := parseInt(os.Getenv("TRAVEL_CACHE_CAPACITY"))
	return travel.NewCache(travel.CacheConfig{
		Inner:    inner,
		Capacity: capacity,
		Store:    store,
		Logger:   log,
	})
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func parseInt(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}

func fail(log zerolog.Logger, kind planner.Kind, err error) {
	failDoc(log, errorDoc{Kind: string(kind), Message: err.Error()}, err)
}

func failDoc(log zerolog.Logger, doc errorDoc, err error) {
	log.Error().Err(err).Str("kind", doc.Kind).Msg("planning failed")
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(doc) //nolint:errcheck // best effort error document
	os.Exit(1)
}
