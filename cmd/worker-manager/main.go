// cmd/worker-manager/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"loan-eligibility/internal/api"
	"loan-eligibility/internal/artifacts"
	"loan-eligibility/internal/common/camunda"
	"loan-eligibility/internal/common/config"
	"loan-eligibility/internal/common/database"
	"loan-eligibility/internal/common/logger"
	"loan-eligibility/internal/common/observability"
	"loan-eligibility/internal/common/validation"
	"loan-eligibility/internal/history"
	"loan-eligibility/internal/prediction"
	"loan-eligibility/internal/scoring"
	"loan-eligibility/pkg/registry"

	gla "loan-eligibility/internal/workers/loan/generate-loan-advice"
	ple "loan-eligibility/internal/workers/loan/predict-loan-eligibility"
	rlp "loan-eligibility/internal/workers/loan/record-loan-prediction"
	vla "loan-eligibility/internal/workers/loan/validate-loan-application"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	zapLog := logger.New("info", "console")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	zapLog = logger.NewWithOutput(cfg.Logging.Level, cfg.Logging.Format, []string{cfg.Logging.Output})
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting loan eligibility service...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Load model artifacts ---
	mode, err := prediction.ParseEncodingMode(cfg.Prediction.EncodingMode)
	if err != nil {
		zapLog.Fatal("invalid prediction config", zap.Error(err))
	}
	referencePath := ""
	if mode == prediction.ModeReference {
		referencePath = cfg.Artifacts.ReferenceData
	}
	bundle, err := artifacts.Load(cfg.Artifacts.Dir, referencePath)
	if err != nil {
		zapLog.Fatal("model artifacts failed to load", zap.Error(err))
	}
	if err := bundle.SetDefaultVariant(cfg.Artifacts.DefaultVariant); err != nil {
		zapLog.Fatal("configured default variant is not loaded", zap.Error(err))
	}
	predictor, err := prediction.NewPredictor(bundle, prediction.Options{
		Mode:   mode,
		Strict: cfg.Prediction.StrictSchema,
	}, log)
	if err != nil {
		zapLog.Fatal("predictor initialization failed", zap.Error(err))
	}
	zapLog.Info("Model artifacts loaded",
		zap.String("schemaVersion", predictor.SchemaVersion()),
		zap.Strings("variants", bundle.Variants()),
		zap.String("defaultVariant", predictor.DefaultVariant()),
		zap.String("encodingMode", string(mode)),
	)

	// --- Init Redis with retry; the cache is optional ---
	var redisClient *database.RedisClient
	if cfg.Database.Redis.Enabled && cfg.Database.Redis.Address != "" {
		err = retryWithBackoff(func() error {
			var err error
			redisClient, err = database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			return redisClient.Ping(ctx)
		}, 5, 2*time.Second, zapLog, "Redis connection")
		if err != nil {
			zapLog.Warn("redis unavailable, serving without prediction cache", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close()
			zapLog.Info("Redis connected successfully")
		}
	}
	var cache *redis.Client
	if redisClient != nil {
		cache = redisClient.GetClient()
	}

	service := scoring.NewService(predictor, cache, config.GetDuration(cfg.Prediction.CacheTTL), obs, log)
	if _, err := service.PurgeStale(ctx); err != nil {
		zapLog.Warn("stale prediction cache entries not purged", zap.Error(err))
	}

	// --- Record stores ---
	pg, esClient := connectStores(ctx, cfg, zapLog)
	if pg != nil {
		defer pg.Close()
	}

	// --- HTTP API ---
	apiHandler, err := api.NewHandler(service, log)
	if err != nil {
		zapLog.Fatal("api handler initialization failed", zap.Error(err))
	}
	var records api.RecordReader
	var search api.RecordSearcher
	if pg != nil {
		records = history.NewStore(pg.DB)
	}
	if esClient != nil {
		search = history.NewSearcher(esClient)
	}
	apiHandler.WithHistory(records, search)

	server := api.NewServer(cfg.HTTP, apiHandler, log)
	go func() {
		if err := server.Start(); err != nil {
			zapLog.Fatal("http server failed", zap.Error(err))
		}
	}()

	// --- Zeebe workers ---
	var camundaClient *camunda.Client
	var jobWorkers []worker.JobWorker
	if cfg.Camunda.Enabled {
		camundaClient, jobWorkers = startWorkers(cfg, service, pg, esClient, log, zapLog)
	} else {
		zapLog.Info("camunda disabled, running the HTTP API only")
	}

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, jw := range jobWorkers {
		jw.Close()
		jw.AwaitClose()
	}
	if camundaClient != nil {
		if err := camundaClient.Close(); err != nil {
			zapLog.Error("Error closing Zeebe client", zap.Error(err))
		}
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping http server", zap.Error(err))
	}

	zapLog.Info("Loan eligibility service stopped gracefully")
}

// connectStores opens Postgres and Elasticsearch. Postgres is required when
// enabled; Elasticsearch is best effort and comes back nil when unreachable
// or when Postgres is off.
func connectStores(ctx context.Context, cfg *config.Config, zapLog *zap.Logger) (*database.PostgresClient, *database.ElasticsearchClient) {
	if !cfg.Database.Postgres.Enabled {
		zapLog.Warn("postgres disabled, predictions will not be recorded")
		return nil, nil
	}

	var pg *database.PostgresClient
	err := retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	if err := pg.Migrate(ctx); err != nil {
		zapLog.Fatal("postgres migration failed", zap.Error(err))
	}
	zapLog.Info("PostgreSQL connected successfully")

	var esClient *database.ElasticsearchClient
	if cfg.Database.Elasticsearch.Enabled && cfg.Database.Elasticsearch.GetURL() != "" {
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping()
		}, 5, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Warn("elasticsearch unavailable, predictions will not be indexed", zap.Error(err))
			esClient = nil
		} else {
			zapLog.Info("Elasticsearch connected successfully")
			if err := esClient.EnsureIndex(ctx); err != nil {
				zapLog.Warn("prediction index not created, relying on dynamic mapping", zap.Error(err))
			}
		}
	}
	return pg, esClient
}

// startWorkers connects to Zeebe and opens the four loan job workers.
func startWorkers(cfg *config.Config, service *scoring.Service, pg *database.PostgresClient, esClient *database.ElasticsearchClient, log logger.Logger, zapLog *zap.Logger) (*camunda.Client, []worker.JobWorker) {
	var camundaClient *camunda.Client
	err := retryWithBackoff(func() error {
		var err error
		camundaClient, err = camunda.NewClientWithConfig(camunda.FromConfig(cfg.Camunda))
		return err
	}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected successfully")
	zeebeClient := camundaClient.GetClient()

	reg, err := registry.LoadRegistry(cfg.Registry.Path)
	if err != nil {
		zapLog.Fatal("activity registry failed to load", zap.String("path", cfg.Registry.Path), zap.Error(err))
	}

	var jobWorkers []worker.JobWorker
	add := func(jw worker.JobWorker) {
		if jw != nil {
			jobWorkers = append(jobWorkers, jw)
		}
	}

	// --- 1. validate-loan-application ---
	{
		var inputSchema *validation.SchemaValidator
		if activity, err := reg.FindByTaskType(vla.TaskType); err == nil {
			inputSchema, err = activity.InputValidator()
			if err != nil {
				zapLog.Fatal("invalid registry schema", zap.Error(err))
			}
		} else {
			zapLog.Warn("activity not registered, skipping variable schema check", zap.String("taskType", vla.TaskType))
		}
		wcfg := config.GetWorkerConfig(cfg, vla.TaskType)
		handler, err := vla.NewHandler(&vla.Config{Timeout: config.GetDuration(wcfg.Timeout)}, inputSchema, log)
		if err != nil {
			zapLog.Fatal("failed to create validate-loan-application handler", zap.Error(err))
		}
		add(camunda.StartWorker(zeebeClient, vla.TaskType, wcfg, handler.Handle, log))
	}

	// --- 2. predict-loan-eligibility ---
	{
		wcfg := config.GetWorkerConfig(cfg, ple.TaskType)
		handler := ple.NewHandler(&ple.Config{Timeout: config.GetDuration(wcfg.Timeout)}, service, log)
		add(camunda.StartWorker(zeebeClient, ple.TaskType, wcfg, handler.Handle, log))
	}

	// --- 3. generate-loan-advice ---
	{
		wcfg := config.GetWorkerConfig(cfg, gla.TaskType)
		handler := gla.NewHandler(&gla.Config{Timeout: config.GetDuration(wcfg.Timeout)}, log)
		add(camunda.StartWorker(zeebeClient, gla.TaskType, wcfg, handler.Handle, log))
	}

	// --- 4. record-loan-prediction ---
	if pg != nil {
		wcfg := config.GetWorkerConfig(cfg, rlp.TaskType)
		handler := rlp.NewHandler(&rlp.Config{
			Timeout:      config.GetDuration(wcfg.Timeout),
			IndexEnabled: esClient != nil,
		}, pg.DB, esClient, log)
		add(camunda.StartWorker(zeebeClient, rlp.TaskType, wcfg, handler.Handle, log))
	} else {
		zapLog.Warn("postgres disabled, record-loan-prediction not started")
	}

	zapLog.Info("Loan workers registered", zap.Int("count", len(jobWorkers)))
	return camundaClient, jobWorkers
}
