// Conveyor Worker — выполняет jobs.
//
// Worker:
//   - Получает уведомления о новых jobs из RabbitMQ
//   - Периодически опрашивает базу на SCHEDULED jobs (fallback)
//   - Захватывает job атомарным CAS-переходом SCHEDULED → PENDING
//   - Выполняет шаги строго последовательно
//   - Закрывает jobs, брошенные упавшими воркерами
//
// Workers масштабируются горизонтально.
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/secret"
	"github.com/shaiso/Conveyor/internal/telemetry"
	"github.com/shaiso/Conveyor/internal/worker"
)

var (
	startTime = time.Now()
	jobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conveyor_worker_jobs_total",
		Help: "Jobs finished by this worker, labelled by terminal status",
	}, []string{"status"})
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger("conveyor-worker")
	logger.Info("starting conveyor-worker")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
	pool, err := repo.NewPool(ctx)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	// Кодек значений переменных
	codec, err := secret.NewCodec(secret.Key())
	if err != nil {
		logger.Error("failed to create secret codec", "error", err)
		os.Exit(1)
	}

	// Создаём репозитории
	jobRepo := repo.NewJobRepo(pool)
	variableRepo := repo.NewVariableRepo(pool)

	// RabbitMQ
	var publisher *mq.Publisher
	mqConn, err := mq.NewConnection(mq.URL(), logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, running in polling-only mode", "error", err)
	} else {
		defer mqConn.Close()
		logger.Info("RabbitMQ connected")

		// Создаём топологию
		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}

		publisher = mq.NewPublisher(mqConn, logger)
	}

	// Создаём worker
	w := worker.New(worker.Config{
		Jobs:          jobRepo,
		Globals:       variableRepo,
		Publisher:     publisher,
		Conn:          mqConn,
		Codec:         codec,
		PollInterval:  durationEnv(logger, "WORKER_POLL_INTERVAL"),
		StaleAfter:    durationEnv(logger, "WORKER_STALE_AFTER"),
		StepTimeout:   durationEnv(logger, "WORKER_STEP_TIMEOUT"),
		WorkspaceRoot: os.Getenv("WORKER_WORKSPACE_ROOT"),
		OnJobFinished: func(status domain.JobStatus) {
			jobsTotal.WithLabelValues(string(status)).Inc()
		},
		Logger: logger,
	})

	// Запускаем worker
	if err := w.Start(ctx); err != nil {
		logger.Error("failed to start worker", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"status": "ok",
			"uptime": time.Since(startTime).Round(time.Second).String(),
		})
	})
	mux.Handle("GET /metrics", promhttp.Handler())

	port := ":8082"
	if v := os.Getenv("WORKER_PORT"); v != "" {
		port = ":" + v
	}

	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	// Останавливаем worker
	w.Stop()
	logger.Info("conveyor-worker stopped")
}

// durationEnv читает duration из окружения.
// Пустое или некорректное значение — 0, сработает default воркера.
func durationEnv(logger *slog.Logger, name string) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return 0
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		logger.Warn("invalid duration in environment, using default", "name", name, "value", v)
		return 0
	}
	return d
}
