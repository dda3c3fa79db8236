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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/scheduler"
	"github.com/shaiso/Conveyor/internal/secret"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// leaderLockKey — ключ advisory lock для выбора лидера.
// Tick выполняет только один экземпляр планировщика.
const leaderLockKey int64 = 424243

const defaultTickInterval = 30 * time.Second

var (
	startTime   = time.Now()
	jobsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conveyor_scheduler_jobs_created_total",
		Help: "Jobs created from due schedules",
	})
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger("conveyor-scheduler")
	logger.Info("starting conveyor-scheduler")

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

	// RabbitMQ: будим воркеров после создания job по расписанию
	var publisher *mq.Publisher
	mqConn, err := mq.NewConnection(mq.URL(), logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, workers rely on polling", "error", err)
	} else {
		defer mqConn.Close()
		logger.Info("RabbitMQ connected")

		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}

		publisher = mq.NewPublisher(mqConn, logger)
	}

	// Создаём scheduler
	sched := scheduler.New(scheduler.Config{
		ScheduleRepo: repo.NewScheduleRepo(pool),
		TaskRepo:     repo.NewTaskRepo(pool),
		JobRepo:      repo.NewJobRepo(pool),
		Publisher:    publisher,
		Codec:        codec,
		Logger:       logger,
		OnJobCreated: jobsCreated.Inc,
	})

	// Tick loop с выбором лидера
	go tickLoop(ctx, pool, sched, logger)

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

	port := ":8081"
	if v := os.Getenv("SCHEDULER_PORT"); v != "" {
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
	logger.Info("conveyor-scheduler stopped")
}

// tickLoop выполняет тики планировщика, пока экземпляр остаётся лидером.
//
// Лидерство — advisory lock на выделенном соединении: lock в Postgres
// принадлежит сессии, поэтому соединение не возвращается в пул, пока
// экземпляр лидирует. Потеря соединения означает потерю лидерства.
func tickLoop(ctx context.Context, pool *pgxpool.Pool, sched *scheduler.Scheduler, logger *slog.Logger) {
	interval := defaultTickInterval
	if v := os.Getenv("SCHEDULER_TICK_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			logger.Warn("invalid SCHEDULER_TICK_INTERVAL, using default", "value", v)
		} else {
			interval = d
		}
	}

	tk := time.NewTicker(interval)
	defer tk.Stop()

	var leaderConn *pgxpool.Conn
	defer func() {
		if leaderConn != nil {
			// ctx уже отменён — отпускаем lock на свежем контексте
			_, _ = leaderConn.Exec(context.Background(), "select pg_advisory_unlock($1)", leaderLockKey)
			leaderConn.Release()
		}
	}()

	for {
		select {
		case <-tk.C:
			// пытаемся стать лидером
			if leaderConn == nil {
				conn, err := pool.Acquire(ctx)
				if err != nil {
					logger.Error("failed to acquire connection for leader lock", "error", err)
					continue
				}

				var ok bool
				if err := conn.QueryRow(ctx, "select pg_try_advisory_lock($1)", leaderLockKey).Scan(&ok); err != nil {
					logger.Error("leader lock attempt failed", "error", err)
					conn.Release()
					continue
				}
				if !ok {
					// не лидер — пропускаем тик
					conn.Release()
					continue
				}

				leaderConn = conn
				logger.Info("became scheduler leader")
			}

			// Соединение с lock могло умереть — тогда лидерство потеряно
			if err := leaderConn.Ping(ctx); err != nil {
				logger.Warn("leader connection lost, giving up leadership", "error", err)
				leaderConn.Release()
				leaderConn = nil
				continue
			}

			if err := sched.Tick(ctx); err != nil {
				logger.Error("scheduler tick failed", "error", err)
			}

		case <-ctx.Done():
			return
		}
	}
}
