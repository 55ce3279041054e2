// The notifier consumes ride notifications from Kafka and maintains a
// bounded per-employee inbox in Redis, which the profile frontend polls.
// Delivery is at-least-once; inbox entries are idempotent to re-append.
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
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/example/commute-rides/internal/config"
	"github.com/example/commute-rides/internal/logging"
	"github.com/example/commute-rides/internal/models"
)

var (
	msgsConsumed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notifier_messages_consumed_total",
		Help: "Total notification messages consumed",
	})
	msgsInvalid = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notifier_messages_invalid_total",
		Help: "Total invalid messages received",
	})
	inboxWrites = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notifier_inbox_writes_total",
		Help: "Total successful inbox writes",
	})
	inboxErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notifier_inbox_errors_total",
		Help: "Total inbox write errors",
	})
)

func main() {
	cfg, err := config.LoadNotifierConfig()
	logger := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	inbox := &redisInbox{c: rc, limit: cfg.InboxLimit}

	go serveMetrics(cfg.MetricsAddr, rc, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.KafkaBrokers,
		Topic:   cfg.KafkaTopic,
		GroupID: cfg.KafkaGroup,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})
	defer func() {
		_ = r.Close()
		_ = rc.Close()
	}()

	logger.Info("notifier consuming", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers, "group", cfg.KafkaGroup)

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("shutting down notifier")
				return
			}
			logger.Warn("kafka read error", "error", err, "backoff", backoff)
			time.Sleep(backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second

		msgsConsumed.Inc()

		var n models.Notification
		if err := json.Unmarshal(m.Value, &n); err != nil || n.RecipientID == "" {
			msgsInvalid.Inc()
			logger.Warn("invalid notification message", "error", err)
			continue
		}

		if err := storeWithRetry(ctx, inbox, n, 3, 200*time.Millisecond); err != nil {
			inboxErrors.Inc()
			logger.Warn("inbox write failed", "recipient", n.RecipientID, "error", err)
			continue
		}
		inboxWrites.Inc()
	}
}

func serveMetrics(addr string, rc *redis.Client, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := rc.Ping(r.Context()).Err(); err != nil {
			http.Error(w, "redis not ready", 503)
			return
		}
		w.WriteHeader(200)
		w.Write([]byte("ready"))
	})
	logger.Info("metrics/health listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Warn("metrics server stopped", "error", err)
	}
}

// Inbox defines the small subset of operations we need for tests and
// production.
type Inbox interface {
	Push(ctx context.Context, empID string, payload []byte) error
}

type redisInbox struct {
	c     *redis.Client
	limit int
}

type inboxEntry struct {
	Message    string    `json:"message"`
	ReceivedAt time.Time `json:"receivedAt"`
}

func (r *redisInbox) Push(ctx context.Context, empID string, payload []byte) error {
	key := inboxKey(empID)
	if err := r.c.LPush(ctx, key, payload).Err(); err != nil {
		return err
	}
	return r.c.LTrim(ctx, key, 0, int64(r.limit-1)).Err()
}

func inboxKey(empID string) string { return "notifications:inbox:" + empID }

// storeWithRetry writes the notification to the inbox with retry/backoff.
func storeWithRetry(ctx context.Context, inbox Inbox, n models.Notification, attempts int, delay time.Duration) error {
	payload, err := json.Marshal(inboxEntry{Message: n.Message, ReceivedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	for i := 0; i < attempts; i++ {
		if err := inbox.Push(ctx, n.RecipientID, payload); err != nil {
			if i == attempts-1 {
				return err
			}
			time.Sleep(delay)
			delay *= 2
			continue
		}
		return nil
	}
	return nil
}
