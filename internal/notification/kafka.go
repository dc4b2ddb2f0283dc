package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/carelink/rx-lifecycle/internal/infrastructure/kafka"
	"github.com/carelink/rx-lifecycle/pkg/circuitbreaker"
	"github.com/carelink/rx-lifecycle/pkg/workerpool"
)

// KafkaNotifier publishes notifications to the outbound topic. Sends are
// queued on a bounded worker pool so handler latency stays flat, and the
// publish path runs through a circuit breaker so a dead broker degrades
// to dropped notifications instead of piled-up goroutines.
type KafkaNotifier struct {
	producer *kafka.Producer
	breaker  *circuitbreaker.Breaker
	pool     *workerpool.Pool
	logger   *zap.Logger
}

// NewKafkaNotifier wires producer, breaker, and pool. Call Close on
// shutdown to drain queued sends.
func NewKafkaNotifier(producer *kafka.Producer, logger *zap.Logger) (*KafkaNotifier, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	breaker, err := circuitbreaker.New(circuitbreaker.DefaultConfig("notifications"), logger)
	if err != nil {
		return nil, fmt.Errorf("create breaker: %w", err)
	}

	pool := workerpool.New(workerpool.DefaultConfig(), logger)
	pool.Start()

	return &KafkaNotifier{
		producer: producer,
		breaker:  breaker,
		pool:     pool,
		logger:   logger,
	}, nil
}

// Send enqueues the notification for asynchronous publishing. The only
// synchronous failure is a saturated queue.
func (k *KafkaNotifier) Send(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	key := strconv.FormatInt(n.UserID, 10)
	task := &workerpool.Task{
		ID: fmt.Sprintf("notify-%s-%s", key, n.Type),
		Run: func(taskCtx context.Context) error {
			return k.breaker.Execute(taskCtx, func() error {
				return k.producer.Produce(taskCtx, kafka.TopicNotifications, key, payload)
			})
		},
	}

	if err := k.pool.Submit(task); err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}

// Close stops the pool and the producer.
func (k *KafkaNotifier) Close() error {
	k.pool.Stop()
	return k.producer.Close()
}
