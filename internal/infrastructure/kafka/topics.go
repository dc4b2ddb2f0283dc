package kafka

import (
	"context"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

// TopicNotifications carries outbound member notifications consumed by
// the email/SMS delivery service.
const TopicNotifications = "notifications.outbound"

// EnsureTopics creates the notification topic if it does not exist.
// Safe to call on every startup.
func EnsureTopics(ctx context.Context, brokers []string, logger *zap.Logger) error {
	client, err := kgo.NewClient(kgo.SeedBrokers(brokers...))
	if err != nil {
		return fmt.Errorf("create admin client: %w", err)
	}
	defer client.Close()

	adm := kadm.NewClient(client)

	existing, err := adm.ListTopics(ctx)
	if err != nil {
		return fmt.Errorf("list topics: %w", err)
	}
	if existing.Has(TopicNotifications) {
		return nil
	}

	retention := "604800000" // 7 days
	configs := map[string]*string{"retention.ms": &retention}

	resp, err := adm.CreateTopic(ctx, 6, 1, configs, TopicNotifications)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", TopicNotifications, err)
	}
	if resp.Err != nil {
		return fmt.Errorf("create topic %s: %w", TopicNotifications, resp.Err)
	}

	logger.Info("created topic", zap.String("topic", TopicNotifications))
	return nil
}
