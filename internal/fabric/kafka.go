package fabric

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/segmentio/kafka-go"

	"ticket-marketplace/internal/config"
	"ticket-marketplace/internal/logger"
)

// KafkaBus is the durable backend. Each fabric topic is a Kafka topic; the
// routing key rides as the message key, which also keeps messages for one
// entity on one partition. Each queue is a consumer group, so every queue sees
// the full topic stream and filters by its binding patterns. Offsets are
// committed only after the handler succeeds.
type KafkaBus struct {
	brokers []string
	log     *logger.Logger

	mu      sync.Mutex
	writers map[string]*kafka.Writer
	readers []*kafka.Reader

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewKafkaBus(cfg config.FabricConfig, log *logger.Logger) (*KafkaBus, error) {
	if err := ensureTopics(cfg.Brokers, []string{TicketTopic, OrderTopic}); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &KafkaBus{
		brokers: cfg.Brokers,
		log:     log,
		writers: make(map[string]*kafka.Writer),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

func (b *KafkaBus) writer(topic string) *kafka.Writer {
	b.mu.Lock()
	defer b.mu.Unlock()
	w, ok := b.writers[topic]
	if !ok {
		w = kafka.NewWriter(kafka.WriterConfig{
			Brokers:  b.brokers,
			Topic:    topic,
			Balancer: &kafka.Hash{},
		})
		b.writers[topic] = w
	}
	return w
}

func (b *KafkaBus) Publish(ctx context.Context, topic, routingKey string, body []byte) error {
	err := b.writer(topic).WriteMessages(ctx, kafka.Message{
		Key:   []byte(routingKey),
		Value: body,
	})
	if err != nil {
		return fmt.Errorf("kafka publish %s/%s: %w", topic, routingKey, err)
	}
	b.log.LogFabric("PUBLISH", routingKey, fmt.Sprintf("%d bytes to %s", len(body), topic))
	return nil
}

func (b *KafkaBus) Subscribe(binding QueueBinding, h Handler) error {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  b.brokers,
		Topic:    binding.Topic,
		GroupID:  binding.Queue,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})

	b.mu.Lock()
	b.readers = append(b.readers, reader)
	b.mu.Unlock()

	b.wg.Add(1)
	go b.consume(reader, binding, h)
	return nil
}

func (b *KafkaBus) consume(reader *kafka.Reader, binding QueueBinding, h Handler) {
	defer b.wg.Done()
	b.log.LogFabric("SUBSCRIBE", binding.Queue, fmt.Sprintf("consuming %s", binding.Topic))

	for {
		msg, err := reader.FetchMessage(b.ctx)
		if err != nil {
			if b.ctx.Err() != nil {
				return
			}
			b.log.Error("FABRIC", fmt.Sprintf("%s: fetch: %v", binding.Queue, err))
			continue
		}

		key := string(msg.Key)
		if !binding.matches(key) {
			_ = reader.CommitMessages(b.ctx, msg)
			continue
		}

		if err := h(b.ctx, key, msg.Value); err != nil {
			// Leave the offset uncommitted so the message is redelivered
			// after a restart or rebalance.
			b.log.Error("FABRIC", fmt.Sprintf("%s: handler failed for %s: %v", binding.Queue, key, err))
			continue
		}

		if err := reader.CommitMessages(b.ctx, msg); err != nil {
			b.log.Error("FABRIC", fmt.Sprintf("%s: commit: %v", binding.Queue, err))
		}
	}
}

func (b *KafkaBus) Close() error {
	b.cancel()
	b.wg.Wait()

	b.mu.Lock()
	defer b.mu.Unlock()

	var firstErr error
	for _, r := range b.readers {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, w := range b.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ensureTopics creates the fabric topics if the broker doesn't have them yet.
func ensureTopics(brokers []string, topics []string) error {
	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return err
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return err
	}
	controllerConn, err := kafka.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return err
	}
	defer controllerConn.Close()

	configs := make([]kafka.TopicConfig, 0, len(topics))
	for _, topic := range topics {
		configs = append(configs, kafka.TopicConfig{
			Topic:             topic,
			NumPartitions:     1,
			ReplicationFactor: 1,
		})
	}

	if err := controllerConn.CreateTopics(configs...); err != nil {
		// Already-existing topics are fine.
		if err.Error() == "kafka server: topic already exists" {
			return nil
		}
		return err
	}
	return nil
}
