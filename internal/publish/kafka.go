package publish

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"desalination_plant/internal/logger"
	"desalination_plant/internal/models"
	"desalination_plant/internal/service"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

// KafkaConfig configures the event export.
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled" yaml:"enabled"`
	Brokers []string `mapstructure:"brokers" yaml:"brokers"`
	Topic   string   `mapstructure:"topic" yaml:"topic"`
	Queue   int      `mapstructure:"queue" yaml:"queue"`
}

const (
	defaultKafkaQueue = 256
	kafkaWriteTimeout = 10 * time.Second
)

var ErrExporterClosed = errors.New("kafka exporter closed")

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaExporter writes plant events to a topic keyed by event type, from a
// background goroutine. When the queue is full the event is dropped.
type KafkaExporter struct {
	w     messageWriter
	topic string
	log   *logger.Logger
	queue chan kafka.Message

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

var _ service.Publisher = (*KafkaExporter)(nil)

func NewKafkaExporter(cfg KafkaConfig, log *logger.Logger) (*KafkaExporter, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: at least one broker is required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.New("kafka: topic must not be empty")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return newKafkaExporter(w, cfg, log), nil
}

func newKafkaExporter(w messageWriter, cfg KafkaConfig, log *logger.Logger) *KafkaExporter {
	if log == nil {
		log = logger.Nop()
	}
	size := cfg.Queue
	if size <= 0 {
		size = defaultKafkaQueue
	}
	e := &KafkaExporter{
		w:     w,
		topic: cfg.Topic,
		log:   log.Named("kafka"),
		queue: make(chan kafka.Message, size),
	}
	e.wg.Add(1)
	go e.run()
	return e
}

func (e *KafkaExporter) run() {
	defer e.wg.Done()
	for msg := range e.queue {
		ctx, cancel := context.WithTimeout(context.Background(), kafkaWriteTimeout)
		if err := e.w.WriteMessages(ctx, msg); err != nil {
			e.log.Warnw("kafka_write_failed", "topic", e.topic, "key", string(msg.Key), "err", err)
		}
		cancel()
	}
}

// PublishState is a no-op; only events are exported.
func (e *KafkaExporter) PublishState(context.Context, models.PlantState) error { return nil }

func (e *KafkaExporter) PublishEvent(_ context.Context, ev models.PlantEvent) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrapf(err, "encode event %s", ev.EventID)
	}
	msg := kafka.Message{Key: []byte(ev.Type), Value: value, Time: ev.OccurredAt}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return ErrExporterClosed
	}
	select {
	case e.queue <- msg:
		return nil
	default:
		return errors.Errorf("kafka queue full, dropped %s event", ev.Type)
	}
}

// Close drains the queue and closes the writer.
func (e *KafkaExporter) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	close(e.queue)
	e.mu.Unlock()

	e.wg.Wait()
	return e.w.Close()
}
