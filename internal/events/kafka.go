package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/logger"
	"github.com/segmentio/kafka-go"
)

const (
	KafkaBatchInterval  = 1 * time.Second
	KafkaRequestTimeout = 30 * time.Second
	KafkaBatchSize      = 100
	KafkaChannelSize    = 100
	kafkaWriteRetries   = 3
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink batches events onto a Kafka topic. Messages are keyed by round
// address so that one round's events keep their order within a partition.
type KafkaSink struct {
	writer   messageWriter
	topic    string
	interval time.Duration
	events   chan Event
	done     chan struct{}
	stopped  chan struct{}
}

// NewKafkaSink starts a producer writing to topic on brokers.
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: KafkaRequestTimeout,
	}
	return newKafkaSink(writer, topic, KafkaBatchInterval)
}

func newKafkaSink(w messageWriter, topic string, interval time.Duration) *KafkaSink {
	s := &KafkaSink{
		writer:   w,
		topic:    topic,
		interval: interval,
		events:   make(chan Event, KafkaChannelSize),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go s.processEvents()
	return s
}

// Publish queues ev. When the queue is full the event is dropped and logged.
func (s *KafkaSink) Publish(ev Event) {
	select {
	case s.events <- ev:
	default:
		logger.Warningf("kafka event queue full, dropping %s event %s", ev.Kind, ev.ID)
	}
}

// Close flushes queued events and closes the writer.
func (s *KafkaSink) Close() error {
	close(s.done)
	<-s.stopped
	return s.writer.Close()
}

func (s *KafkaSink) processEvents() {
	defer close(s.stopped)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var batch []kafka.Message
	add := func(ev Event) {
		value, err := json.Marshal(ev)
		if err != nil {
			logger.Errorf("error marshalling %s event for kafka: %v", ev.Kind, err)
			return
		}
		batch = append(batch, kafka.Message{Key: ev.Round[:], Value: value})
		if len(batch) >= KafkaBatchSize {
			s.sendBatch(batch)
			batch = nil
		}
	}

	for {
		select {
		case ev := <-s.events:
			add(ev)
		case <-ticker.C:
			if len(batch) > 0 {
				s.sendBatch(batch)
				batch = nil
			}
		case <-s.done:
			for {
				select {
				case ev := <-s.events:
					add(ev)
				default:
					if len(batch) > 0 {
						s.sendBatch(batch)
					}
					return
				}
			}
		}
	}
}

func (s *KafkaSink) sendBatch(batch []kafka.Message) {
	var err error
	for i := 0; i < kafkaWriteRetries; i++ {
		err = s.writer.WriteMessages(context.Background(), batch...)
		if err == nil {
			return
		}
		logger.Warningf("error sending event batch to kafka, retrying, topic=%s try=%d err=%v", s.topic, i, err)
	}
	logger.Errorf("error sending event batch to kafka, %d events lost, err=%v", len(batch), err)
}
