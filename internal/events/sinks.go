package events

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/agentoven/agentmarket/internal/ledger"
)

// LogSink writes every committed event to the global logger.
type LogSink struct{}

func (LogSink) Publish(_ context.Context, evs []ledger.Event) {
	for _, ev := range evs {
		log.Info().
			Str("program", ev.Program.Short()).
			Str("event", ev.Name).
			Interface("data", ev.Data).
			Msg("📣 Event")
	}
}

// MessageWriter is the subset of *kafka.Writer the sink needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes committed events as JSON messages keyed by program
// address. Publishing is best effort: failures are logged and dropped.
type KafkaSink struct {
	w       MessageWriter
	timeout time.Duration
}

// NewKafkaWriter builds a writer for a comma separated broker list.
func NewKafkaWriter(brokers, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(strings.Split(brokers, ",")...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
}

// NewKafkaSink wraps w. A zero timeout defaults to five seconds.
func NewKafkaSink(w MessageWriter, timeout time.Duration) *KafkaSink {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &KafkaSink{w: w, timeout: timeout}
}

func (s *KafkaSink) Publish(ctx context.Context, evs []ledger.Event) {
	msgs := make([]kafka.Message, 0, len(evs))
	for _, ev := range evs {
		value, err := json.Marshal(ev)
		if err != nil {
			log.Warn().Err(err).Str("event", ev.Name).Msg("Skipping unencodable event")
			continue
		}
		msgs = append(msgs, kafka.Message{
			Key:     []byte(ev.Program.Hex()),
			Value:   value,
			Headers: []kafka.Header{{Key: "event", Value: []byte(ev.Name)}},
			Time:    ev.Timestamp,
		})
	}
	if len(msgs) == 0 {
		return
	}

	// The request context may already be cancelled once the response is out.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	if err := s.w.WriteMessages(wctx, msgs...); err != nil {
		log.Warn().Err(err).Int("count", len(msgs)).Msg("Kafka publish failed")
	}
}

// Close flushes and closes the underlying writer.
func (s *KafkaSink) Close() error {
	return s.w.Close()
}
