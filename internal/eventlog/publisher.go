package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"VaultLedger/internal/event"
	"VaultLedger/internal/observability"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

const (
	StreamName    = "VAULT_EVENTS"
	SubjectPrefix = "vault.events"

	publishChannel = "publish"
)

// JetStreamPublisher is the part of jetstream.JetStream the publisher uses.
type JetStreamPublisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// Publisher forwards committed envelopes to JetStream. Emit never blocks the
// vault: when the buffer is full the envelope is dropped and counted.
// Consumers that need every record read snapshots and the liquidation log.
type Publisher struct {
	js      JetStreamPublisher
	ch      chan Message
	metrics *observability.Metrics
	logger  zerolog.Logger
}

func NewPublisher(js JetStreamPublisher, bufferSize int, metrics *observability.Metrics, logger zerolog.Logger) *Publisher {
	if bufferSize <= 0 {
		bufferSize = 4096
	}
	return &Publisher{
		js:      js,
		ch:      make(chan Message, bufferSize),
		metrics: metrics,
		logger:  logger,
	}
}

func (p *Publisher) Emit(env *event.Envelope) {
	select {
	case p.ch <- NewMessage(env):
	default:
		if p.metrics != nil {
			p.metrics.PublishDrops.Inc()
		}
		p.logger.Warn().Int64("sequence", env.Sequence).Str("event_type", env.EventType.String()).Msg("publish buffer full, event dropped")
	}
}

// Run publishes buffered messages until ctx is cancelled, then flushes what
// is left with a short deadline.
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.drain()
			return nil

		case msg := <-p.ch:
			if err := p.publish(ctx, msg); err != nil {
				p.failed(msg, err)
			}

		case <-ticker.C:
			if p.metrics != nil {
				p.metrics.SetChannelMetrics(publishChannel, len(p.ch), cap(p.ch))
			}
		}
	}
}

func (p *Publisher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case msg := <-p.ch:
			if err := p.publish(ctx, msg); err != nil {
				p.failed(msg, err)
			}
		default:
			return
		}
	}
}

func (p *Publisher) publish(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = p.js.Publish(ctx, msg.Subject(), data, jetstream.WithMsgID(msg.MsgID()))
	return err
}

func (p *Publisher) failed(msg Message, err error) {
	if p.metrics != nil {
		p.metrics.PublishErrors.Inc()
	}
	p.logger.Warn().Err(err).Int64("sequence", msg.Sequence).Str("event_type", msg.EventType).Msg("outbound publish failed")
}

// EnsureStream creates the outbound events stream.
func EnsureStream(ctx context.Context, js jetstream.JetStream, maxAge time.Duration) error {
	if maxAge <= 0 {
		maxAge = 72 * time.Hour
	}
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       StreamName,
		Subjects:   []string{SubjectPrefix + ".>"},
		Storage:    jetstream.FileStorage,
		Retention:  jetstream.LimitsPolicy,
		MaxAge:     maxAge,
		Duplicates: 2 * time.Minute,
		Replicas:   1,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", StreamName, err)
	}
	return nil
}
