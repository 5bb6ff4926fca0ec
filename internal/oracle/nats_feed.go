package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	fpmath "VaultLedger/internal/math"
	"VaultLedger/internal/observability"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

const (
	PriceStreamName    = "VAULT_PRICES"
	PriceSubjectPrefix = "vault.prices"
)

// Feed results, used as the price update metric label.
const (
	resultAccepted = "accepted"
	resultOutdated = "outdated"
	resultInvalid  = "invalid"
	resultError    = "store_error"
)

var errInvalidUpdate = errors.New("invalid price update")

// PriceUpdate is the payload published on vault.prices.{asset}. Price is a
// decimal string; ObservedAt defaults to the message receive time.
type PriceUpdate struct {
	Asset      string    `json:"asset"`
	Price      string    `json:"price"`
	ObservedAt time.Time `json:"observed_at"`
}

// NATSFeed consumes price updates from JetStream and writes them to a
// PriceStore. Out-of-order updates are acked and ignored.
type NATSFeed struct {
	js       jetstream.JetStream
	store    PriceStore
	consumer jetstream.ConsumeContext
	metrics  *observability.Metrics
	logger   zerolog.Logger
}

func NewNATSFeed(js jetstream.JetStream, store PriceStore, metrics *observability.Metrics, logger zerolog.Logger) *NATSFeed {
	return &NATSFeed{js: js, store: store, metrics: metrics, logger: logger}
}

// EnsurePriceStream creates the price stream. Only the latest update per
// subject matters, so the stream keeps one message per subject.
func EnsurePriceStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:              PriceStreamName,
		Subjects:          []string{PriceSubjectPrefix + ".>"},
		Storage:           jetstream.FileStorage,
		Retention:         jetstream.LimitsPolicy,
		MaxMsgsPerSubject: 1,
		MaxAge:            24 * time.Hour,
		Replicas:          1,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", PriceStreamName, err)
	}
	return nil
}

// Subscribe starts a durable consumer on vault.prices.{asset}.
func (f *NATSFeed) Subscribe(ctx context.Context, consumerName, asset string) error {
	subject := PriceSubjectPrefix + "." + asset
	consumer, err := f.js.CreateOrUpdateConsumer(ctx, PriceStreamName, jetstream.ConsumerConfig{
		Durable:       consumerName,
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		DeliverPolicy: jetstream.DeliverLastPerSubjectPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		if err := f.Handle(ctx, msg.Subject(), msg.Data(), time.Now()); err != nil && !errors.Is(err, errInvalidUpdate) {
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("consume %s: %w", consumerName, err)
	}
	f.consumer = cc
	f.logger.Info().Str("subject", subject).Str("consumer", consumerName).Msg("subscribed to price feed")
	return nil
}

// Handle applies one update. Invalid updates return an error wrapping
// errInvalidUpdate and must not be redelivered; store failures may be.
func (f *NATSFeed) Handle(ctx context.Context, subject string, data []byte, received time.Time) error {
	upd, err := decodeUpdate(subject, data, received)
	if err != nil {
		f.record(resultInvalid)
		f.logger.Warn().Err(err).Str("subject", subject).Msg("dropping price update")
		return err
	}
	price, err := fpmath.ParsePrice(upd.Price)
	if err != nil || price <= 0 {
		f.record(resultInvalid)
		f.logger.Warn().Str("subject", subject).Str("price", upd.Price).Msg("dropping non-positive or malformed price")
		return fmt.Errorf("%w: price %q", errInvalidUpdate, upd.Price)
	}

	stored, err := f.store.SetPrice(ctx, upd.Asset, price, upd.ObservedAt)
	if err != nil {
		f.record(resultError)
		f.logger.Error().Err(err).Str("asset", upd.Asset).Msg("price store write failed")
		return err
	}
	if !stored {
		f.record(resultOutdated)
		return nil
	}
	f.record(resultAccepted)
	f.logger.Debug().Str("asset", upd.Asset).Str("price", fpmath.FormatPrice(price)).Time("observed_at", upd.ObservedAt).Msg("price updated")
	return nil
}

func decodeUpdate(subject string, data []byte, received time.Time) (PriceUpdate, error) {
	var upd PriceUpdate
	if err := json.Unmarshal(data, &upd); err != nil {
		return upd, fmt.Errorf("%w: %v", errInvalidUpdate, err)
	}
	subjectAsset := strings.TrimPrefix(subject, PriceSubjectPrefix+".")
	switch {
	case upd.Asset == "":
		upd.Asset = subjectAsset
	case subjectAsset != subject && upd.Asset != subjectAsset:
		return upd, fmt.Errorf("%w: asset %q published on %s", errInvalidUpdate, upd.Asset, subject)
	}
	if upd.Asset == "" {
		return upd, fmt.Errorf("%w: missing asset", errInvalidUpdate)
	}
	if upd.ObservedAt.IsZero() {
		upd.ObservedAt = received
	}
	return upd, nil
}

func (f *NATSFeed) record(result string) {
	if f.metrics != nil {
		f.metrics.PriceUpdates.WithLabelValues(result).Inc()
	}
}

// Stop stops the consumer.
func (f *NATSFeed) Stop() {
	if f.consumer != nil {
		f.consumer.Stop()
		f.logger.Info().Msg("price feed stopped")
	}
}
