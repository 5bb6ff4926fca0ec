package eventlog

import (
	"VaultLedger/internal/core"
	"VaultLedger/internal/event"

	"github.com/rs/zerolog"
)

// Fanout emits every envelope to each log in order.
type Fanout []core.EventLog

func (f Fanout) Emit(env *event.Envelope) {
	for _, l := range f {
		l.Emit(env)
	}
}

// LogSink writes one structured line per envelope. Liquidations and admin
// changes log at info, everything else at debug.
type LogSink struct {
	logger zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Emit(env *event.Envelope) {
	var e *zerolog.Event
	switch env.EventType {
	case event.EventTypeLiquidated, event.EventTypeVaultConfigUpdated,
		event.EventTypeVaultPaused, event.EventTypeVaultUnpaused,
		event.EventTypeCapabilityGranted, event.EventTypeCapabilityRevoked:
		e = s.logger.Info()
	default:
		e = s.logger.Debug()
	}
	e.Int64("sequence", env.Sequence).
		Str("event_type", env.EventType.String()).
		Str("request_id", env.RequestID).
		Stringer("owner", env.Owner).
		Int("journals", len(env.Journals)).
		Interface("payload", env.Payload).
		Msg("vault event")
}

var (
	_ core.EventLog = Fanout(nil)
	_ core.EventLog = (*LogSink)(nil)
	_ core.EventLog = (*Publisher)(nil)
)
