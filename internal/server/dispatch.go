package server

import (
	"context"
	"log/slog"

	"github.com/skypro1111/voice-translate-service/internal/metrics"
	"github.com/skypro1111/voice-translate-service/internal/pipeline"
	"github.com/skypro1111/voice-translate-service/internal/protocol"
	"github.com/skypro1111/voice-translate-service/internal/session"
)

// Dispatcher applies ingest packets to the session manager
type Dispatcher struct {
	sessions *session.Manager
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewDispatcher creates a dispatcher. m may be nil.
func NewDispatcher(sessions *session.Manager, logger *slog.Logger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		sessions: sessions,
		logger:   logger,
		metrics:  m,
	}
}

// Dispatch parses data and applies start, audio and cancel packets. Stop
// packets are returned unapplied so the caller can finish the run without
// blocking its read loop.
func (d *Dispatcher) Dispatch(data []byte) (*protocol.ParsedPacket, error) {
	if d.metrics != nil {
		d.metrics.RecordPacketReceived()
	}

	packet, err := protocol.ParsePacket(data)
	if err != nil {
		if d.metrics != nil {
			d.metrics.RecordParseError()
		}
		return nil, err
	}

	id := packet.Header.SessionID

	switch packet.Header.PacketType {
	case protocol.PacketTypeStart:
		orch, err := d.sessions.StartRun(id, packet.Start.GetInputLanguage(), packet.Start.GetOutputLanguage())
		if err != nil {
			return packet, err
		}
		d.logger.Debug("Start packet processed",
			slog.Uint64("session_id", uint64(id)),
			slog.String("run_id", orch.ID()))

	case protocol.PacketTypeAudio:
		frame, err := packet.Frame()
		if err != nil {
			return packet, err
		}
		if err := d.sessions.AppendFrame(id, frame); err != nil {
			return packet, err
		}

	case protocol.PacketTypeCancel:
		if err := d.sessions.CancelRun(id); err != nil {
			return packet, err
		}
	}

	return packet, nil
}

// Finish drives the session's run to a terminal state and logs the outcome
func (d *Dispatcher) Finish(ctx context.Context, id uint32) (pipeline.Run, error) {
	run, err := d.sessions.FinishRun(ctx, id)
	if err != nil {
		d.logger.Warn("Run did not complete",
			slog.Uint64("session_id", uint64(id)),
			slog.String("run_id", run.ID),
			slog.String("error", err.Error()))
		return run, err
	}

	d.logger.Info("Translation ready",
		slog.Uint64("session_id", uint64(id)),
		slog.String("run_id", run.ID),
		slog.String("transcript", run.Transcript.Text),
		slog.String("translation", run.Translation.Text),
		slog.Int("audio_bytes", len(run.Audio.Data)))

	return run, nil
}
