package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/skypro1111/voice-translate-service/internal/config"
	"github.com/skypro1111/voice-translate-service/internal/protocol"
)

// shardQueueSize is the per-worker packet queue capacity
const shardQueueSize = 1000

// UDPServer receives ingest packets over UDP. Packets are sharded by session
// ID so one session's frames are always applied by the same worker, in the
// order they were received.
type UDPServer struct {
	conn       *net.UDPConn
	config     *config.ServerConfig
	logger     *slog.Logger
	dispatcher *Dispatcher

	// Concurrency management
	ctx       context.Context
	cancel    context.CancelFunc
	receiveWG sync.WaitGroup
	workerWG  sync.WaitGroup
	finishWG  sync.WaitGroup

	// Packet processing, one queue per worker
	shards []chan *incomingPacket

	// Statistics
	packetsReceived  uint64
	packetsProcessed uint64
	parseErrors      uint64
	packetsDropped   uint64
	mu               sync.RWMutex
}

// incomingPacket represents a received UDP packet with metadata
type incomingPacket struct {
	data       []byte
	remoteAddr *net.UDPAddr
	timestamp  time.Time
}

// ServerStatistics represents server performance metrics
type ServerStatistics struct {
	PacketsReceived  uint64 `json:"packets_received"`
	PacketsProcessed uint64 `json:"packets_processed"`
	ParseErrors      uint64 `json:"parse_errors"`
	PacketsDropped   uint64 `json:"packets_dropped"`
	Workers          int    `json:"workers"`
	QueueSize        uint64 `json:"queue_size"`
	QueueCapacity    uint64 `json:"queue_capacity"`
}

// NewUDPServer creates a new UDP server instance
func NewUDPServer(cfg *config.ServerConfig, logger *slog.Logger, dispatcher *Dispatcher) *UDPServer {
	ctx, cancel := context.WithCancel(context.Background())

	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}

	shards := make([]chan *incomingPacket, workers)
	for i := range shards {
		shards[i] = make(chan *incomingPacket, shardQueueSize)
	}

	return &UDPServer{
		config:     cfg,
		logger:     logger,
		dispatcher: dispatcher,
		ctx:        ctx,
		cancel:     cancel,
		shards:     shards,
	}
}

// Start begins listening for UDP packets
func (s *UDPServer) Start() error {
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", s.config.BindAddress, s.config.UDPPort))
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP: %w", err)
	}

	s.conn = conn

	if err := s.conn.SetReadBuffer(s.config.BufferSize); err != nil {
		s.logger.Warn("Failed to set UDP read buffer size",
			slog.Int("buffer_size", s.config.BufferSize),
			slog.String("error", err.Error()))
	}

	s.logger.Info("UDP server started",
		slog.String("address", conn.LocalAddr().String()),
		slog.Int("buffer_size", s.config.BufferSize),
		slog.Int("workers", len(s.shards)))

	for i := range s.shards {
		s.workerWG.Add(1)
		go s.packetProcessor(i)
	}

	s.receiveWG.Add(1)
	go s.receiveLoop()

	return nil
}

// Addr returns the bound local address, or nil before Start
func (s *UDPServer) Addr() net.Addr {
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Stop gracefully stops the UDP server. Runs still finishing are cancelled.
func (s *UDPServer) Stop() error {
	s.logger.Info("Stopping UDP server...")

	s.cancel()

	// Close UDP connection to unblock the receive loop
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			s.logger.Warn("Error closing UDP connection", slog.String("error", err.Error()))
		}
	}

	// Queues are closed only once nothing can send on them
	s.receiveWG.Wait()
	for _, shard := range s.shards {
		close(shard)
	}
	s.workerWG.Wait()
	s.finishWG.Wait()

	stats := s.GetStatistics()
	s.logger.Info("UDP server stopped",
		slog.Uint64("packets_received", stats.PacketsReceived),
		slog.Uint64("packets_processed", stats.PacketsProcessed),
		slog.Uint64("parse_errors", stats.ParseErrors),
		slog.Uint64("packets_dropped", stats.PacketsDropped))

	return nil
}

// receiveLoop is the main packet receiving loop
func (s *UDPServer) receiveLoop() {
	defer s.receiveWG.Done()

	buffer := make([]byte, s.config.BufferSize)

	for {
		select {
		case <-s.ctx.Done():
			s.logger.Info("Receive loop stopping due to context cancellation")
			return
		default:
		}

		// Set read deadline to check for context cancellation periodically
		if err := s.conn.SetReadDeadline(time.Now().Add(1 * time.Second)); err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Error("Failed to set read deadline", slog.String("error", err.Error()))
			continue
		}

		n, remoteAddr, err := s.conn.ReadFromUDP(buffer)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}

			select {
			case <-s.ctx.Done():
				return
			default:
				s.logger.Error("Failed to read UDP packet", slog.String("error", err.Error()))
				continue
			}
		}

		s.mu.Lock()
		s.packetsReceived++
		s.mu.Unlock()

		// Create packet data copy (buffer will be reused)
		packetData := make([]byte, n)
		copy(packetData, buffer[:n])

		packet := &incomingPacket{
			data:       packetData,
			remoteAddr: remoteAddr,
			timestamp:  time.Now(),
		}

		header, err := protocol.ParseHeader(packetData)
		if err != nil {
			s.recordParseError(packet, err)
			continue
		}

		shard := s.shards[header.SessionID%uint32(len(s.shards))]

		select {
		case shard <- packet:
		default:
			s.mu.Lock()
			s.packetsDropped++
			s.mu.Unlock()

			s.logger.Warn("Packet processing queue full, dropping packet",
				slog.String("remote_addr", remoteAddr.String()),
				slog.Uint64("session_id", uint64(header.SessionID)),
				slog.Int("packet_size", n))
		}
	}
}

// packetProcessor applies packets from one shard in order
func (s *UDPServer) packetProcessor(workerID int) {
	defer s.workerWG.Done()

	s.logger.Debug("Packet processor started", slog.Int("worker_id", workerID))

	for packet := range s.shards[workerID] {
		s.handlePacket(packet, workerID)
	}

	s.logger.Debug("Packet processor stopped", slog.Int("worker_id", workerID))
}

// handlePacket processes a single incoming packet
func (s *UDPServer) handlePacket(packet *incomingPacket, workerID int) {
	parsed, err := s.dispatcher.Dispatch(packet.data)
	if parsed == nil {
		s.recordParseError(packet, err)
		return
	}

	s.mu.Lock()
	s.packetsProcessed++
	s.mu.Unlock()

	id := parsed.Header.SessionID

	if err != nil {
		s.logger.Warn("Failed to apply packet",
			slog.Uint64("session_id", uint64(id)),
			slog.String("packet_type", protocol.PacketTypeName(parsed.Header.PacketType)),
			slog.String("remote_addr", packet.remoteAddr.String()),
			slog.String("error", err.Error()),
			slog.Int("worker_id", workerID))
		return
	}

	if parsed.Header.PacketType == protocol.PacketTypeStop {
		// Remote stages can take seconds; keep the shard moving
		s.finishWG.Add(1)
		go func() {
			defer s.finishWG.Done()
			s.dispatcher.Finish(s.ctx, id)
		}()
	}
}

func (s *UDPServer) recordParseError(packet *incomingPacket, err error) {
	s.mu.Lock()
	s.parseErrors++
	s.mu.Unlock()

	s.logger.Error("Failed to parse packet",
		slog.String("remote_addr", packet.remoteAddr.String()),
		slog.Int("packet_size", len(packet.data)),
		slog.String("error", err.Error()))
}

// GetStatistics returns current server statistics
func (s *UDPServer) GetStatistics() ServerStatistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var queued, capacity uint64
	for _, shard := range s.shards {
		queued += uint64(len(shard))
		capacity += uint64(cap(shard))
	}

	return ServerStatistics{
		PacketsReceived:  s.packetsReceived,
		PacketsProcessed: s.packetsProcessed,
		ParseErrors:      s.parseErrors,
		PacketsDropped:   s.packetsDropped,
		Workers:          len(s.shards),
		QueueSize:        queued,
		QueueCapacity:    capacity,
	}
}
