package masterconn

import (
	"context"
	"encoding/json"
	"io"
	"net"

	"github.com/filewarden/mesh/internal/eventbus"
	"github.com/filewarden/mesh/internal/protocol"
	"github.com/filewarden/mesh/internal/registry"
	"github.com/filewarden/mesh/internal/store"
	"github.com/filewarden/mesh/pkg/logger"
)

// Handler runs one instance of the per-agent protocol state machine per
// accepted connection: DISCONNECTED -> REGISTERING -> ACTIVE -> CLOSING.
// The Go port of connection_handler.py's handle_agent.
type Handler struct {
	registry   *registry.Registry
	dispatcher *Dispatcher
	collector  *Collector
	deleteQ    *store.DeleteQueueStore
	bus        *eventbus.Bus
}

// NewHandler creates a Handler.
func NewHandler(reg *registry.Registry, dispatcher *Dispatcher, collector *Collector, deleteQ *store.DeleteQueueStore, bus *eventbus.Bus) *Handler {
	return &Handler{registry: reg, dispatcher: dispatcher, collector: collector, deleteQ: deleteQ, bus: bus}
}

// Handle drives one connection's full lifecycle. Any per-connection
// failure is logged, never fatal to the process — the accept loop
// keeps serving other agents.
func (h *Handler) Handle(ctx context.Context, conn net.Conn) {
	addr := conn.RemoteAddr()
	agentIP, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		agentIP = addr.String()
	}

	defer h.close(ctx, agentIP, conn)

	raw, err := protocol.ReadRawFrame(conn)
	if err != nil {
		logger.Warnw("masterconn: registration read failed", logger.FieldAgentIP, agentIP, logger.FieldError, err)
		return
	}
	var reg protocol.Register
	if err := json.Unmarshal(raw, &reg); err != nil || reg.Type != protocol.TypeRegister {
		logger.Warnw("masterconn: invalid registration message", logger.FieldAgentIP, agentIP)
		return
	}

	h.registry.Register(ctx, agentIP, conn, addr)
	writer := protocol.NewFrameWriter(conn)
	h.registry.SetWriter(agentIP, writer)
	logger.Infow("masterconn: agent registered", logger.FieldAgentIP, agentIP, "client_id", reg.ClientID)
	if h.bus != nil {
		h.bus.Publish(eventbus.TopicAgent, eventbus.TypeAgentRegistered, map[string]string{"agent_ip": agentIP, "client_id": reg.ClientID})
	}

	task := DefaultTask(NewTaskID())
	if err := h.dispatcher.DispatchToConnection(ctx, agentIP, task); err != nil {
		logger.Warnw("masterconn: initial task dispatch failed", logger.FieldAgentIP, agentIP, logger.FieldError, err)
	}

	h.loop(ctx, agentIP, conn)
}

// loop reads frames strictly in arrival order until a nil/EOF frame or
// read error ends the connection.
func (h *Handler) loop(ctx context.Context, agentIP string, conn net.Conn) {
	for {
		raw, err := protocol.ReadRawFrame(conn)
		if err != nil {
			if err != io.EOF {
				logger.Warnw("masterconn: frame read error, closing", logger.FieldAgentIP, agentIP, logger.FieldError, err)
			}
			return
		}

		var env protocol.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			logger.Warnw("masterconn: malformed frame, ignoring", logger.FieldAgentIP, agentIP, logger.FieldError, err)
			continue
		}

		h.registry.Touch(ctx, agentIP)
		h.dispatch(ctx, agentIP, env.Type, raw)
	}
}

func (h *Handler) dispatch(ctx context.Context, agentIP, msgType string, raw []byte) {
	switch msgType {
	case "heartbeat":
		h.dispatcher.DrainDeletes(ctx, agentIP, h.deleteQ)
		h.dispatcher.DrainScanTasks(ctx, agentIP)

	case "scan_result", protocol.TypeScanResults:
		var res protocol.ScanResults
		if err := json.Unmarshal(raw, &res); err != nil {
			logger.Errorw("masterconn: decode scan_results failed", logger.FieldAgentIP, agentIP, logger.FieldError, err)
			return
		}
		if err := h.collector.IngestScanResults(ctx, agentIP, res); err != nil {
			logger.Errorw("masterconn: ingest scan results failed", logger.FieldAgentIP, agentIP, logger.FieldError, err)
		}

	case protocol.TypeDeletionReport:
		var rep protocol.DeletionReport
		if err := json.Unmarshal(raw, &rep); err != nil {
			logger.Errorw("masterconn: decode deletion_report failed", logger.FieldAgentIP, agentIP, logger.FieldError, err)
			return
		}
		if err := h.collector.IngestDeletionReport(ctx, agentIP, rep); err != nil {
			logger.Errorw("masterconn: ingest deletion report failed", logger.FieldAgentIP, agentIP, logger.FieldError, err)
			return
		}
		h.dispatcher.DrainDeletes(ctx, agentIP, h.deleteQ)

	default:
		logger.Warnw("masterconn: unknown message type", logger.FieldAgentIP, agentIP, "type", msgType)
	}
}

func (h *Handler) close(ctx context.Context, agentIP string, conn net.Conn) {
	h.registry.Remove(ctx, agentIP)
	conn.Close()
	if h.bus != nil {
		h.bus.Publish(eventbus.TopicAgent, eventbus.TypeAgentOffline, map[string]string{"agent_ip": agentIP})
	}
	logger.Infow("masterconn: agent disconnected", logger.FieldAgentIP, agentIP)
}
