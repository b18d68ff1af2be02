// Package registry tracks which agents currently hold a live TCP socket
// to this master, mirroring the in-memory _agents map kept by
// backend/orchestrator/agent_registry.py. The live map is the source of
// truth for "can I write to this agent right now"; internal/store's
// AgentsStore is the durable shadow that survives a master restart and
// feeds the admin API's /clients-status merge.
package registry

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/filewarden/mesh/internal/protocol"
	"github.com/filewarden/mesh/internal/store"
	"github.com/filewarden/mesh/pkg/logger"
	"github.com/filewarden/mesh/pkg/util"
)

// Agent status values. These are the wire/persistence vocabulary shared
// with store.Agent.Status and the register/heartbeat/scan_result state
// machine the connection handler drives.
const (
	StatusIdle               = "IDLE"
	StatusScanning           = "SCANNING"
	StatusAwaitingApproval   = "AWAITING_APPROVAL"
	StatusDeletionDispatched = "DELETION_DISPATCHED"
	StatusOffline            = "OFFLINE"
)

// DefaultOfflineTimeout is how long an agent can go without a heartbeat
// before the sweeper marks it OFFLINE. config.Config.OfflineTimeoutSec
// overrides this at 60s, matching the freshness window /clients-status
// uses to decide online/offline — one timeout shared by both.
const DefaultOfflineTimeout = 60 * time.Second

// Session is the live connection state for one registered agent.
type Session struct {
	AgentIP  string
	Conn     net.Conn
	Addr     net.Addr
	Writer   *protocol.FrameWriter
	Status   string
	LastSeen time.Time
}

// Registry is the process-wide live agent map. One instance is shared by
// the TCP listener's per-connection workers, the task dispatcher, and the
// admin API.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session

	agents *store.AgentsStore
}

// New creates a Registry backed by agents for durable persistence.
func New(agents *store.AgentsStore) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		agents:   agents,
	}
}

// Register records a freshly-accepted connection as IDLE and persists it.
func (r *Registry) Register(ctx context.Context, agentIP string, conn net.Conn, addr net.Addr) {
	now := time.Now()
	r.mu.Lock()
	r.sessions[agentIP] = &Session{
		AgentIP:  agentIP,
		Conn:     conn,
		Addr:     addr,
		Status:   StatusIdle,
		LastSeen: now,
	}
	r.mu.Unlock()

	if r.agents != nil {
		if err := r.agents.Upsert(ctx, agentIP, StatusIdle, unixFloat(now), ""); err != nil {
			logger.Errorw("registry: persist register failed", logger.FieldAgentIP, agentIP, logger.FieldError, err)
		}
	}
}

// SetWriter attaches the per-connection framed writer the connection
// handler uses to serialize writes to this agent's socket. Split out
// from Register so tests can register sessions without a live net.Conn.
func (r *Registry) SetWriter(agentIP string, w *protocol.FrameWriter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[agentIP]; ok {
		s.Writer = w
	}
}

// UpdateStatus sets status and refreshes last-seen for a registered agent.
func (r *Registry) UpdateStatus(ctx context.Context, agentIP, status string) {
	now := time.Now()
	r.mu.Lock()
	if s, ok := r.sessions[agentIP]; ok {
		s.Status = status
		s.LastSeen = now
	}
	r.mu.Unlock()

	if r.agents != nil {
		if err := r.agents.Upsert(ctx, agentIP, status, unixFloat(now), ""); err != nil {
			logger.Errorw("registry: persist status failed", logger.FieldAgentIP, agentIP, logger.FieldError, err)
		}
	}
}

// Touch refreshes last-seen without changing status, driven by every
// inbound message (heartbeat or otherwise).
func (r *Registry) Touch(ctx context.Context, agentIP string) {
	now := time.Now()
	r.mu.Lock()
	if s, ok := r.sessions[agentIP]; ok {
		s.LastSeen = now
	}
	r.mu.Unlock()

	if r.agents != nil {
		if err := r.agents.Touch(ctx, agentIP, unixFloat(now)); err != nil {
			logger.Errorw("registry: persist touch failed", logger.FieldAgentIP, agentIP, logger.FieldError, err)
		}
	}
}

// Remove drops the live session on disconnect and persists OFFLINE.
func (r *Registry) Remove(ctx context.Context, agentIP string) {
	r.mu.Lock()
	delete(r.sessions, agentIP)
	r.mu.Unlock()

	if r.agents != nil {
		if err := r.agents.SetStatus(ctx, agentIP, StatusOffline); err != nil {
			logger.Errorw("registry: persist offline failed", logger.FieldAgentIP, agentIP, logger.FieldError, err)
		}
	}
}

// Get returns the live session for agentIP, if currently connected.
func (r *Registry) Get(agentIP string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[agentIP]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Active returns a snapshot of every currently-connected, non-OFFLINE
// session, keyed by agent IP.
func (r *Registry) Active() map[string]Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]Session, len(r.sessions))
	for ip, s := range r.sessions {
		if s.Status != StatusOffline {
			out[ip] = *s
		}
	}
	return out
}

// SweepOnce marks every session whose last heartbeat is older than
// timeout as OFFLINE, the Go equivalent of mark_offline_inactive.
func (r *Registry) SweepOnce(ctx context.Context, timeout time.Duration) {
	now := time.Now()
	var stale []string

	r.mu.Lock()
	for ip, s := range r.sessions {
		if s.Status != StatusOffline && now.Sub(s.LastSeen) > timeout {
			s.Status = StatusOffline
			stale = append(stale, ip)
		}
	}
	r.mu.Unlock()

	for _, ip := range stale {
		if r.agents != nil {
			if err := r.agents.SetStatus(ctx, ip, StatusOffline); err != nil {
				logger.Errorw("registry: persist sweep offline failed", logger.FieldAgentIP, ip, logger.FieldError, err)
			}
		}
		logger.Infow("registry: agent marked offline by sweep", logger.FieldAgentIP, ip)
	}
}

// StartSweeper runs SweepOnce on a ticker until ctx is cancelled.
func (r *Registry) StartSweeper(ctx context.Context, interval, timeout time.Duration) {
	util.SafeGo(func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.SweepOnce(ctx, timeout)
			}
		}
	})
	logger.Infow("registry: sweeper started", "interval", interval, "timeout", timeout)
}

func unixFloat(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
