// Package masterconn is the master's half of the wire protocol: the
// per-connection state machine (Handler), the scan-task builder/sender
// (Dispatcher), and the scan-result/deletion-report ingestion
// (Collector). Adapted from the teacher's internal/apiserver +
// internal/codex connection-lifecycle idiom, generalized from
// WebSocket sessions to this domain's length-prefixed TCP agents.
package masterconn

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/filewarden/mesh/internal/eventbus"
	"github.com/filewarden/mesh/internal/protocol"
	"github.com/filewarden/mesh/internal/registry"
	"github.com/filewarden/mesh/internal/store"
	apperrors "github.com/filewarden/mesh/pkg/errors"
	"github.com/filewarden/mesh/pkg/logger"
)

// errNoLiveSocket marks an agent with no currently-connected writer —
// the caller falls back to the persisted queue.
var errNoLiveSocket = apperrors.Wrap(apperrors.ErrNotFound, "masterconn.Dispatcher", "agent has no live socket")

// Dispatcher builds and sends scan tasks, either directly over a live
// socket or through the persisted scan-task queue for an offline agent.
// The Go port of task_dispatcher.py.
type Dispatcher struct {
	registry *registry.Registry
	queue    *store.ScanTaskQueueStore
	bus      *eventbus.Bus
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(reg *registry.Registry, queue *store.ScanTaskQueueStore, bus *eventbus.Bus) *Dispatcher {
	return &Dispatcher{registry: reg, queue: queue, bus: bus}
}

// NewTaskID returns a "scan-" + 8 hex char task id, matching the
// original's f"scan-{uuid.uuid4().hex[:8]}".
func NewTaskID() string {
	return "scan-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// DefaultTask builds the default scan task sent to a freshly-registered
// agent: python-only, unbounded date range.
func DefaultTask(taskID string) protocol.ScanTask {
	return protocol.ScanTask{
		Type:            protocol.TypeScanTask,
		TaskID:          taskID,
		TargetLanguages: []string{"python"},
	}
}

// DispatchToConnection sends task directly over agentIP's live socket,
// if any, and transitions the registry to SCANNING. It returns
// errNoLiveSocket when agentIP has no live socket, and the write error
// (after logging it) when the send fails; the caller decides what to do.
func (d *Dispatcher) DispatchToConnection(ctx context.Context, agentIP string, task protocol.ScanTask) error {
	sess, ok := d.registry.Get(agentIP)
	if !ok || sess.Writer == nil {
		return errNoLiveSocket
	}
	if err := sess.Writer.Write(task); err != nil {
		logger.Errorw("masterconn: send scan task failed", logger.FieldAgentIP, agentIP, logger.FieldError, err)
		return err
	}
	d.registry.UpdateStatus(ctx, agentIP, registry.StatusScanning)
	d.publishEvent(eventbus.TypeScanDispatched, agentIP, task.TaskID)
	return nil
}

// DispatchOrQueue implements the admin-facing /scan contract: send
// immediately to every live, non-offline persisted agent; enqueue for
// the rest. Returns sent/queued/failed counts.
func (d *Dispatcher) DispatchOrQueue(ctx context.Context, agents []store.Agent, task protocol.ScanTask) (sent, queued, failed int) {
	payload, _ := json.Marshal(task)

	for _, a := range agents {
		if a.Status == registry.StatusOffline {
			if _, err := d.queue.Enqueue(ctx, a.AgentIP, task.TaskID, string(payload)); err != nil {
				logger.Errorw("masterconn: enqueue scan task failed", logger.FieldAgentIP, a.AgentIP, logger.FieldError, err)
				failed++
				continue
			}
			queued++
			continue
		}

		if err := d.DispatchToConnection(ctx, a.AgentIP, task); err != nil {
			if _, qerr := d.queue.Enqueue(ctx, a.AgentIP, task.TaskID, string(payload)); qerr != nil {
				failed++
				continue
			}
			queued++
			continue
		}
		sent++
	}
	return sent, queued, failed
}

// DrainScanTasks sends every pending queued scan task for agentIP over
// its live socket, strict FIFO, stopping at the first send failure (the
// failed task stays pending for the next heartbeat).
func (d *Dispatcher) DrainScanTasks(ctx context.Context, agentIP string) {
	sess, ok := d.registry.Get(agentIP)
	if !ok || sess.Writer == nil {
		return
	}

	cmds, err := d.queue.FetchPending(ctx, agentIP, 100)
	if err != nil {
		logger.Errorw("masterconn: fetch pending scan tasks failed", logger.FieldAgentIP, agentIP, logger.FieldError, err)
		return
	}
	for _, cmd := range cmds {
		var task protocol.ScanTask
		if err := json.Unmarshal([]byte(cmd.PayloadJSON), &task); err != nil {
			_ = d.queue.MarkFailed(ctx, cmd.ID, "decode queued payload: "+err.Error())
			break
		}
		if err := sess.Writer.Write(task); err != nil {
			_ = d.queue.MarkFailed(ctx, cmd.ID, err.Error())
			break
		}
		if err := d.queue.MarkSent(ctx, cmd.ID); err != nil {
			logger.Errorw("masterconn: mark scan task sent failed", logger.FieldError, err)
		}
		d.registry.UpdateStatus(ctx, agentIP, registry.StatusScanning)
	}
}

// DrainDeletes sends every pending queued delete_approved command for
// agentIP over its live socket, strict FIFO, stopping at the first send
// failure (the failed command stays pending for the next heartbeat).
func (d *Dispatcher) DrainDeletes(ctx context.Context, agentIP string, queue *store.DeleteQueueStore) {
	sess, ok := d.registry.Get(agentIP)
	if !ok || sess.Writer == nil {
		return
	}

	cmds, err := queue.FetchPending(ctx, agentIP, 100)
	if err != nil {
		logger.Errorw("masterconn: fetch pending delete commands failed", logger.FieldAgentIP, agentIP, logger.FieldError, err)
		return
	}
	for _, cmd := range cmds {
		var approved protocol.DeleteApproved
		if err := json.Unmarshal([]byte(cmd.PayloadJSON), &approved); err != nil {
			_ = queue.MarkFailed(ctx, cmd.ID, "decode queued payload: "+err.Error())
			break
		}
		if err := sess.Writer.Write(approved); err != nil {
			_ = queue.MarkFailed(ctx, cmd.ID, err.Error())
			break
		}
		if err := queue.MarkSent(ctx, cmd.ID); err != nil {
			logger.Errorw("masterconn: mark delete command sent failed", logger.FieldError, err)
		}
	}
}

func (d *Dispatcher) publishEvent(typ, agentIP, taskID string) {
	if d.bus == nil {
		return
	}
	d.bus.Publish(eventbus.TopicScan, typ, map[string]string{"agent_ip": agentIP, "task_id": taskID})
}

