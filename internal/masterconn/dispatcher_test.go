package masterconn

import (
	"context"
	"net"
	"strings"
	"testing"

	"github.com/filewarden/mesh/internal/eventbus"
	"github.com/filewarden/mesh/internal/protocol"
	"github.com/filewarden/mesh/internal/registry"
	"github.com/filewarden/mesh/internal/store"
)

func TestNewTaskIDFormat(t *testing.T) {
	id := NewTaskID()
	if !strings.HasPrefix(id, "scan-") {
		t.Fatalf("expected scan- prefix, got %q", id)
	}
	if len(id) != len("scan-")+8 {
		t.Fatalf("expected 8 hex char suffix, got %q", id)
	}
	if id == NewTaskID() {
		t.Fatal("expected distinct task ids across calls")
	}
}

func TestDefaultTask(t *testing.T) {
	task := DefaultTask("scan-abc123")
	if task.Type != protocol.TypeScanTask {
		t.Errorf("expected type %q, got %q", protocol.TypeScanTask, task.Type)
	}
	if len(task.TargetLanguages) != 1 || task.TargetLanguages[0] != "python" {
		t.Errorf("expected default python-only languages, got %v", task.TargetLanguages)
	}
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *registry.Registry, *store.ScanTaskQueueStore) {
	t.Helper()
	db := newTestDB(t)
	queue := store.NewScanTaskQueueStore(db)
	reg := registry.New(store.NewAgentsStore(db))
	return NewDispatcher(reg, queue, eventbus.New()), reg, queue
}

func TestDispatchToConnectionNoLiveSocket(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	ctx := context.Background()

	err := d.DispatchToConnection(ctx, "10.0.0.5", DefaultTask("scan-1"))
	if err == nil {
		t.Fatal("expected error dispatching to an unregistered agent")
	}
}

func TestDispatchToConnectionLiveSocket(t *testing.T) {
	d, reg, _ := newTestDispatcher(t)
	ctx := context.Background()

	server, client := net.Pipe()
	t.Cleanup(func() { server.Close(); client.Close() })

	reg.Register(ctx, "10.0.0.5", server, server.LocalAddr())
	reg.SetWriter("10.0.0.5", protocol.NewFrameWriter(server))

	done := make(chan error, 1)
	go func() {
		var got protocol.ScanTask
		done <- protocol.ReadFrame(client, &got)
	}()

	if err := d.DispatchToConnection(ctx, "10.0.0.5", DefaultTask("scan-1")); err != nil {
		t.Fatalf("DispatchToConnection: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("client read failed: %v", err)
	}

	sess, _ := reg.Get("10.0.0.5")
	if sess.Status != registry.StatusScanning {
		t.Errorf("expected status %q, got %q", registry.StatusScanning, sess.Status)
	}
}

func TestDispatchOrQueueOfflineAgentIsQueued(t *testing.T) {
	d, _, queue := newTestDispatcher(t)
	ctx := context.Background()

	agents := []store.Agent{{AgentIP: "10.0.0.9", Status: registry.StatusOffline}}
	sent, queued, failed := d.DispatchOrQueue(ctx, agents, DefaultTask("scan-2"))

	if sent != 0 || queued != 1 || failed != 0 {
		t.Fatalf("expected (0,1,0), got (%d,%d,%d)", sent, queued, failed)
	}

	cmds, err := queue.FetchPending(ctx, "10.0.0.9", 10)
	if err != nil {
		t.Fatalf("FetchPending: %v", err)
	}
	if len(cmds) != 1 {
		t.Fatalf("expected 1 queued command, got %d", len(cmds))
	}
}

func TestDispatchOrQueueLiveAgentIsSent(t *testing.T) {
	d, reg, _ := newTestDispatcher(t)
	ctx := context.Background()

	server, client := net.Pipe()
	t.Cleanup(func() { server.Close(); client.Close() })
	reg.Register(ctx, "10.0.0.6", server, server.LocalAddr())
	reg.SetWriter("10.0.0.6", protocol.NewFrameWriter(server))

	go func() {
		var got protocol.ScanTask
		protocol.ReadFrame(client, &got)
	}()

	agents := []store.Agent{{AgentIP: "10.0.0.6", Status: registry.StatusIdle}}
	sent, queued, failed := d.DispatchOrQueue(ctx, agents, DefaultTask("scan-3"))
	if sent != 1 || queued != 0 || failed != 0 {
		t.Fatalf("expected (1,0,0), got (%d,%d,%d)", sent, queued, failed)
	}
}

func TestDrainScanTasksSendsQueuedInOrder(t *testing.T) {
	d, reg, queue := newTestDispatcher(t)
	ctx := context.Background()

	server, client := net.Pipe()
	t.Cleanup(func() { server.Close(); client.Close() })
	reg.Register(ctx, "10.0.0.7", server, server.LocalAddr())
	reg.SetWriter("10.0.0.7", protocol.NewFrameWriter(server))

	if _, err := queue.Enqueue(ctx, "10.0.0.7", "scan-a", `{"type":"scan_task","task_id":"scan-a"}`); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := queue.Enqueue(ctx, "10.0.0.7", "scan-b", `{"type":"scan_task","task_id":"scan-b"}`); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	readDone := make(chan protocol.ScanTask, 2)
	go func() {
		for i := 0; i < 2; i++ {
			var got protocol.ScanTask
			protocol.ReadFrame(client, &got)
			readDone <- got
		}
	}()

	d.DrainScanTasks(ctx, "10.0.0.7")

	for _, want := range []string{"scan-a", "scan-b"} {
		got := <-readDone
		if got.TaskID != want {
			t.Errorf("expected task_id %s, got %q", want, got.TaskID)
		}
	}

	remaining, err := queue.FetchPending(ctx, "10.0.0.7", 10)
	if err != nil {
		t.Fatalf("FetchPending: %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("expected queue drained, got %d remaining", len(remaining))
	}
}
