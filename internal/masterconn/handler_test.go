package masterconn

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/filewarden/mesh/internal/eventbus"
	"github.com/filewarden/mesh/internal/protocol"
	"github.com/filewarden/mesh/internal/registry"
	"github.com/filewarden/mesh/internal/store"
)

func newTestHandler(t *testing.T) (*Handler, *registry.Registry) {
	t.Helper()
	db := newTestDB(t)
	agentsStore := store.NewAgentsStore(db)
	pending := store.NewPendingFilesStore(db)
	reports := store.NewDeletionReportsStore(db)
	scanQueue := store.NewScanTaskQueueStore(db)
	deleteQueue := store.NewDeleteQueueStore(db)
	bus := eventbus.New()

	reg := registry.New(agentsStore)
	dispatcher := NewDispatcher(reg, scanQueue, bus)
	collector := NewCollector(pending, reports, reg, bus)
	return NewHandler(reg, dispatcher, collector, deleteQueue, bus), reg
}

func TestHandleRegistersAgentAndSendsDefaultTask(t *testing.T) {
	h, reg := newTestHandler(t)

	server, client := net.Pipe()
	defer client.Close()

	done := make(chan struct{})
	go func() {
		h.Handle(context.Background(), server)
		close(done)
	}()

	if err := protocol.WriteFrame(client, protocol.Register{Type: protocol.TypeRegister, ClientID: "agent-1"}); err != nil {
		t.Fatalf("write register frame: %v", err)
	}

	var task protocol.ScanTask
	if err := protocol.ReadFrame(client, &task); err != nil {
		t.Fatalf("read default task: %v", err)
	}
	if task.Type != protocol.TypeScanTask {
		t.Errorf("expected scan_task, got %q", task.Type)
	}

	// net.Pipe has no real address; Handle's SplitHostPort falls back to
	// the raw Addr.String(), which net.Pipe always reports as "pipe".
	const agentIP = "pipe"
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, ok := reg.Get(agentIP); ok {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if _, ok := reg.Get(agentIP); !ok {
		t.Fatalf("expected agent %q registered", agentIP)
	}

	client.Close()
	<-done
}

func TestHandleRejectsNonRegisterFirstFrame(t *testing.T) {
	h, _ := newTestHandler(t)

	server, client := net.Pipe()
	defer client.Close()

	done := make(chan struct{})
	go func() {
		h.Handle(context.Background(), server)
		close(done)
	}()

	if err := protocol.WriteFrame(client, protocol.Heartbeat{Type: protocol.TypeHeartbeat, ClientID: "agent-2"}); err != nil {
		t.Fatalf("write heartbeat frame: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Handle to return after rejecting non-register first frame")
	}
}
