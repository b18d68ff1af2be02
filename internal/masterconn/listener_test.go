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

func TestListenerServeAcceptsAndStops(t *testing.T) {
	h, reg := newTestHandlerForListener(t)
	l := NewListener("127.0.0.1:0", h)

	// bind ourselves first to learn a free port, then hand that exact
	// address to the listener under test.
	probe, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("probe listen: %v", err)
	}
	addr := probe.Addr().String()
	probe.Close()
	l.addr = addr

	ctx, cancel := context.WithCancel(context.Background())
	serveErr := make(chan error, 1)
	go func() { serveErr <- l.Serve(ctx) }()

	// wait for the listener to actually bind before dialing.
	var conn net.Conn
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, err = net.Dial("tcp", addr)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("dial listener: %v", err)
	}
	defer conn.Close()

	if err := protocol.WriteFrame(conn, protocol.Register{Type: protocol.TypeRegister, ClientID: "agent-x"}); err != nil {
		t.Fatalf("write register: %v", err)
	}
	var task protocol.ScanTask
	if err := protocol.ReadFrame(conn, &task); err != nil {
		t.Fatalf("read default task: %v", err)
	}

	if len(reg.Active()) != 1 {
		t.Errorf("expected 1 active session, got %d", len(reg.Active()))
	}

	cancel()
	select {
	case err := <-serveErr:
		if err != nil {
			t.Errorf("expected nil error on context cancellation, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected Serve to return after context cancellation")
	}
}

func newTestHandlerForListener(t *testing.T) (*Handler, *registry.Registry) {
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
