// cmd/master — the master process: the TCP listener agents dial into,
// and the admin API the review UI talks to.
package main

import (
	"context"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/filewarden/mesh/internal/adminapi"
	"github.com/filewarden/mesh/internal/config"
	"github.com/filewarden/mesh/internal/database"
	"github.com/filewarden/mesh/internal/eventbus"
	"github.com/filewarden/mesh/internal/masterconn"
	"github.com/filewarden/mesh/internal/registry"
	"github.com/filewarden/mesh/internal/store"
	"github.com/filewarden/mesh/pkg/logger"
	"github.com/filewarden/mesh/pkg/util"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := config.Load()
	logger.Init(cfg.LogLevel)

	db, err := database.Open(ctx, cfg)
	if err != nil {
		logger.Fatal("database init failed", logger.FieldError, err)
	}
	defer db.Close()

	if err := database.Migrate(ctx, db, "./migrations"); err != nil {
		logger.Fatal("migration failed", logger.FieldError, err)
	}

	agentsStore := store.NewAgentsStore(db)
	pendingStore := store.NewPendingFilesStore(db)
	reportsStore := store.NewDeletionReportsStore(db)
	auditLogStore := store.NewAuditLogStore(db, reportsStore)
	deleteQueueStore := store.NewDeleteQueueStore(db)
	scanTaskQueueStore := store.NewScanTaskQueueStore(db)

	bus := eventbus.New()
	reg := registry.New(agentsStore)
	reg.StartSweeper(ctx, time.Duration(cfg.SweepIntervalSec)*time.Second, time.Duration(cfg.OfflineTimeoutSec)*time.Second)

	dispatcher := masterconn.NewDispatcher(reg, scanTaskQueueStore, bus)
	collector := masterconn.NewCollector(pendingStore, reportsStore, reg, bus)
	handler := masterconn.NewHandler(reg, dispatcher, collector, deleteQueueStore, bus)

	if cfg.StartMasterWithUI {
		listenAddr := cfg.MasterIP + ":" + strconv.Itoa(cfg.MasterPort)
		listener := masterconn.NewListener(listenAddr, handler)
		util.SafeGo(func() {
			if err := listener.Serve(ctx); err != nil {
				logger.Fatal("master listener failed", logger.FieldError, err)
			}
		})
	} else {
		logger.Info("master: START_MASTER_WITH_UI disabled; expecting external TCP listener")
	}

	adminSrv := adminapi.NewServer(&adminapi.Stores{
		Agents:        agentsStore,
		Pending:       pendingStore,
		AuditLog:      auditLogStore,
		DeleteQueue:   deleteQueueStore,
		ScanTaskQueue: scanTaskQueueStore,
	}, reg, dispatcher, bus, cfg)

	util.SafeGo(func() {
		if err := adminSrv.ListenAndServe(ctx, cfg.AdminHTTPAddr); err != nil {
			logger.Fatal("admin api failed", logger.FieldError, err)
		}
	})

	<-ctx.Done()
	logger.Info("master: shutting down")
}
