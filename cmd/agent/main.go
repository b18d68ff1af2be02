// cmd/agent — the fleet client: connects to the master, scans its
// configured directories, and quarantines/deletes files on command.
package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/filewarden/mesh/internal/agent"
	"github.com/filewarden/mesh/internal/config"
	"github.com/filewarden/mesh/pkg/logger"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := config.Load()
	logger.Init(cfg.LogLevel)

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = defaultClientID()
	}

	a, err := agent.New(agent.Config{
		MasterIP:          cfg.MasterIP,
		MasterPort:        cfg.MasterPort,
		ClientID:          clientID,
		ScanDirs:          splitDirs(cfg.ScanDirs),
		QuarantineDir:     cfg.QuarantineDir,
		HeartbeatInterval: time.Duration(cfg.HeartbeatIntervalSec) * time.Second,
		ReconnectDelay:    time.Duration(cfg.ReconnectDelaySec) * time.Second,
		SocketReadTimeout: time.Duration(cfg.SocketReadTimeoutSec) * time.Second,
	})
	if err != nil {
		logger.Fatal("agent: init failed", logger.FieldError, err)
	}

	if err := a.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Fatal("agent: run failed", logger.FieldError, err)
	}
	logger.Info("agent: shut down")
}

// splitDirs parses config.Config.ScanDirs' comma-separated path list into
// the slice agent.Config expects.
func splitDirs(raw string) []string {
	parts := strings.Split(raw, ",")
	dirs := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			dirs = append(dirs, t)
		}
	}
	if len(dirs) == 0 {
		return []string{"."}
	}
	return dirs
}

// defaultClientID falls back to "host-pid" when CLIENT_ID isn't set,
// mirroring client-agent/agent.py's default client identity.
func defaultClientID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "agent"
	}
	return host + "-" + strconv.Itoa(os.Getpid())
}
