// config_test.go — 配置加载默认值 + 环境变量覆盖测试。
package config

import (
	"os"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	// 确保关键环境变量未设置
	os.Unsetenv("MASTER_PORT")
	os.Unsetenv("SCAN_DIRS")
	os.Unsetenv("APP_DB_PATH")

	cfg := Load()

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"MasterIP", cfg.MasterIP, "0.0.0.0"},
		{"MasterPort", cfg.MasterPort, 5000},
		{"SocketReadTimeoutSec", cfg.SocketReadTimeoutSec, 5},
		{"ScanDirs", cfg.ScanDirs, "."},
		{"QuarantineDir", cfg.QuarantineDir, "./quarantine"},
		{"ClientID", cfg.ClientID, ""},
		{"AppDBPath", cfg.AppDBPath, "./data/mesh.db"},
		{"SweepIntervalSec", cfg.SweepIntervalSec, 10},
		{"OfflineTimeoutSec", cfg.OfflineTimeoutSec, 60},
		{"AdminHTTPAddr", cfg.AdminHTTPAddr, ":8000"},
		{"GinMode", cfg.GinMode, "release"},
		{"TrustedProxies", cfg.TrustedProxies, ""},
		{"StartMasterWithUI", cfg.StartMasterWithUI, true},
		{"AuditLogLimit", cfg.AuditLogLimit, 200},
		{"LogLevel", cfg.LogLevel, "INFO"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("MASTER_PORT", "6000")
	t.Setenv("SCAN_DIRS", "/srv/a,/srv/b")
	t.Setenv("APP_DB_PATH", "/tmp/test.db")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("START_MASTER_WITH_UI", "false")

	cfg := Load()

	if cfg.MasterPort != 6000 {
		t.Errorf("MasterPort = %d, want 6000", cfg.MasterPort)
	}
	if cfg.ScanDirs != "/srv/a,/srv/b" {
		t.Errorf("ScanDirs = %q, want '/srv/a,/srv/b'", cfg.ScanDirs)
	}
	if cfg.AppDBPath != "/tmp/test.db" {
		t.Errorf("AppDBPath = %q, want '/tmp/test.db'", cfg.AppDBPath)
	}
	if cfg.LogLevel != "DEBUG" {
		t.Errorf("LogLevel = %q, want 'DEBUG'", cfg.LogLevel)
	}
	if cfg.StartMasterWithUI {
		t.Errorf("StartMasterWithUI = true, want false")
	}
}

func TestLoadReturnsNonNil(t *testing.T) {
	cfg := Load()
	if cfg == nil {
		t.Fatal("Load() returned nil")
	}
}
