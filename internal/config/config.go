// Package config 全局配置加载与管理。
//
// 所有字段通过 struct tag 声明环境变量映射:
//
//	`env:"VAR_NAME" default:"value" min:"0"`
//
// Load() 使用反射自动填充，无需手动逐行赋值。
package config

import (
	"github.com/filewarden/mesh/pkg/util"
)

// Config 应用全局配置，字段名与 .env 变量一一对应。
type Config struct {
	// Master 网络
	MasterIP   string `env:"MASTER_IP" default:"0.0.0.0"`
	MasterPort int    `env:"MASTER_PORT" default:"5000" min:"1"`

	// Agent 网络
	HeartbeatIntervalSec int    `env:"HEARTBEAT_INTERVAL" default:"15" min:"1"`
	ReconnectDelaySec    int    `env:"RECONNECT_DELAY" default:"5" min:"1"`
	SocketReadTimeoutSec int    `env:"SOCKET_READ_TIMEOUT_SEC" default:"5" min:"1"`
	ScanDirs             string `env:"SCAN_DIRS" default:"."`
	QuarantineDir        string `env:"QUARANTINE_DIR" default:"./quarantine"`
	ClientID             string `env:"CLIENT_ID"`

	// 持久化 (嵌入式 SQLite 文件)
	AppDBPath string `env:"APP_DB_PATH" default:"./data/mesh.db"`

	// Agent Registry
	SweepIntervalSec  int `env:"SWEEP_INTERVAL_SEC" default:"10" min:"1"`
	OfflineTimeoutSec int `env:"OFFLINE_TIMEOUT_SEC" default:"60" min:"1"`

	// Admin API
	AdminHTTPAddr     string `env:"ADMIN_HTTP_ADDR" default:":8000"`
	GinMode           string `env:"GIN_MODE" default:"release"`
	TrustedProxies    string `env:"TRUSTED_PROXIES" default:""`
	StartMasterWithUI bool   `env:"START_MASTER_WITH_UI" default:"true"`
	AuditLogLimit     int    `env:"AUDIT_LOG_LIMIT" default:"200" min:"1"`

	// 日志
	LogLevel string `env:"LOG_LEVEL" default:"INFO"`
}

// Load 从环境变量加载配置 (通过反射读取 struct tag)。
func Load() *Config {
	var cfg Config
	util.LoadFromEnv(&cfg)
	return &cfg
}
