package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "replication.cfg.json"

// ItemConfig places one equippable item at startup.
type ItemConfig struct {
	Name     string     `json:"name" mapstructure:"name"`
	Model    string     `json:"model" mapstructure:"model"`
	Position [3]float32 `json:"position" mapstructure:"position"`
}

// ServerConfig holds the replication server settings
type ServerConfig struct {
	Listen        string
	SessionName   string
	TickRate      time.Duration
	SyncInterval  time.Duration
	Bots          int
	StatusFile    string
	MonitorPeriod time.Duration
	Items         []ItemConfig
}

// ClientConfig holds the headless client settings
type ClientConfig struct {
	URL        string
	TickRate   time.Duration
	Duration   time.Duration // zero runs until interrupted
	AttackRate time.Duration // zero never attacks
}

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds SQLite storage backend settings
type SQLiteConfig struct {
	Path         string // empty keeps the database in memory
	DumpInterval time.Duration
	DumpPath     string
}

// WebSocketConfig holds the remote collector settings
type WebSocketConfig struct {
	URL    string
	Secret string
}

// StorageConfig selects and configures the session journal
type StorageConfig struct {
	Type      string // memory, sqlite, postgres, websocket or none
	Memory    MemoryConfig
	SQLite    SQLiteConfig
	WebSocket WebSocketConfig
}

// APIConfig holds the web frontend receiving session exports
type APIConfig struct {
	ServerURL string // empty disables uploads
	APIKey    string
	Tag       string
}

// InfluxConfig holds InfluxDB performance reporting settings
type InfluxConfig struct {
	Enabled    bool
	URL        string
	Token      string
	Org        string
	Bucket     string
	BackupPath string
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled        bool
	ServiceName    string
	BatchTimeout   time.Duration
	MetricInterval time.Duration
	Endpoint       string
	Insecure       bool
}

// LoggingConfig holds log output settings
type LoggingConfig struct {
	Level      string
	Dir        string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int

	// GraylogAddress is a host:port receiving GELF over UDP.
	GraylogAddress string
}

// Load reads configuration from the JSON file in configDir and sets default
// values. Environment variables prefixed REPL_ override file values, with
// dots replaced by underscores (REPL_SERVER_LISTEN).
func Load(configDir string) error {
	setDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

func setDefaults() {
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.dir", "")
	viper.SetDefault("logging.maxSizeMB", 50)
	viper.SetDefault("logging.maxBackups", 5)
	viper.SetDefault("logging.maxAgeDays", 14)
	viper.SetDefault("logging.graylogAddress", "")

	viper.SetDefault("server.listen", ":7777")
	viper.SetDefault("server.sessionName", "arena")
	viper.SetDefault("server.tickRate", "16ms")
	viper.SetDefault("server.syncInterval", "100ms")
	viper.SetDefault("server.bots", 0)
	viper.SetDefault("server.statusFile", "")
	viper.SetDefault("server.monitorPeriod", "1s")
	viper.SetDefault("server.items", []map[string]any{})

	viper.SetDefault("client.url", "ws://localhost:7777/ws")
	viper.SetDefault("client.tickRate", "16ms")
	viper.SetDefault("client.duration", "0s")
	viper.SetDefault("client.attackRate", "0s")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "replication")

	viper.SetDefault("storage.type", "none")
	viper.SetDefault("storage.memory.outputDir", "./sessions")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.sqlite.dumpPath", "")
	viper.SetDefault("storage.sqlite.path", "")
	viper.SetDefault("storage.websocket.url", "")
	viper.SetDefault("storage.websocket.secret", "")

	viper.SetDefault("api.serverUrl", "")
	viper.SetDefault("api.apiKey", "")
	viper.SetDefault("api.tag", "")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.url", "http://localhost:8086")
	viper.SetDefault("influx.token", "")
	viper.SetDefault("influx.org", "replication")
	viper.SetDefault("influx.bucket", "server_performance")
	viper.SetDefault("influx.backupPath", "")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "replication-server")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.metricInterval", "15s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetEnvPrefix("REPL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

// LoadDefaults applies defaults and env overrides without a config file.
func LoadDefaults() {
	setDefaults()
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetServerConfig returns the server settings.
func GetServerConfig() (ServerConfig, error) {
	cfg := ServerConfig{
		Listen:        viper.GetString("server.listen"),
		SessionName:   viper.GetString("server.sessionName"),
		TickRate:      viper.GetDuration("server.tickRate"),
		SyncInterval:  viper.GetDuration("server.syncInterval"),
		Bots:          viper.GetInt("server.bots"),
		StatusFile:    viper.GetString("server.statusFile"),
		MonitorPeriod: viper.GetDuration("server.monitorPeriod"),
	}
	if err := viper.UnmarshalKey("server.items", &cfg.Items); err != nil {
		return cfg, fmt.Errorf("parsing server.items: %w", err)
	}
	if cfg.TickRate <= 0 {
		return cfg, fmt.Errorf("server.tickRate must be positive, got %s", cfg.TickRate)
	}
	if cfg.SyncInterval <= 0 {
		return cfg, fmt.Errorf("server.syncInterval must be positive, got %s", cfg.SyncInterval)
	}
	return cfg, nil
}

// GetClientConfig returns the headless client settings.
func GetClientConfig() ClientConfig {
	return ClientConfig{
		URL:        viper.GetString("client.url"),
		TickRate:   viper.GetDuration("client.tickRate"),
		Duration:   viper.GetDuration("client.duration"),
		AttackRate: viper.GetDuration("client.attackRate"),
	}
}

// GetStorageConfig returns the journal settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			Path:         viper.GetString("storage.sqlite.path"),
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
			DumpPath:     viper.GetString("storage.sqlite.dumpPath"),
		},
		WebSocket: WebSocketConfig{
			URL:    viper.GetString("storage.websocket.url"),
			Secret: viper.GetString("storage.websocket.secret"),
		},
	}
}

// GetAPIConfig returns the upload settings.
func GetAPIConfig() APIConfig {
	return APIConfig{
		ServerURL: viper.GetString("api.serverUrl"),
		APIKey:    viper.GetString("api.apiKey"),
		Tag:       viper.GetString("api.tag"),
	}
}

// GetInfluxConfig returns the InfluxDB settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:    viper.GetBool("influx.enabled"),
		URL:        viper.GetString("influx.url"),
		Token:      viper.GetString("influx.token"),
		Org:        viper.GetString("influx.org"),
		Bucket:     viper.GetString("influx.bucket"),
		BackupPath: viper.GetString("influx.backupPath"),
	}
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:        viper.GetBool("otel.enabled"),
		ServiceName:    viper.GetString("otel.serviceName"),
		BatchTimeout:   viper.GetDuration("otel.batchTimeout"),
		MetricInterval: viper.GetDuration("otel.metricInterval"),
		Endpoint:       viper.GetString("otel.endpoint"),
		Insecure:       viper.GetBool("otel.insecure"),
	}
}

// GetLoggingConfig returns the log output settings.
func GetLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:          viper.GetString("logging.level"),
		Dir:            viper.GetString("logging.dir"),
		MaxSizeMB:      viper.GetInt("logging.maxSizeMB"),
		MaxBackups:     viper.GetInt("logging.maxBackups"),
		MaxAgeDays:     viper.GetInt("logging.maxAgeDays"),
		GraylogAddress: viper.GetString("logging.graylogAddress"),
	}
}
