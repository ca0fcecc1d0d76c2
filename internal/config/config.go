package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config 全局配置结构体
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Machine   MachineConfig   `mapstructure:"machine"`
	Backend   BackendConfig   `mapstructure:"backend"`
	Realtime  RealtimeConfig  `mapstructure:"realtime"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Hardware  HardwareConfig  `mapstructure:"hardware"`
	Detector  DetectorConfig  `mapstructure:"detector"`
	Actuator  ActuatorConfig  `mapstructure:"actuator"`
	Identity  IdentityConfig  `mapstructure:"identity"`
	Redeem    RedeemConfig    `mapstructure:"redeem"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Heartbeat HeartbeatConfig `mapstructure:"heartbeat"`
	Log       LogConfig       `mapstructure:"log"`
	Security  SecurityConfig  `mapstructure:"security"`
	System    SystemConfig    `mapstructure:"system"`
}

// ServerConfig 本地维护API服务器配置
type ServerConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// MachineConfig 本机身份配置
type MachineConfig struct {
	ID            string `mapstructure:"id"`
	Secret        string `mapstructure:"secret"`
	PaperStock    int    `mapstructure:"paper_stock"`
	PaperCapacity int    `mapstructure:"paper_capacity"`
	PointsPerUnit int64  `mapstructure:"points_per_unit"`
}

// BackendConfig 后端REST接口配置
type BackendConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	HealthPath    string        `mapstructure:"health_path"`
	RetryTimes    int           `mapstructure:"retry_times"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
}

// RealtimeConfig 实时事件通道配置
type RealtimeConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	URL                string        `mapstructure:"url"`
	HandshakeTimeout   time.Duration `mapstructure:"handshake_timeout"`
	ReconnectInterval  time.Duration `mapstructure:"reconnect_interval"`
	MaxReconnectDelay  time.Duration `mapstructure:"max_reconnect_delay"`
	PingInterval       time.Duration `mapstructure:"ping_interval"`
	PongTimeout        time.Duration `mapstructure:"pong_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	StreamInterval     time.Duration `mapstructure:"stream_interval"`
	ScanCooldown       time.Duration `mapstructure:"scan_cooldown"`
	CooldownSkipWindow time.Duration `mapstructure:"cooldown_skip_window"`
}

// DatabaseConfig 本地离线数据库配置
type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogLevel        string        `mapstructure:"log_level"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// HardwareConfig 硬件配置
type HardwareConfig struct {
	MockMode      bool          `mapstructure:"mock_mode"` // 调试模式（使用模拟控制板）
	Port          string        `mapstructure:"port"`
	BaudRate      int           `mapstructure:"baud_rate"`
	DataBits      int           `mapstructure:"data_bits"`
	StopBits      int           `mapstructure:"stop_bits"`
	Parity        string        `mapstructure:"parity"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	RetryTimes    int           `mapstructure:"retry_times"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
	DisplayCols   int           `mapstructure:"display_cols"`
}

// DetectorConfig 纸张计数检测配置
type DetectorConfig struct {
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	DebounceDuration  time.Duration `mapstructure:"debounce_duration"`
	InitialTimeout    time.Duration `mapstructure:"initial_timeout"`
	InactivityTimeout time.Duration `mapstructure:"inactivity_timeout"`
	MaxUnits          int           `mapstructure:"max_units"`
	PrerollWait       time.Duration `mapstructure:"preroll_wait"`
	ClearWait         time.Duration `mapstructure:"clear_wait"`
}

// ActuatorConfig 出纸舵机配置
type ActuatorConfig struct {
	CollectIdle  float64       `mapstructure:"collect_idle"`
	CollectStart float64       `mapstructure:"collect_start"`
	CollectEnd   float64       `mapstructure:"collect_end"`
	RewardIdle   float64       `mapstructure:"reward_idle"`
	RewardStart  float64       `mapstructure:"reward_start"`
	RewardEnd    float64       `mapstructure:"reward_end"`
	AngleStep    float64       `mapstructure:"angle_step"`
	StepDelay    time.Duration `mapstructure:"step_delay"`
	MoveDelay    time.Duration `mapstructure:"move_delay"`
	ReturnDelay  time.Duration `mapstructure:"return_delay"`
}

// IdentityConfig 身份读卡配置
type IdentityConfig struct {
	ReadTimeout   time.Duration `mapstructure:"read_timeout"` // 0表示无限等待
	CheckInterval time.Duration `mapstructure:"check_interval"`
	ResultDwell   time.Duration `mapstructure:"result_dwell"`
}

// RedeemConfig 兑换出纸配置
type RedeemConfig struct {
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	ItemInterval  time.Duration `mapstructure:"item_interval"`
	DisplayDwell  time.Duration `mapstructure:"display_dwell"`
	DefaultCycles int           `mapstructure:"default_cycles"`
}

// SyncConfig 离线同步配置
type SyncConfig struct {
	Interval          time.Duration `mapstructure:"interval"`
	OnStartup         bool          `mapstructure:"on_startup"`
	NetworkCheckCache time.Duration `mapstructure:"network_check_cache"`
	NetworkTimeout    time.Duration `mapstructure:"network_timeout"`
	BatchLimit        int           `mapstructure:"batch_limit"`
	MaxRetries        int           `mapstructure:"max_retries"`
}

// HeartbeatConfig 心跳上报配置
type HeartbeatConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level   string            `mapstructure:"level"`
	Format  string            `mapstructure:"format"`
	Output  string            `mapstructure:"output"`
	File    LogFileConfig     `mapstructure:"file"`
	Modules map[string]string `mapstructure:"modules"`
}

// LogFileConfig 日志文件配置
type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	JWT         JWTConfig         `mapstructure:"jwt"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
}

// JWTConfig JWT配置
type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

// MaintenanceConfig 维护账户配置
type MaintenanceConfig struct {
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password_hash"`
}

// SystemConfig 系统配置
type SystemConfig struct {
	Timezone string `mapstructure:"timezone"`
	MaxProcs int    `mapstructure:"max_procs"`
}

var (
	cfg  *Config
	once sync.Once
	mu   sync.RWMutex
	v    *viper.Viper
)

// Init 初始化配置
func Init(configPath string) error {
	var err error
	once.Do(func() {
		v = viper.New()

		// 设置配置文件路径
		if configPath != "" {
			v.SetConfigFile(configPath)
		} else {
			v.SetConfigName("config")
			v.SetConfigType("yaml")
			v.AddConfigPath("./config")
			v.AddConfigPath(".")
		}

		// 设置环境变量前缀
		v.SetEnvPrefix("KIOSK")
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()

		// 设置默认值
		setDefaults(v)

		// 读取配置文件
		if err = v.ReadInConfig(); err != nil {
			// 配置文件不存在时使用默认配置
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return
			}
			err = nil
		}

		// 解析配置到结构体
		cfg = &Config{}
		if err = v.Unmarshal(cfg); err != nil {
			return
		}
	})

	return err
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	// 本地维护服务器默认配置
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "10s")

	// 本机身份默认配置
	v.SetDefault("machine.id", "KIOSK_001")
	v.SetDefault("machine.secret", "change-me")
	v.SetDefault("machine.paper_stock", 100)
	v.SetDefault("machine.paper_capacity", 100)
	v.SetDefault("machine.points_per_unit", 10)

	// 后端默认配置
	v.SetDefault("backend.base_url", "http://127.0.0.1:3000/api")
	v.SetDefault("backend.timeout", "10s")
	v.SetDefault("backend.health_path", "/health")
	v.SetDefault("backend.retry_times", 3)
	v.SetDefault("backend.retry_interval", "1s")

	// 实时通道默认配置
	v.SetDefault("realtime.enabled", true)
	v.SetDefault("realtime.url", "ws://127.0.0.1:3000/ws")
	v.SetDefault("realtime.handshake_timeout", "10s")
	v.SetDefault("realtime.reconnect_interval", "1s")
	v.SetDefault("realtime.max_reconnect_delay", "30s")
	v.SetDefault("realtime.ping_interval", "30s")
	v.SetDefault("realtime.pong_timeout", "60s")
	v.SetDefault("realtime.write_timeout", "10s")
	v.SetDefault("realtime.stream_interval", "2s")
	v.SetDefault("realtime.scan_cooldown", "6s")
	v.SetDefault("realtime.cooldown_skip_window", "3s")

	// 数据库默认配置
	v.SetDefault("database.enabled", true)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./data/kiosk.db")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.auto_migrate", true)

	// 硬件默认配置
	v.SetDefault("hardware.mock_mode", false)
	v.SetDefault("hardware.port", "/dev/ttyAMA0")
	v.SetDefault("hardware.baud_rate", 115200)
	v.SetDefault("hardware.data_bits", 8)
	v.SetDefault("hardware.stop_bits", 1)
	v.SetDefault("hardware.parity", "N")
	v.SetDefault("hardware.read_timeout", "500ms")
	v.SetDefault("hardware.write_timeout", "500ms")
	v.SetDefault("hardware.retry_times", 3)
	v.SetDefault("hardware.retry_interval", "2s")
	v.SetDefault("hardware.display_cols", 16)

	// 检测器默认配置
	v.SetDefault("detector.poll_interval", "100ms")
	v.SetDefault("detector.debounce_duration", "200ms")
	v.SetDefault("detector.initial_timeout", "30s")
	v.SetDefault("detector.inactivity_timeout", "10s")
	v.SetDefault("detector.max_units", 20)
	v.SetDefault("detector.preroll_wait", "3s")
	v.SetDefault("detector.clear_wait", "5s")

	// 舵机默认配置
	v.SetDefault("actuator.collect_idle", 90.0)
	v.SetDefault("actuator.collect_start", 180.0)
	v.SetDefault("actuator.collect_end", 0.0)
	v.SetDefault("actuator.reward_idle", 90.0)
	v.SetDefault("actuator.reward_start", 0.0)
	v.SetDefault("actuator.reward_end", 180.0)
	v.SetDefault("actuator.angle_step", 5.0)
	v.SetDefault("actuator.step_delay", "20ms")
	v.SetDefault("actuator.move_delay", "500ms")
	v.SetDefault("actuator.return_delay", "300ms")

	// 读卡默认配置
	v.SetDefault("identity.read_timeout", "0s")
	v.SetDefault("identity.check_interval", "500ms")
	v.SetDefault("identity.result_dwell", "4s")

	// 兑换默认配置
	v.SetDefault("redeem.poll_interval", "5s")
	v.SetDefault("redeem.item_interval", "2s")
	v.SetDefault("redeem.display_dwell", "3s")
	v.SetDefault("redeem.default_cycles", 1)

	// 同步默认配置
	v.SetDefault("sync.interval", "60s")
	v.SetDefault("sync.on_startup", true)
	v.SetDefault("sync.network_check_cache", "10s")
	v.SetDefault("sync.network_timeout", "3s")
	v.SetDefault("sync.batch_limit", 50)
	v.SetDefault("sync.max_retries", 5)

	// 心跳默认配置
	v.SetDefault("heartbeat.interval", "60s")

	// 日志默认配置
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "both")
	v.SetDefault("log.file.path", "./logs")
	v.SetDefault("log.file.filename", "kiosk.log")
	v.SetDefault("log.file.max_size", 100)
	v.SetDefault("log.file.max_age", 30)
	v.SetDefault("log.file.max_backups", 7)
	v.SetDefault("log.file.compress", true)

	// 安全默认配置
	v.SetDefault("security.jwt.secret", "kiosk-dev-secret")
	v.SetDefault("security.jwt.expire_hours", 12)
	v.SetDefault("security.maintenance.username", "maintainer")
}

// Get 获取配置实例
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// Watch 监听配置文件变化
func Watch(callback func(*Config)) {
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		mu.Lock()
		defer mu.Unlock()

		newCfg := &Config{}
		if err := v.Unmarshal(newCfg); err != nil {
			fmt.Printf("配置重载失败: %v\n", err)
			return
		}

		cfg = newCfg

		if callback != nil {
			callback(cfg)
		}

		fmt.Println("配置已重新加载")
	})
}

// GetString 获取字符串配置
func GetString(key string) string {
	return v.GetString(key)
}

// GetInt 获取整数配置
func GetInt(key string) int {
	return v.GetInt(key)
}

// GetBool 获取布尔配置
func GetBool(key string) bool {
	return v.GetBool(key)
}

// GetDuration 获取时间间隔配置
func GetDuration(key string) time.Duration {
	return v.GetDuration(key)
}

// IsSet 检查配置项是否存在
func IsSet(key string) bool {
	return v.IsSet(key)
}

// Set 动态设置配置值
func Set(key string, value interface{}) {
	v.Set(key, value)
}
