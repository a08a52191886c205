package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/out/kafka"
	"github.com/JoeShih716/go-bank-ledger/pkg/mysql"
	"github.com/JoeShih716/go-bank-ledger/pkg/redis"
)

// EnvPrefix 環境變數前綴，例如 LEDGER_MYSQL_HOST
const EnvPrefix = "LEDGER"

const (
	StorageMemory = "memory"
	StorageMySQL  = "mysql"

	LockerMemory = "memory"
	LockerRedis  = "redis"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	MySQL   mysql.Config  `yaml:"mysql"`
	Redis   redis.Config  `yaml:"redis"`
	Kafka   kafka.Config  `yaml:"kafka"`
	Ledger  LedgerConfig  `yaml:"ledger"`
	Log     LogConfig     `yaml:"log"`
}

type ServerConfig struct {
	GRPCAddr        string        `yaml:"grpc_addr" envconfig:"GRPC_ADDR"`
	HTTPAddr        string        `yaml:"http_addr" envconfig:"HTTP_ADDR"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" split_words:"true"`
}

type StorageConfig struct {
	// Driver: memory 或 mysql
	Driver string `yaml:"driver"`
	// WALPath: memory 模式的 WAL 檔案，空字串代表不落地
	WALPath string `yaml:"wal_path" envconfig:"WAL_PATH"`
}

type LedgerConfig struct {
	MaxAttempts int `yaml:"max_attempts" split_words:"true"`
	// Locker: 轉帳用的帳戶鎖，memory 只適用單一節點
	Locker  string        `yaml:"locker"`
	LockTTL time.Duration `yaml:"lock_ttl" envconfig:"LOCK_TTL"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text 或 json
}

// Load 讀取 YAML 設定檔，再以環境變數覆寫，最後補上預設值
// path 為空字串時只讀環境變數
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("load env config: %w", err)
	}
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Server.GRPCAddr == "" {
		c.Server.GRPCAddr = ":50051"
	}
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = ":8080"
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = StorageMemory
	}

	// 補全 MySQL 預設配置 (如果 yaml 沒寫)
	if c.MySQL.Port == 0 {
		c.MySQL.Port = 3306
	}
	if c.MySQL.MaxOpenConns == 0 {
		c.MySQL.MaxOpenConns = 100
	}
	if c.MySQL.MaxIdleConns == 0 {
		c.MySQL.MaxIdleConns = 10
	}
	if c.MySQL.ConnMaxLifetime == 0 {
		c.MySQL.ConnMaxLifetime = 30 * time.Minute
	}

	if c.Kafka.Topic == "" {
		c.Kafka.Topic = kafka.DefaultTopic
	}
	if c.Ledger.Locker == "" {
		c.Ledger.Locker = LockerMemory
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate 檢查互相依賴的設定
func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case StorageMemory:
	case StorageMySQL:
		if c.MySQL.Host == "" || c.MySQL.DBName == "" {
			errs = append(errs, errors.New("mysql.host and mysql.dbname are required for mysql storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	switch c.Ledger.Locker {
	case LockerMemory:
	case LockerRedis:
		if len(c.Redis.Addrs) == 0 {
			errs = append(errs, errors.New("redis.addrs is required for redis locker"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown locker %q", c.Ledger.Locker))
	}
	if c.Ledger.MaxAttempts < 0 {
		errs = append(errs, errors.New("ledger.max_attempts must not be negative"))
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// NewLogger 依照 log 設定建立 logger
func (c LogConfig) NewLogger() *logrus.Logger {
	logger := logrus.New()
	if level, err := logrus.ParseLevel(c.Level); err == nil {
		logger.SetLevel(level)
	}
	if c.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger
}
