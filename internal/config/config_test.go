package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":50051", cfg.Server.GRPCAddr)
	assert.Equal(t, ":8080", cfg.Server.HTTPAddr)
	assert.Equal(t, StorageMemory, cfg.Storage.Driver)
	assert.Equal(t, LockerMemory, cfg.Ledger.Locker)
	assert.Equal(t, 100, cfg.MySQL.MaxOpenConns)
	assert.Equal(t, 10, cfg.MySQL.MaxIdleConns)
	assert.Equal(t, 30*time.Minute, cfg.MySQL.ConnMaxLifetime)
	assert.Equal(t, "ledger.transaction_committed", cfg.Kafka.Topic)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	path := writeConfig(t, `
server:
  grpc_addr: ":6000"
storage:
  driver: mysql
mysql:
  host: db.internal
  user: ledger
  dbname: ledger
  max_open_conns: 20
redis:
  addrs: ["127.0.0.1:6379"]
ledger:
  locker: redis
  max_attempts: 8
  lock_ttl: 5s
log:
  format: json
`)
	t.Setenv("LEDGER_MYSQL_PASSWORD", "s3cret")
	t.Setenv("LEDGER_MYSQL_HOST", "db.override")
	t.Setenv("LEDGER_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("LEDGER_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":6000", cfg.Server.GRPCAddr)
	assert.Equal(t, StorageMySQL, cfg.Storage.Driver)
	assert.Equal(t, "db.override", cfg.MySQL.Host)
	assert.Equal(t, "s3cret", cfg.MySQL.Password)
	assert.Equal(t, 20, cfg.MySQL.MaxOpenConns)
	assert.Equal(t, 3306, cfg.MySQL.Port)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 8, cfg.Ledger.MaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.Ledger.LockTTL)

	logger := cfg.Log.NewLogger()
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)
}

func TestLoad_Invalid(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "storage: [oops"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, `
storage:
  driver: mysql
ledger:
  locker: redis
log:
  level: loud
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mysql.host")
	assert.Contains(t, err.Error(), "redis.addrs")
	assert.Contains(t, err.Error(), "loud")

	_, err = Load(writeConfig(t, "storage:\n  driver: postgres\n"))
	assert.ErrorContains(t, err, "postgres")
}
