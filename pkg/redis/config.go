package redis

import "time"

// Config 定義 Redis 連線配置
type Config struct {
	// Addrs: 一個位址為單機，多個位址為 Cluster
	Addrs    []string `yaml:"addrs"`
	Password string   `yaml:"password"`
	DB       int      `yaml:"db"`

	// DialTimeout: 建立客戶端時 Ping 的逾時
	DialTimeout time.Duration `yaml:"dial_timeout" split_words:"true"`
}
