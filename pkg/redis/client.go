package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultDialTimeout = 500 * time.Millisecond

// Client 封裝 go-redis 的 UniversalClient
type Client struct {
	client redis.UniversalClient
}

// NewClient 建立 Redis 客戶端並確認連線
//
// 參數:
//
//	ctx: 用於 Ping
//	cfg: Config - Redis 連線配置
//
// 回傳值:
//
//	*Client: 封裝後的 Redis 客戶端
//	error: 位址為空或 Ping 失敗
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if len(cfg.Addrs) == 0 {
		return nil, errors.New("redis addrs cannot be empty")
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    cfg.Addrs,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %v: %w", cfg.Addrs, err)
	}
	return &Client{client: client}, nil
}

// NewClientFrom 包裝既有的 UniversalClient (測試用)
func NewClientFrom(client redis.UniversalClient) *Client {
	return &Client{client: client}
}

// Universal 回傳底層的 redis.UniversalClient
func (c *Client) Universal() redis.UniversalClient {
	return c.client
}

// Close 關閉連線
func (c *Client) Close() error {
	return c.client.Close()
}
