package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
)

// DefaultTopic 交易 commit 事件的 topic
const DefaultTopic = "ledger.transaction_committed"

// messageWriter 是 kafka.Writer 用到的部分，方便測試替換
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config Kafka 發送設定
type Config struct {
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	WriteTimeout time.Duration `yaml:"write_timeout" split_words:"true"`
}

// transactionCommitted 事件在 topic 上的 JSON 格式
type transactionCommitted struct {
	CorrelationID string        `json:"correlation_id"`
	Records       []eventRecord `json:"records"`
}

type eventRecord struct {
	TransactionID int64                  `json:"transaction_id"`
	AccountID     int64                  `json:"account_id"`
	Type          domain.TransactionType `json:"type"`
	Amount        int64                  `json:"amount"`
	CreatedAt     time.Time              `json:"created_at"`
}

// Publisher 把交易 commit 事件送到 Kafka
// key 使用 correlation id，轉帳的兩筆紀錄在同一個訊息內
type Publisher struct {
	writer messageWriter
}

// NewPublisher 建立 Publisher
func NewPublisher(cfg Config) *Publisher {
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			WriteTimeout: cfg.WriteTimeout,
		},
	}
}

// Publish 送出事件
func (p *Publisher) Publish(ctx context.Context, event *usecase.TransactionCommitted) error {
	payload := transactionCommitted{
		CorrelationID: event.CorrelationID,
		Records:       make([]eventRecord, len(event.Records)),
	}
	for i, rec := range event.Records {
		payload.Records[i] = eventRecord{
			TransactionID: rec.ID,
			AccountID:     rec.AccountID,
			Type:          rec.Type,
			Amount:        rec.Amount,
			CreatedAt:     rec.CreatedAt,
		}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.CorrelationID, err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.CorrelationID),
		Value: data,
	})
}

// Close 關閉 writer，送出緩衝中的訊息
func (p *Publisher) Close() error {
	return p.writer.Close()
}

var _ usecase.EventPublisher = (*Publisher)(nil)
