package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
)

var tracer = otel.Tracer("github.com/JoeShih716/go-bank-ledger/usecase")

const (
	// DefaultMaxAttempts 條件更新遇到版本衝突時的最大嘗試次數
	DefaultMaxAttempts = 5

	// 補償動作不能輕易放棄，給更多次數
	compensationFactor = 4
)

// options 是 Engine 與 TransferCoordinator 共用的設定
type options struct {
	logger      *logrus.Logger
	publisher   EventPublisher
	maxAttempts int
	newBackOff  func() backoff.BackOff
}

// Option 定義了 Engine / TransferCoordinator 的配置選項函數
type Option func(*options)

// WithLogger 設定 logger，預設為 logrus.StandardLogger()
func WithLogger(logger *logrus.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMaxAttempts 設定條件更新的最大嘗試次數
func WithMaxAttempts(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// WithBackOff 設定重試間隔策略
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(o *options) {
		o.newBackOff = newBackOff
	}
}

// WithPublisher 設定 commit 後的事件發送者
func WithPublisher(publisher EventPublisher) Option {
	return func(o *options) {
		o.publisher = publisher
	}
}

func newOptions(opts []Option) options {
	o := options{
		logger:      logrus.StandardLogger(),
		maxAttempts: DefaultMaxAttempts,
		newBackOff:  defaultBackOff,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Millisecond
	b.MaxInterval = 50 * time.Millisecond
	b.MaxElapsedTime = 0
	return b
}

// retry 重複執行 op 直到成功、遇到版本衝突以外的錯誤，或次數用盡
// 次數用盡時回傳 domain.ErrConcurrencyExhausted
func (o *options) retry(ctx context.Context, attempts int, op func(attempt int) error) error {
	attempt := 0
	b := backoff.WithContext(backoff.WithMaxRetries(o.newBackOff(), uint64(attempts-1)), ctx)
	err := backoff.Retry(func() error {
		attempt++
		err := op(attempt)
		if err == nil || errors.Is(err, domain.ErrVersionConflict) {
			return err
		}
		return backoff.Permanent(err)
	}, b)
	if errors.Is(err, domain.ErrVersionConflict) {
		return fmt.Errorf("%w: gave up after %d attempts", domain.ErrConcurrencyExhausted, attempt)
	}
	return err
}

// applyDelta 以條件更新把 delta 套用到帳戶，版本衝突時重新讀取再算一次
func (o *options) applyDelta(ctx context.Context, s Store, accountID, delta int64, attempts int) (*domain.Account, error) {
	var updated *domain.Account
	err := o.retry(ctx, attempts, func(attempt int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		account, err := s.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		newBalance, err := shiftBalance(account, delta)
		if err != nil {
			return err
		}
		updated, err = s.CompareAndSwapBalance(ctx, accountID, account.Version, newBalance)
		if err != nil {
			o.auditFailure(accountID, delta, attempt, err)
			return err
		}
		return nil
	})
	return updated, err
}

// compensate 補償已 commit 的異動，不受呼叫端取消影響
func (o *options) compensate(ctx context.Context, s Store, accountID, delta int64) error {
	ctx = context.WithoutCancel(ctx)
	_, err := o.applyDelta(ctx, s, accountID, delta, o.maxAttempts*compensationFactor)
	if err != nil {
		o.logger.WithFields(logrus.Fields{
			"account_id": accountID,
			"delta":      delta,
		}).WithError(err).Error("compensating balance update failed, reconciliation required")
		return err
	}
	o.logger.WithFields(logrus.Fields{
		"account_id": accountID,
		"delta":      delta,
	}).Warn("compensating balance update applied")
	return nil
}

// appendCommitted 在餘額已 commit 後寫入交易紀錄，不受呼叫端取消影響
func (o *options) appendCommitted(ctx context.Context, s Store, records ...*domain.Transaction) error {
	ctx = context.WithoutCancel(ctx)
	b := backoff.WithMaxRetries(o.newBackOff(), uint64(o.maxAttempts-1))
	err := backoff.Retry(func() error {
		return s.AppendTransactions(ctx, records...)
	}, b)
	if err != nil {
		for _, rec := range records {
			o.logger.WithFields(logrus.Fields{
				"account_id":     rec.AccountID,
				"delta":          rec.Amount,
				"correlation_id": rec.CorrelationID,
			}).WithError(err).Error("append transaction failed after balance commit")
		}
	}
	return err
}

// auditFailure 記錄每一次到達條件更新卻失敗的嘗試，供對帳使用
func (o *options) auditFailure(accountID, delta int64, attempt int, err error) {
	o.logger.WithFields(logrus.Fields{
		"account_id": accountID,
		"delta":      delta,
		"attempt":    attempt,
	}).WithError(err).Warn("conditional balance update failed")
}

// publish 發送 commit 事件，失敗只記錄 log
func (o *options) publish(ctx context.Context, records ...*domain.Transaction) {
	if o.publisher == nil || len(records) == 0 {
		return
	}
	event := &TransactionCommitted{
		CorrelationID: records[0].CorrelationID.String(),
		Records:       records,
	}
	if err := o.publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
		o.logger.WithField("correlation_id", event.CorrelationID).WithError(err).Error("publish transaction event failed")
	}
}

func shiftBalance(account *domain.Account, delta int64) (int64, error) {
	if delta >= 0 {
		return account.Credit(delta)
	}
	return account.Debit(-delta)
}

func recordError(span trace.Span, err error) error {
	span.RecordError(err)
	return err
}
