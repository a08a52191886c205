package rest

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
)

// 金額在 REST 上一律以主單位表示 (例如 12.34)

type CreateAccount struct {
	AccountHolderName string          `json:"accountHolderName"`
	Balance           decimal.Decimal `json:"balance"`
}

type AmountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type TransferFunds struct {
	FromAccountID int64           `json:"fromAccountId"`
	ToAccountID   int64           `json:"toAccountId"`
	Amount        decimal.Decimal `json:"amount"`
}

type AccountDto struct {
	ID                int64           `json:"id"`
	AccountHolderName string          `json:"accountHolderName"`
	Balance           decimal.Decimal `json:"balance"`
}

type TransactionDto struct {
	ID              int64                  `json:"id"`
	AccountID       int64                  `json:"accountId"`
	CorrelationID   string                 `json:"correlationId"`
	Amount          decimal.Decimal        `json:"amount"`
	TransactionType domain.TransactionType `json:"transactionType"`
	Timestamp       time.Time              `json:"timestamp"`
}

type TransferDto struct {
	CorrelationID string     `json:"correlationId"`
	FromAccount   AccountDto `json:"fromAccount"`
	ToAccount     AccountDto `json:"toAccount"`
}

// ErrorDetails 錯誤回應
type ErrorDetails struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Details   string    `json:"details"`
	ErrorCode string    `json:"errorCode"`
}

func toAccountDto(a *domain.Account) AccountDto {
	return AccountDto{
		ID:                a.ID,
		AccountHolderName: a.HolderName,
		Balance:           domain.FormatAmount(a.Balance),
	}
}

func toTransactionDto(t *domain.Transaction) TransactionDto {
	return TransactionDto{
		ID:              t.ID,
		AccountID:       t.AccountID,
		CorrelationID:   t.CorrelationID.String(),
		Amount:          domain.FormatAmount(t.Amount),
		TransactionType: t.Type,
		Timestamp:       t.CreatedAt,
	}
}
