package grpc

import (
	"time"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
)

// 金額一律為最小單位 (int64)

type CreateAccountRequest struct {
	HolderName     string `json:"holder_name"`
	InitialBalance int64  `json:"initial_balance"`
}

type AccountRequest struct {
	AccountID int64 `json:"account_id"`
}

type ListAccountsRequest struct{}

type AmountRequest struct {
	AccountID int64 `json:"account_id"`
	Amount    int64 `json:"amount"`
}

type TransferRequest struct {
	FromAccountID int64 `json:"from_account_id"`
	ToAccountID   int64 `json:"to_account_id"`
	Amount        int64 `json:"amount"`
}

type Account struct {
	ID         int64     `json:"id"`
	HolderName string    `json:"holder_name"`
	Balance    int64     `json:"balance"`
	Version    uint64    `json:"version"`
	CreatedAt  time.Time `json:"created_at"`
}

type Transaction struct {
	ID            int64                  `json:"id"`
	AccountID     int64                  `json:"account_id"`
	CorrelationID string                 `json:"correlation_id"`
	Amount        int64                  `json:"amount"`
	Type          domain.TransactionType `json:"type"`
	CreatedAt     time.Time              `json:"created_at"`
}

type AccountResponse struct {
	Account *Account `json:"account"`
}

type ListAccountsResponse struct {
	Accounts []*Account `json:"accounts"`
}

type DeleteAccountResponse struct{}

type TransferResponse struct {
	CorrelationID string       `json:"correlation_id"`
	From          *Account     `json:"from"`
	To            *Account     `json:"to"`
	Debit         *Transaction `json:"debit"`
	Credit        *Transaction `json:"credit"`
}

type ListTransactionsResponse struct {
	Transactions []*Transaction `json:"transactions"`
}

func toAccount(a *domain.Account) *Account {
	return &Account{
		ID:         a.ID,
		HolderName: a.HolderName,
		Balance:    a.Balance,
		Version:    a.Version,
		CreatedAt:  a.CreatedAt,
	}
}

func toTransaction(t *domain.Transaction) *Transaction {
	return &Transaction{
		ID:            t.ID,
		AccountID:     t.AccountID,
		CorrelationID: t.CorrelationID.String(),
		Amount:        t.Amount,
		Type:          t.Type,
		CreatedAt:     t.CreatedAt,
	}
}
