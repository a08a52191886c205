package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TransactionType 交易類型
type TransactionType uint8

const (
	// 存款
	TransactionTypeDeposit TransactionType = 1
	// 提款
	TransactionTypeWithdraw TransactionType = 2
	// 轉出 (轉帳的扣款方)
	TransactionTypeTransferOut TransactionType = 3
	// 轉入 (轉帳的入帳方)
	TransactionTypeTransferIn TransactionType = 4
)

var transactionTypeNames = map[TransactionType]string{
	TransactionTypeDeposit:     "DEPOSIT",
	TransactionTypeWithdraw:    "WITHDRAW",
	TransactionTypeTransferOut: "TRANSFER_OUT",
	TransactionTypeTransferIn:  "TRANSFER_IN",
}

func (t TransactionType) String() string {
	if name, ok := transactionTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TransactionType(%d)", uint8(t))
}

// MarshalText 讓 JSON (WAL、gRPC、REST) 都使用文字形式
func (t TransactionType) MarshalText() ([]byte, error) {
	if _, ok := transactionTypeNames[t]; !ok {
		return nil, fmt.Errorf("unknown transaction type %d", uint8(t))
	}
	return []byte(t.String()), nil
}

func (t *TransactionType) UnmarshalText(text []byte) error {
	parsed, err := ParseTransactionType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseTransactionType 由文字解析交易類型
func ParseTransactionType(s string) (TransactionType, error) {
	for t, name := range transactionTypeNames {
		if name == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown transaction type %q", s)
}

// Transaction 交易紀錄，寫入後不可修改或刪除
type Transaction struct {
	// ID: 由儲存層在 append 時遞增分配
	ID        int64
	AccountID int64
	// CorrelationID: 轉帳的兩筆紀錄共用同一個值
	CorrelationID uuid.UUID
	// Amount: 實際套用在餘額上的 delta，存款/轉入為正，提款/轉出為負
	Amount int64
	Type   TransactionType
	// CreatedAt: 由儲存層在 append 時給定，同一帳戶內不遞減
	CreatedAt time.Time
}

// NewTransaction 建立尚未 append 的紀錄，amount 為正數，正負號由 Type 決定
func NewTransaction(accountID int64, correlationID uuid.UUID, tranType TransactionType, amount int64) *Transaction {
	return &Transaction{
		AccountID:     accountID,
		CorrelationID: correlationID,
		Amount:        tranType.Sign() * amount,
		Type:          tranType,
	}
}

// Sign 回傳這個交易類型對餘額的方向
func (t TransactionType) Sign() int64 {
	switch t {
	case TransactionTypeWithdraw, TransactionTypeTransferOut:
		return -1
	default:
		return 1
	}
}

// Transfer 一次轉帳的結果
type Transfer struct {
	CorrelationID uuid.UUID
	From          *Account
	To            *Account
	Debit         *Transaction
	Credit        *Transaction
}

// LockOrder 回傳兩個帳號的鎖定順序 (由小到大)，不論誰是轉出方都一樣，避免交叉轉帳死鎖
func LockOrder(a, b int64) []int64 {
	if a < b {
		return []int64{a, b}
	}
	return []int64{b, a}
}
