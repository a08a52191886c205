package domain

import "errors"

var (
	// ErrAccountNotFound 找不到帳戶 (不存在或已刪除)
	ErrAccountNotFound = errors.New("account not found")

	// ErrInvalidAccount 帳戶資料不合法
	ErrInvalidAccount = errors.New("invalid account")

	// ErrInvalidAmount 金額必須為正數且精度不可超過 CurrencyScale
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInsufficientFunds 餘額不足
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrSelfTransfer 不可轉帳給自己
	ErrSelfTransfer = errors.New("cannot transfer to the same account")

	// ErrVersionConflict 條件更新失敗，帳戶已被其他請求修改
	ErrVersionConflict = errors.New("account version conflict")

	// ErrConcurrencyExhausted 競爭過於激烈，重試次數用盡
	ErrConcurrencyExhausted = errors.New("concurrency retries exhausted")

	// ErrTransferFailedRolledBack 轉帳失敗，已執行補償動作，轉帳未發生
	ErrTransferFailedRolledBack = errors.New("transfer failed and was rolled back")

	// ErrStorageUnavailable 底層儲存失敗
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// IsRetryable 回傳呼叫端是否可以重送同一個請求
// 只有 ErrConcurrencyExhausted 與 ErrStorageUnavailable 可以重試，其餘錯誤對相同輸入都是終態
// ErrTransferFailedRolledBack 即使原因是儲存失敗也視為終態
func IsRetryable(err error) bool {
	if errors.Is(err, ErrTransferFailedRolledBack) {
		return false
	}
	return errors.Is(err, ErrConcurrencyExhausted) || errors.Is(err, ErrStorageUnavailable)
}
