package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
)

func (a *Api) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "UP"})
}

func (a *Api) CreateAccount(c *gin.Context) {
	var req CreateAccount
	if err := c.ShouldBindJSON(&req); err != nil {
		a.badRequest(c, err)
		return
	}
	balance, err := domain.ParseBalance(req.Balance)
	if err != nil {
		a.fail(c, err)
		return
	}
	account, err := a.core.CreateAccount(c.Request.Context(), req.AccountHolderName, balance)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toAccountDto(account))
}

func (a *Api) GetAccount(c *gin.Context) {
	id, ok := a.accountID(c)
	if !ok {
		return
	}
	account, err := a.core.GetAccount(c.Request.Context(), id)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toAccountDto(account))
}

func (a *Api) ListAccounts(c *gin.Context) {
	accounts, err := a.core.ListAccounts(c.Request.Context())
	if err != nil {
		a.fail(c, err)
		return
	}
	resp := make([]AccountDto, len(accounts))
	for i, account := range accounts {
		resp[i] = toAccountDto(account)
	}
	c.JSON(http.StatusOK, resp)
}

func (a *Api) DeleteAccount(c *gin.Context) {
	id, ok := a.accountID(c)
	if !ok {
		return
	}
	if err := a.core.DeleteAccount(c.Request.Context(), id); err != nil {
		a.fail(c, err)
		return
	}
	c.String(http.StatusOK, "Account is deleted successfully!")
}

func (a *Api) Deposit(c *gin.Context) {
	a.applyAmount(c, a.core.Deposit)
}

func (a *Api) Withdraw(c *gin.Context) {
	a.applyAmount(c, a.core.Withdraw)
}

func (a *Api) applyAmount(c *gin.Context, op func(ctx context.Context, accountID, amount int64) (*domain.Account, error)) {
	id, ok := a.accountID(c)
	if !ok {
		return
	}
	var req AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.badRequest(c, err)
		return
	}
	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		a.fail(c, err)
		return
	}
	account, err := op(c.Request.Context(), id, amount)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toAccountDto(account))
}

func (a *Api) Transfer(c *gin.Context) {
	var req TransferFunds
	if err := c.ShouldBindJSON(&req); err != nil {
		a.badRequest(c, err)
		return
	}
	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		a.fail(c, err)
		return
	}
	transfer, err := a.core.Transfer(c.Request.Context(), req.FromAccountID, req.ToAccountID, amount)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, TransferDto{
		CorrelationID: transfer.CorrelationID.String(),
		FromAccount:   toAccountDto(transfer.From),
		ToAccount:     toAccountDto(transfer.To),
	})
}

func (a *Api) ListTransactions(c *gin.Context) {
	id, ok := a.accountID(c)
	if !ok {
		return
	}
	history, err := a.core.ListTransactions(c.Request.Context(), id)
	if err != nil {
		a.fail(c, err)
		return
	}
	resp := make([]TransactionDto, len(history))
	for i, tran := range history {
		resp[i] = toTransactionDto(tran)
	}
	c.JSON(http.StatusOK, resp)
}

func (a *Api) accountID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		a.badRequest(c, fmt.Errorf("invalid account id %q", c.Param("id")))
		return 0, false
	}
	return id, true
}

func (a *Api) badRequest(c *gin.Context, err error) {
	a.render(c, http.StatusBadRequest, "BAD_REQUEST", err)
}

// fail 把 domain 錯誤轉成 HTTP 狀態碼與錯誤碼
func (a *Api) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrTransferFailedRolledBack):
		a.render(c, http.StatusConflict, "TRANSFER_ROLLED_BACK", err)
	case errors.Is(err, domain.ErrAccountNotFound):
		a.render(c, http.StatusNotFound, "ACCOUNT_NOT_FOUND", err)
	case errors.Is(err, domain.ErrInvalidAmount):
		a.render(c, http.StatusBadRequest, "INVALID_AMOUNT", err)
	case errors.Is(err, domain.ErrInvalidAccount):
		a.render(c, http.StatusBadRequest, "INVALID_ACCOUNT", err)
	case errors.Is(err, domain.ErrSelfTransfer):
		a.render(c, http.StatusBadRequest, "SELF_TRANSFER", err)
	case errors.Is(err, domain.ErrInsufficientFunds):
		a.render(c, http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS", err)
	case errors.Is(err, domain.ErrConcurrencyExhausted):
		a.render(c, http.StatusConflict, "CONCURRENCY_EXHAUSTED", err)
	case errors.Is(err, domain.ErrStorageUnavailable):
		a.render(c, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", err)
	default:
		a.render(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", err)
	}
}

func (a *Api) render(c *gin.Context, status int, code string, err error) {
	if status >= http.StatusInternalServerError {
		a.logger.WithError(err).WithField("path", c.Request.URL.Path).Error("request failed")
	}
	c.AbortWithStatusJSON(status, ErrorDetails{
		Timestamp: time.Now(),
		Message:   err.Error(),
		Details:   "uri=" + c.Request.URL.Path,
		ErrorCode: code,
	})
}
