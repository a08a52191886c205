package rest

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
)

// Ledger 是 REST adapter 依賴的用例，*usecase.CoreUseCase 實作了它
type Ledger interface {
	CreateAccount(ctx context.Context, holderName string, initialBalance int64) (*domain.Account, error)
	GetAccount(ctx context.Context, accountID int64) (*domain.Account, error)
	ListAccounts(ctx context.Context) ([]*domain.Account, error)
	DeleteAccount(ctx context.Context, accountID int64) error
	Deposit(ctx context.Context, accountID, amount int64) (*domain.Account, error)
	Withdraw(ctx context.Context, accountID, amount int64) (*domain.Account, error)
	Transfer(ctx context.Context, fromID, toID, amount int64) (*domain.Transfer, error)
	ListTransactions(ctx context.Context, accountID int64) ([]*domain.Transaction, error)
}

type Api struct {
	core   Ledger
	logger *logrus.Logger
}

func NewApi(core Ledger, logger *logrus.Logger) *Api {
	return &Api{core: core, logger: logger}
}

// Router 建立 gin engine 並註冊所有路由
func (a *Api) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), a.requestLogger())

	router.GET("/health", a.Health)

	accounts := router.Group("/api/accounts")
	accounts.POST("", a.CreateAccount)
	accounts.GET("", a.ListAccounts)
	accounts.POST("/transfer", a.Transfer)
	accounts.GET("/:id", a.GetAccount)
	accounts.DELETE("/:id", a.DeleteAccount)
	accounts.PUT("/:id/deposit", a.Deposit)
	accounts.PUT("/:id/withdraw", a.Withdraw)
	accounts.GET("/:id/transactions", a.ListTransactions)

	return router
}

func (a *Api) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		a.logger.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"latency": time.Since(start),
		}).Debug("http request")
	}
}
