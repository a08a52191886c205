package grpc

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
)

// Ledger 是 gRPC adapter 依賴的用例，*usecase.CoreUseCase 實作了它
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

type GrpcServer struct {
	core Ledger
}

func NewGrpcServer(core Ledger) *GrpcServer {
	return &GrpcServer{
		core: core,
	}
}

// NewServer 建立已註冊 LedgerService 的 *grpc.Server
func NewServer(core Ledger, logger *logrus.Logger, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(LoggingInterceptor(logger))}, opts...)
	s := grpc.NewServer(opts...)
	RegisterLedgerServiceServer(s, NewGrpcServer(core))
	return s
}

func (s *GrpcServer) CreateAccount(ctx context.Context, req *CreateAccountRequest) (*AccountResponse, error) {
	account, err := s.core.CreateAccount(ctx, req.HolderName, req.InitialBalance)
	if err != nil {
		return nil, toStatus(err)
	}
	return &AccountResponse{Account: toAccount(account)}, nil
}

func (s *GrpcServer) GetAccount(ctx context.Context, req *AccountRequest) (*AccountResponse, error) {
	account, err := s.core.GetAccount(ctx, req.AccountID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &AccountResponse{Account: toAccount(account)}, nil
}

func (s *GrpcServer) ListAccounts(ctx context.Context, _ *ListAccountsRequest) (*ListAccountsResponse, error) {
	accounts, err := s.core.ListAccounts(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	resp := &ListAccountsResponse{Accounts: make([]*Account, len(accounts))}
	for i, account := range accounts {
		resp.Accounts[i] = toAccount(account)
	}
	return resp, nil
}

func (s *GrpcServer) DeleteAccount(ctx context.Context, req *AccountRequest) (*DeleteAccountResponse, error) {
	if err := s.core.DeleteAccount(ctx, req.AccountID); err != nil {
		return nil, toStatus(err)
	}
	return &DeleteAccountResponse{}, nil
}

func (s *GrpcServer) Deposit(ctx context.Context, req *AmountRequest) (*AccountResponse, error) {
	account, err := s.core.Deposit(ctx, req.AccountID, req.Amount)
	if err != nil {
		return nil, toStatus(err)
	}
	return &AccountResponse{Account: toAccount(account)}, nil
}

func (s *GrpcServer) Withdraw(ctx context.Context, req *AmountRequest) (*AccountResponse, error) {
	account, err := s.core.Withdraw(ctx, req.AccountID, req.Amount)
	if err != nil {
		return nil, toStatus(err)
	}
	return &AccountResponse{Account: toAccount(account)}, nil
}

func (s *GrpcServer) Transfer(ctx context.Context, req *TransferRequest) (*TransferResponse, error) {
	transfer, err := s.core.Transfer(ctx, req.FromAccountID, req.ToAccountID, req.Amount)
	if err != nil {
		return nil, toStatus(err)
	}
	return &TransferResponse{
		CorrelationID: transfer.CorrelationID.String(),
		From:          toAccount(transfer.From),
		To:            toAccount(transfer.To),
		Debit:         toTransaction(transfer.Debit),
		Credit:        toTransaction(transfer.Credit),
	}, nil
}

func (s *GrpcServer) ListTransactions(ctx context.Context, req *AccountRequest) (*ListTransactionsResponse, error) {
	history, err := s.core.ListTransactions(ctx, req.AccountID)
	if err != nil {
		return nil, toStatus(err)
	}
	resp := &ListTransactionsResponse{Transactions: make([]*Transaction, len(history))}
	for i, tran := range history {
		resp.Transactions[i] = toTransaction(tran)
	}
	return resp, nil
}

// toStatus 把 domain 錯誤轉成 gRPC status
// ErrTransferFailedRolledBack 要先於 ErrStorageUnavailable 判斷，它可能包著儲存錯誤
func toStatus(err error) error {
	var code codes.Code
	switch {
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, domain.ErrTransferFailedRolledBack):
		code = codes.Aborted
	case errors.Is(err, domain.ErrAccountNotFound):
		code = codes.NotFound
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrSelfTransfer),
		errors.Is(err, domain.ErrInvalidAccount):
		code = codes.InvalidArgument
	case errors.Is(err, domain.ErrInsufficientFunds):
		code = codes.FailedPrecondition
	case errors.Is(err, domain.ErrConcurrencyExhausted):
		code = codes.Aborted
	case errors.Is(err, domain.ErrStorageUnavailable):
		code = codes.Unavailable
	default:
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}

// LoggingInterceptor 記錄每個請求的方法、耗時與結果
func LoggingInterceptor(logger *logrus.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		entry := logger.WithFields(logrus.Fields{
			"method":  info.FullMethod,
			"latency": time.Since(start),
			"code":    status.Code(err).String(),
		})
		if err != nil && status.Code(err) == codes.Internal {
			entry.WithError(err).Error("grpc request failed")
		} else {
			entry.Debug("grpc request")
		}
		return resp, err
	}
}

var _ LedgerServiceServer = (*GrpcServer)(nil)
