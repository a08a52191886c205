package grpc

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName 是 gRPC 服務的完整名稱
const ServiceName = "ledger.v1.LedgerService"

// LedgerServiceServer 是 ledger.v1.LedgerService 的伺服器介面
type LedgerServiceServer interface {
	CreateAccount(context.Context, *CreateAccountRequest) (*AccountResponse, error)
	GetAccount(context.Context, *AccountRequest) (*AccountResponse, error)
	ListAccounts(context.Context, *ListAccountsRequest) (*ListAccountsResponse, error)
	DeleteAccount(context.Context, *AccountRequest) (*DeleteAccountResponse, error)
	Deposit(context.Context, *AmountRequest) (*AccountResponse, error)
	Withdraw(context.Context, *AmountRequest) (*AccountResponse, error)
	Transfer(context.Context, *TransferRequest) (*TransferResponse, error)
	ListTransactions(context.Context, *AccountRequest) (*ListTransactionsResponse, error)
}

func fullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// unaryHandler 產生 grpc.MethodHandler，行為與 protoc-gen-go-grpc 產生的 handler 相同
func unaryHandler[Req, Resp any](method string, call func(LedgerServiceServer, context.Context, *Req) (*Resp, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(LedgerServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod(method),
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(LedgerServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// LedgerServiceDesc 手寫的 ServiceDesc，訊息以 JSON codec 編碼
var LedgerServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LedgerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateAccount", Handler: unaryHandler("CreateAccount", LedgerServiceServer.CreateAccount)},
		{MethodName: "GetAccount", Handler: unaryHandler("GetAccount", LedgerServiceServer.GetAccount)},
		{MethodName: "ListAccounts", Handler: unaryHandler("ListAccounts", LedgerServiceServer.ListAccounts)},
		{MethodName: "DeleteAccount", Handler: unaryHandler("DeleteAccount", LedgerServiceServer.DeleteAccount)},
		{MethodName: "Deposit", Handler: unaryHandler("Deposit", LedgerServiceServer.Deposit)},
		{MethodName: "Withdraw", Handler: unaryHandler("Withdraw", LedgerServiceServer.Withdraw)},
		{MethodName: "Transfer", Handler: unaryHandler("Transfer", LedgerServiceServer.Transfer)},
		{MethodName: "ListTransactions", Handler: unaryHandler("ListTransactions", LedgerServiceServer.ListTransactions)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ledger.proto",
}

// RegisterLedgerServiceServer 註冊服務
func RegisterLedgerServiceServer(s grpc.ServiceRegistrar, srv LedgerServiceServer) {
	s.RegisterService(&LedgerServiceDesc, srv)
}

// LedgerClient 是 ledger.v1.LedgerService 的客戶端，每次呼叫都使用 JSON codec
type LedgerClient struct {
	cc grpc.ClientConnInterface
}

// NewLedgerClient 建立客戶端
func NewLedgerClient(cc grpc.ClientConnInterface) *LedgerClient {
	return &LedgerClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, fullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *LedgerClient) CreateAccount(ctx context.Context, in *CreateAccountRequest, opts ...grpc.CallOption) (*AccountResponse, error) {
	return invoke[AccountResponse](ctx, c.cc, "CreateAccount", in, opts)
}

func (c *LedgerClient) GetAccount(ctx context.Context, in *AccountRequest, opts ...grpc.CallOption) (*AccountResponse, error) {
	return invoke[AccountResponse](ctx, c.cc, "GetAccount", in, opts)
}

func (c *LedgerClient) ListAccounts(ctx context.Context, in *ListAccountsRequest, opts ...grpc.CallOption) (*ListAccountsResponse, error) {
	return invoke[ListAccountsResponse](ctx, c.cc, "ListAccounts", in, opts)
}

func (c *LedgerClient) DeleteAccount(ctx context.Context, in *AccountRequest, opts ...grpc.CallOption) (*DeleteAccountResponse, error) {
	return invoke[DeleteAccountResponse](ctx, c.cc, "DeleteAccount", in, opts)
}

func (c *LedgerClient) Deposit(ctx context.Context, in *AmountRequest, opts ...grpc.CallOption) (*AccountResponse, error) {
	return invoke[AccountResponse](ctx, c.cc, "Deposit", in, opts)
}

func (c *LedgerClient) Withdraw(ctx context.Context, in *AmountRequest, opts ...grpc.CallOption) (*AccountResponse, error) {
	return invoke[AccountResponse](ctx, c.cc, "Withdraw", in, opts)
}

func (c *LedgerClient) Transfer(ctx context.Context, in *TransferRequest, opts ...grpc.CallOption) (*TransferResponse, error) {
	return invoke[TransferResponse](ctx, c.cc, "Transfer", in, opts)
}

func (c *LedgerClient) ListTransactions(ctx context.Context, in *AccountRequest, opts ...grpc.CallOption) (*ListTransactionsResponse, error) {
	return invoke[ListTransactionsResponse](ctx, c.cc, "ListTransactions", in, opts)
}
