package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	grpc_adapter "github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/in/grpc"
	"github.com/JoeShih716/go-bank-ledger/pkg/grpc"
)

type benchOptions struct {
	target      string
	total       int
	concurrency int
	amount      int64
	timeout     time.Duration
}

func main() {
	opts := benchOptions{}
	cmd := &cobra.Command{
		Use:           "ledger-bench",
		Short:         "run concurrent opposite transfers against a ledger gRPC server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			pool := grpc.NewPool(grpc.WithContentSubtype(grpc_adapter.CodecName))
			defer pool.Close()
			conn, err := pool.Get(opts.target)
			if err != nil {
				return err
			}
			r, err := run(ctx, grpc_adapter.NewLedgerClient(conn), opts)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), r)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.target, "target", "localhost:50051", "ledger gRPC address")
	cmd.Flags().IntVar(&opts.total, "total", 100000, "number of transfers")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 200, "in-flight transfers")
	cmd.Flags().Int64Var(&opts.amount, "amount", 100, "minor units per transfer")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "overall deadline")

	if err := cmd.Execute(); err != nil {
		logrus.WithError(err).Error("bench failed")
		os.Exit(1)
	}
}

// report 壓測結果
type report struct {
	total    int
	elapsed  time.Duration
	failures map[codes.Code]int
	before   int64
	after    int64
}

func (r *report) String() string {
	s := fmt.Sprintf("Completed %d requests in %v\nTPS: %.2f\n", r.total, r.elapsed, float64(r.total)/r.elapsed.Seconds())
	for code, n := range r.failures {
		s += fmt.Sprintf("  %s: %d\n", code, n)
	}
	return s + fmt.Sprintf("Balance sum before %d after %d\n", r.before, r.after)
}

// run 建立兩個帳戶並以交錯方向互轉，結束時檢查總額不變
func run(ctx context.Context, client *grpc_adapter.LedgerClient, opts benchOptions) (*report, error) {
	seed := opts.amount * int64(opts.total)
	ids := make([]int64, 2)
	for i := range ids {
		resp, err := client.CreateAccount(ctx, &grpc_adapter.CreateAccountRequest{
			HolderName:     gofakeit.Name(),
			InitialBalance: seed,
		})
		if err != nil {
			return nil, fmt.Errorf("create account: %w", err)
		}
		ids[i] = resp.Account.ID
	}

	var (
		mu       sync.Mutex
		failures = make(map[codes.Code]int)
		done     atomic.Int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.concurrency)

	start := time.Now()
	for i := 0; i < opts.total; i++ {
		from, to := ids[i%2], ids[(i+1)%2]
		g.Go(func() error {
			_, err := client.Transfer(gctx, &grpc_adapter.TransferRequest{
				FromAccountID: from,
				ToAccountID:   to,
				Amount:        opts.amount,
			})
			done.Add(1)
			if err != nil {
				mu.Lock()
				failures[status.Code(err)]++
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	elapsed := time.Since(start)

	var after int64
	for _, id := range ids {
		resp, err := client.GetAccount(ctx, &grpc_adapter.AccountRequest{AccountID: id})
		if err != nil {
			return nil, fmt.Errorf("get account %d: %w", id, err)
		}
		after += resp.Account.Balance
	}
	return &report{
		total:    int(done.Load()),
		elapsed:  elapsed,
		failures: failures,
		before:   seed * 2,
		after:    after,
	}, nil
}
