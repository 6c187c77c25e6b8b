package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/couponrelay"
)

func main() {
	// start mock push gateway (see mock_server.go)
	go StartMockGateway(":9999")
	time.Sleep(100 * time.Millisecond)

	relay, err := couponrelay.New(
		couponrelay.WithPort(8080),
		couponrelay.WithWebhook("http://localhost:9999/push", 2*time.Second, nil),
		couponrelay.WithSweepInterval(30*time.Second),
		couponrelay.WithEvictionAge(time.Minute),
	)
	if err != nil {
		slog.Error("failed to create relay", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  couponrelay demo")
	fmt.Println()
	fmt.Println("  A simulated backend submits results while simulated clients")
	fmt.Println("  connect, sometimes before and sometimes after their result.")
	fmt.Println("  Every delivery shows up in the mock gateway log.")
	fmt.Println()
	fmt.Println("  Stream one yourself:")
	fmt.Println("    curl -N localhost:8080/v1/coupons/issue/results/demo/stream")
	fmt.Println("    curl -XPOST localhost:8080/v1/coupon-messages \\")
	fmt.Println(`      -d '{"kind":"ISSUE","requestId":"demo","success":true}'`)
	fmt.Println()
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go simulate(ctx, relay)

	if err := relay.Start(ctx); err != nil {
		slog.Error("relay error", "error", err)
		os.Exit(1)
	}
}

// simulate plays out request ids with random ordering of result and
// connection. Roughly one in five clients never connects, leaving its result
// for the sweep.
func simulate(ctx context.Context, relay *couponrelay.Relay) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		requestID := uuid.NewString()
		kind := couponrelay.KindIssue
		if rand.Intn(2) == 0 {
			kind = couponrelay.KindRedeem
		}

		go func() {
			result := couponrelay.Result{
				RequestID: requestID,
				Kind:      kind,
				Success:   rand.Intn(4) != 0,
				IssuedAt:  time.Now(),
			}
			if !result.Success {
				detail := "coupon already used"
				result.Detail = &detail
			}

			connect := func() {
				if rand.Intn(5) == 0 {
					return
				}
				if _, err := relay.RegisterConnection(ctx, requestID); err != nil {
					slog.Error("register failed", "request_id", requestID, "error", err)
				}
			}

			if rand.Intn(2) == 0 {
				connect()
				time.Sleep(time.Duration(rand.Intn(500)) * time.Millisecond)
			}
			outcome, err := relay.Submit(ctx, result)
			if err != nil {
				slog.Error("submit failed", "request_id", requestID, "error", err)
				return
			}
			if outcome == couponrelay.Buffered {
				time.Sleep(time.Duration(rand.Intn(500)) * time.Millisecond)
				connect()
			}
		}()
	}
}
