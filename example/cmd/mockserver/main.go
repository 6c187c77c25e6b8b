// Standalone mock backend for exercising the CLI.
//
// It submits a coupon result to a running relay every few seconds and prints
// the stream URL a client can open for it.
//
// Usage:
//
//	go run ./cmd/couponrelay serve -c example/config.yaml
//
// Then in another terminal:
//
//	go run ./example/cmd/mockserver
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

type resultPayload struct {
	Kind      string    `json:"kind"`
	RequestID string    `json:"requestId"`
	Success   bool      `json:"success"`
	Detail    *string   `json:"detail"`
	IssuedAt  time.Time `json:"issuedAt"`
}

func main() {
	relayURL := "http://localhost:8080"
	if v := os.Getenv("RELAY_URL"); v != "" {
		relayURL = v
	}

	fmt.Printf("Mock backend submitting results to %s\n", relayURL)
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	client := &http.Client{Timeout: 5 * time.Second}
	kinds := []string{"ISSUE", "REDEEM"}

	for {
		payload := resultPayload{
			Kind:      kinds[rand.Intn(len(kinds))],
			RequestID: uuid.NewString(),
			Success:   rand.Intn(4) != 0,
			IssuedAt:  time.Now().UTC(),
		}
		if !payload.Success {
			detail := "coupon expired"
			payload.Detail = &detail
		}

		body, _ := json.Marshal(payload)
		resp, err := client.Post(relayURL+"/v1/coupon-messages", "application/json", bytes.NewReader(body))
		if err != nil {
			slog.Error("submit failed", "error", err)
		} else {
			resp.Body.Close()
			fmt.Printf("submitted %s %s (%d)\n  curl -N %s/v1/coupons/%s/results/%s/stream\n",
				payload.Kind, payload.RequestID, resp.StatusCode,
				relayURL, strings.ToLower(payload.Kind), payload.RequestID)
		}

		time.Sleep(time.Duration(2+rand.Intn(4)) * time.Second)
	}
}
