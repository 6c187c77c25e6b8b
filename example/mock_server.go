package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// StartMockGateway runs a push gateway stand-in that logs every result the
// relay forwards to it.
func StartMockGateway(addr string) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /push/", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		var result struct {
			RequestID string  `json:"requestId"`
			Kind      string  `json:"kind"`
			Success   bool    `json:"success"`
			Detail    *string `json:"detail"`
		}
		if err := json.Unmarshal(body, &result); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		slog.Info("gateway received result",
			"destination", strings.TrimPrefix(r.URL.Path, "/push/"),
			"request_id", result.RequestID,
			"kind", result.Kind,
			"success", result.Success,
		)
		w.WriteHeader(http.StatusAccepted)
	})

	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("mock gateway error", "error", err)
	}
}
