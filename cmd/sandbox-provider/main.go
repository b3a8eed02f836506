// Command sandbox-provider emulates the asynchronous half of a payment
// provider for local development: given an external id and a native status it
// builds a provider-shaped webhook payload, signs it the way the real provider
// would, and delivers it to the running API after an optional delay.
package main

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/fedpay/payment-core/internal/logging"
)

type emitRequest struct {
	Provider   string `json:"provider"`
	ExternalID string `json:"external_id"`
	Status     string `json:"status"`
	DelayMs    int    `json:"delay_ms"`
}

type emitter struct {
	callbackURL string
	mpSecret    string
	psKey       string
	httpClient  *http.Client
}

func main() {
	logging.Init("sandbox-provider", "info", os.Getenv("APP_ENV"))

	e := &emitter{
		callbackURL: envOr("CALLBACK_URL", "http://localhost:8080/api/v1/webhooks"),
		mpSecret:    os.Getenv("MERCADOPAGO_WEBHOOK_SECRET"),
		psKey:       os.Getenv("PAGSEGURO_AUTHENTICITY_KEY"),
		httpClient:  &http.Client{Timeout: 10 * time.Second},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]string{"status": "ok"}); err != nil {
			slog.Error("failed to write health response", "error", err)
		}
	})
	mux.HandleFunc("POST /emit", e.handleEmit)

	slog.Info("sandbox provider started", "addr", ":8081")
	if err := http.ListenAndServe(":8081", mux); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func (e *emitter) handleEmit(w http.ResponseWriter, r *http.Request) {
	var req emitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if req.ExternalID == "" || req.Status == "" {
		http.Error(w, "external_id and status are required", http.StatusBadRequest)
		return
	}

	go func() {
		if req.DelayMs > 0 {
			time.Sleep(time.Duration(req.DelayMs) * time.Millisecond)
		}
		if err := e.deliver(req); err != nil {
			slog.Error("webhook delivery failed", "provider", req.Provider, "error", err)
		}
	}()

	w.WriteHeader(http.StatusAccepted)
}

func (e *emitter) deliver(req emitRequest) error {
	var payload []byte
	var header, signature string
	var err error

	switch req.Provider {
	case "PAGSEGURO":
		payload, err = json.Marshal(map[string]any{
			"id": req.ExternalID,
			"charges": []map[string]string{
				{"id": "CHAR_" + req.ExternalID, "status": req.Status},
			},
		})
		if err != nil {
			return err
		}
		sum := sha256.Sum256(append([]byte(e.psKey+"-"), payload...))
		header = "X-Authenticity-Token"
		signature = hex.EncodeToString(sum[:])
	default:
		req.Provider = "MERCADO_PAGO"
		payload, err = json.Marshal(map[string]any{
			"action": "payment.updated",
			"type":   "payment",
			"data":   map[string]string{"id": req.ExternalID, "status": req.Status},
		})
		if err != nil {
			return err
		}
		ts := fmt.Sprintf("%d", time.Now().Unix())
		mac := hmac.New(sha256.New, []byte(e.mpSecret))
		mac.Write([]byte(fmt.Sprintf("id:%s;ts:%s;", req.ExternalID, ts)))
		header = "X-Signature"
		signature = fmt.Sprintf("ts=%s,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
	}

	url := e.callbackURL + "/" + req.Provider
	httpReq, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(header, signature)

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	slog.Info("webhook delivered",
		"provider", req.Provider,
		"external_id", req.ExternalID,
		"status", req.Status,
		"response_status", resp.StatusCode,
		"response", string(body),
	)
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
