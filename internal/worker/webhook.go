// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/adiadia/agent-progress/internal/domain"
	"github.com/adiadia/agent-progress/internal/metrics"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

const (
	webhookRetryAttempts    = 3
	defaultWebhookRetryBase = 300 * time.Millisecond
	webhookHeaderSig        = "X-Signature"
)

type terminalWebhookPayload struct {
	ThreadID   uuid.UUID           `json:"thread_id"`
	Status     domain.ThreadStatus `json:"status"`
	FinishedAt time.Time           `json:"finished_at"`
}

// deliverTerminalWebhook posts the terminal status to the thread's webhook
// with an HMAC signature, retrying transient failures with exponential
// backoff. Delivery is best-effort: the snapshot is already committed, so
// failures are logged and counted, never propagated.
func (w *Worker) deliverTerminalWebhook(
	ctx context.Context,
	threadID uuid.UUID,
	status domain.ThreadStatus,
	finishedAt time.Time,
	webhookURL string,
	webhookSecret string,
) {
	webhookURL = strings.TrimSpace(webhookURL)
	if webhookURL == "" || w.httpClient == nil {
		return
	}

	body, err := json.Marshal(terminalWebhookPayload{
		ThreadID:   threadID,
		Status:     status,
		FinishedAt: finishedAt,
	})
	if err != nil {
		w.logger.Error("webhook payload marshal failed",
			"thread_id", threadID,
			"status", status,
			"error", err,
		)
		metrics.IncWebhookDelivery("failed")
		return
	}

	signature := signWebhookPayload(webhookSecret, body)

	attempt := 0
	operation := func() error {
		attempt++

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
		if err != nil {
			// Nothing about the request changes between attempts.
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if signature != "" {
			req.Header.Set(webhookHeaderSig, signature)
		}

		resp, err := w.httpClient.Do(req)
		if err != nil {
			w.logger.Warn("webhook failure",
				"thread_id", threadID,
				"status", status,
				"attempt", attempt,
				"error", err,
			)
			return err
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
			w.logger.Info("webhook delivered",
				"thread_id", threadID,
				"status", status,
				"attempt", attempt,
				"response_status", resp.StatusCode,
			)
			return nil
		}

		err = fmt.Errorf("non-2xx response: %d", resp.StatusCode)
		w.logger.Warn("webhook failure",
			"thread_id", threadID,
			"status", status,
			"attempt", attempt,
			"response_status", resp.StatusCode,
		)
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(
			backoff.NewExponentialBackOff(backoff.WithInitialInterval(w.webhookRetryBase)),
			webhookRetryAttempts-1,
		),
		ctx,
	)
	if err := backoff.Retry(operation, policy); err != nil {
		w.logger.Error("webhook retries exhausted",
			"thread_id", threadID,
			"status", status,
			"error", err,
		)
		metrics.IncWebhookDelivery("failed")
		return
	}
	metrics.IncWebhookDelivery("delivered")
}

func signWebhookPayload(secret string, payload []byte) string {
	if strings.TrimSpace(secret) == "" {
		return ""
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
