package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/drlike/asthmabot/internal/kakao"
	"github.com/drlike/asthmabot/pkg/observability"
	"github.com/drlike/asthmabot/pkg/security"
)

// CallbackNotifier posts finished responses to the platform's
// callback URL. The guard refuses internal-network targets, since the
// URL arrives from the request body.
type CallbackNotifier struct {
	client *http.Client
	guard  *security.URLGuard
}

// NewCallbackNotifier creates a notifier. guard may be nil to skip
// target validation, for local testing.
func NewCallbackNotifier(guard *security.URLGuard) *CallbackNotifier {
	client := &http.Client{Timeout: 10 * time.Second}
	if guard != nil {
		client.Transport = guard.SecureTransport()
	}
	return &CallbackNotifier{client: client, guard: guard}
}

// Deliver posts the response envelope to callbackURL.
func (n *CallbackNotifier) Deliver(ctx context.Context, callbackURL string, resp *kakao.Response) error {
	if n.guard != nil {
		if err := n.guard.ValidateURL(callbackURL); err != nil {
			observability.RecordCallbackDelivery("blocked")
			return fmt.Errorf("callback URL rejected: %w", err)
		}
	}

	body, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode callback body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, callbackURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build callback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	res, err := n.client.Do(req)
	if err != nil {
		observability.RecordCallbackDelivery("error")
		return fmt.Errorf("post callback: %w", err)
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 4096))

	if res.StatusCode >= 300 {
		observability.RecordCallbackDelivery("error")
		return fmt.Errorf("callback returned status %d", res.StatusCode)
	}

	observability.RecordCallbackDelivery("success")
	log.Printf("[Callback Sent] status: %d", res.StatusCode)
	return nil
}
