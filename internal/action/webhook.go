package action

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/Csepi/cal3-sub006/internal/rule"
	"github.com/Csepi/cal3-sub006/internal/smartvalue"
)

// WebhookTimeout caps every outbound call; a timeout is a normal action
// failure, never a crash.
const WebhookTimeout = 10 * time.Second

const maxResponseBytes = 64 << 10

// Webhook issues an outbound POST with an interpolated payload.
type Webhook struct {
	client *http.Client
}

// NewWebhook creates the executor. A nil client gets the default
// timeout-bounded one.
func NewWebhook(client *http.Client) *Webhook {
	if client == nil {
		client = &http.Client{Timeout: WebhookTimeout}
	}
	return &Webhook{client: client}
}

func (*Webhook) Type() rule.ActionType { return rule.ActionWebhook }

func (*Webhook) Validate(cfg map[string]any) error {
	raw := cfgString(cfg, "url")
	if raw == "" {
		return fmt.Errorf("webhook: url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("webhook: invalid url %q: %w", raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("webhook: url %q must be absolute http(s)", raw)
	}
	return nil
}

func (x *Webhook) Execute(ctx context.Context, a rule.Action, ec *smartvalue.Context) *Result {
	cfg := interp(a, ec)
	if err := x.Validate(cfg); err != nil {
		return fail(a, "%s", err)
	}

	payload := x.buildPayload(cfg, ec)
	body, err := json.Marshal(payload)
	if err != nil {
		return fail(a, "encode payload: %s", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfgString(cfg, "url"), bytes.NewReader(body))
	if err != nil {
		return fail(a, "build request: %s", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if headers, ok := cfg["headers"].(map[string]any); ok {
		for k, v := range headers {
			if s, isStr := v.(string); isStr {
				req.Header.Set(k, s)
			}
		}
	}

	resp, err := x.client.Do(req)
	if err != nil {
		return fail(a, "webhook call failed: %s", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fail(a, "webhook returned status %d", resp.StatusCode)
	}

	data := map[string]any{"statusCode": resp.StatusCode}
	var parsed any
	if json.Unmarshal(raw, &parsed) == nil {
		data["response"] = parsed
	} else if len(raw) > 0 {
		data["response"] = string(raw)
	}
	return succeed(a, data)
}

// buildPayload picks, in priority order: a custom payload (parsed as JSON
// when given as a string), the event data payload, or a minimal timestamp
// payload. The custom payload has already been interpolated with the config.
func (x *Webhook) buildPayload(cfg map[string]any, ec *smartvalue.Context) any {
	if custom, present := cfg["payload"]; present {
		if s, isStr := custom.(string); isStr {
			var parsed any
			if err := json.Unmarshal([]byte(s), &parsed); err == nil {
				return parsed
			}
			return map[string]any{"payload": s}
		}
		return custom
	}
	if cfgBool(cfg, "includeEventData", false) && ec.Event != nil {
		return map[string]any{
			"timestamp": time.Now().Format(time.RFC3339),
			"trigger":   string(ec.Trigger.Type),
			"event":     ec.Event.Snapshot(),
		}
	}
	return map[string]any{"timestamp": time.Now().Format(time.RFC3339)}
}
