package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/mitchellh/mapstructure"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// WebhookName is the action name declared to the remote model.
const WebhookName = "triggerWebhook"

const webhookDescription = "Deliver a JSON payload to an operator-supplied HTTP endpoint and report the response."

type webhookArgs struct {
	// URL is the endpoint to POST to.
	URL string `json:"url" jsonschema_description:"HTTP endpoint that receives the payload"`
	// Payload is the JSON body to deliver.
	Payload map[string]any `json:"payload,omitempty" jsonschema_description:"JSON body to deliver to the endpoint"`
}

type webhook struct {
	client *http.Client
	token  func() string
}

type WebhookOption func(*webhook)

// WithBearerToken attaches a fixed credential to every webhook call.
func WithBearerToken(token string) WebhookOption {
	return WithBearerTokenSource(func() string { return token })
}

// WithBearerTokenSource attaches a credential that is resolved again on
// every call, so settings edits apply without rebuilding the dispatcher.
func WithBearerTokenSource(source func() string) WebhookOption {
	return func(w *webhook) { w.token = source }
}

func WithHTTPClient(client *http.Client) WebhookOption {
	return func(w *webhook) { w.client = client }
}

// NewWebhook builds the triggerWebhook action definition. The parameter
// schema is reflected from the argument struct so the declaration always
// matches what the handler decodes.
func NewWebhook(opts ...WebhookOption) Definition {
	hook := &webhook{
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   15 * time.Second,
		},
		token: func() string { return "" },
	}

	for _, opt := range opts {
		opt(hook)
	}

	reflector := jsonschema.Reflector{DoNotReference: true}
	return Definition{
		Name:        WebhookName,
		Description: webhookDescription,
		Parameters:  reflector.Reflect(&webhookArgs{}),
		Handler:     hook.handle,
	}
}

func (w *webhook) handle(ctx context.Context, rawArgs map[string]any) Result {
	var args webhookArgs
	if err := mapstructure.Decode(rawArgs, &args); err != nil {
		return failureResult(
			map[string]any{"error": fmt.Sprintf("invalid arguments: %v", err)},
			"Webhook arguments could not be decoded",
		)
	}
	if args.URL == "" {
		return failureResult(
			map[string]any{"error": "missing url argument"},
			"Webhook request was missing a URL",
		)
	}

	body, err := json.Marshal(args.Payload)
	if err != nil {
		return failureResult(
			map[string]any{"error": fmt.Sprintf("payload could not be encoded: %v", err)},
			"Webhook payload could not be encoded",
		)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, args.URL, bytes.NewReader(body))
	if err != nil {
		return failureResult(
			map[string]any{"error": fmt.Sprintf("invalid webhook request: %v", err)},
			"Webhook request could not be built",
		)
	}
	request.Header.Set("Content-Type", "application/json")
	if token := w.token(); token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}

	response, err := w.client.Do(request)
	if err != nil {
		logger.WarnContext(ctx, "webhook call failed", "url", args.URL, "error", err)
		return failureResult(
			map[string]any{"error": err.Error()},
			"Webhook call failed: "+err.Error(),
		)
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(io.LimitReader(response.Body, 1<<20))
	if err != nil {
		return failureResult(
			map[string]any{"error": fmt.Sprintf("failed to read response: %v", err), "status": response.StatusCode},
			fmt.Sprintf("Webhook response could not be read (HTTP %d)", response.StatusCode),
		)
	}

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return failureResult(
			map[string]any{"error": "endpoint returned an error", "status": response.StatusCode},
			fmt.Sprintf("Webhook returned HTTP %d", response.StatusCode),
		)
	}

	return successResult(
		parseResponsePayload(responseBody),
		fmt.Sprintf("Webhook delivered (HTTP %d)", response.StatusCode),
	)
}

// parseResponsePayload prefers the structured response body; anything that is
// not a JSON object is wrapped under a success marker.
func parseResponsePayload(body []byte) map[string]any {
	var structured map[string]any
	if err := json.Unmarshal(body, &structured); err == nil {
		return structured
	}

	return map[string]any{"success": true, "output": string(bytes.TrimSpace(body))}
}
