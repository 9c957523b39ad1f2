package gemini

import (
	"context"
	"net/url"

	"github.com/gorilla/websocket"
	"github.com/mayavoice/maya-core/core/session"
)

const defaultEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

// Client opens live sessions against the Gemini bidirectional streaming API.
type Client struct {
	apiKey   string
	endpoint string
	dialer   *websocket.Dialer
}

var _ session.Dialer = (*Client)(nil)

type ClientOption func(*Client)

// WithEndpoint overrides the websocket endpoint. Used by tests.
func WithEndpoint(endpoint string) ClientOption {
	return func(c *Client) { c.endpoint = endpoint }
}

func WithWebsocketDialer(dialer *websocket.Dialer) ClientOption {
	return func(c *Client) { c.dialer = dialer }
}

func NewClient(apiKey string, opts ...ClientOption) *Client {
	client := &Client{
		apiKey:   apiKey,
		endpoint: defaultEndpoint,
		dialer:   websocket.DefaultDialer,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// Dial starts opening a live session and returns its channel immediately.
// Connection failures surface as a [session.Error] event on the channel's
// event stream, never as a returned error.
func (c *Client) Dial(ctx context.Context, cfg session.Config) session.Channel {
	channel := newLiveChannel()
	go channel.connect(ctx, c, cfg)
	return channel
}

func (c *Client) sessionURL() (string, error) {
	parsed, err := url.Parse(c.endpoint)
	if err != nil {
		return "", err
	}

	query := parsed.Query()
	query.Set("key", c.apiKey)
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
