// Package stream implements the messaging-gateway session: credential
// exchange, websocket connection, callback dispatch, and acknowledgement.
package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	relayotel "github.com/Wirebird/gitrelay/internal/adapter/otel"
	"github.com/Wirebird/gitrelay/internal/config"
	"github.com/Wirebird/gitrelay/internal/logger"
	"github.com/Wirebird/gitrelay/internal/port/dedupe"
	"github.com/Wirebird/gitrelay/internal/relay"
)

const (
	openPath = "/v1.0/gateway/connections/open"

	frameTypeSystem   = "SYSTEM"
	frameTypeCallback = "CALLBACK"
	topicPing         = "ping"
)

// Dispatcher handles one decoded request envelope.
type Dispatcher interface {
	Dispatch(ctx context.Context, env relay.RequestEnvelope) relay.ResponseEnvelope
}

// frame is an inbound gateway message.
type frame struct {
	SpecVersion string            `json:"specVersion,omitempty"`
	Type        string            `json:"type"`
	Headers     map[string]string `json:"headers"`
	Data        string            `json:"data"`
}

// ack is the reply sent for every inbound frame.
type ack struct {
	Code    int               `json:"code"`
	Headers map[string]string `json:"headers"`
	Message string            `json:"message"`
	Data    string            `json:"data,omitempty"`
}

// callbackData is the payload of a CALLBACK frame on the invoke topic.
type callbackData struct {
	Request relay.RequestEnvelope `json:"request"`
}

type responseData struct {
	Response relay.ResponseEnvelope `json:"response"`
}

// Client maintains one gateway session at a time and feeds callbacks into
// the dispatcher. Run blocks until the context is canceled, reconnecting
// with capped exponential backoff across session failures.
type Client struct {
	cfg        config.Stream
	dedupeTTL  time.Duration
	dispatcher Dispatcher
	dedupe     dedupe.Deduper
	log        *slog.Logger
	httpClient *http.Client
	connected  atomic.Bool
}

// NewClient creates a gateway stream client. dedupeTTL bounds how long a
// callback message ID suppresses redelivered copies.
func NewClient(cfg config.Stream, dedupeTTL time.Duration, d Dispatcher, dd dedupe.Deduper, log *slog.Logger) *Client {
	return &Client{
		cfg:        cfg,
		dedupeTTL:  dedupeTTL,
		dispatcher: d,
		dedupe:     dd,
		log:        log,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Connected reports whether a gateway session is currently established.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// Run connects and serves sessions until ctx is canceled. Each failed
// session doubles the retry delay up to the configured maximum; a session
// that establishes resets the delay.
func (c *Client) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		established, err := c.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if established {
			backoff = time.Second
		}

		c.log.Warn("stream session ended", "error", err, "retry_in", backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if max := c.cfg.MaxBackoff; max > 0 && backoff > max {
			backoff = max
		}
	}
}

// session runs one full connect/read cycle. The bool reports whether the
// websocket was established at all, which drives backoff reset.
func (c *Client) session(ctx context.Context) (bool, error) {
	endpoint, ticket, err := c.open(ctx)
	if err != nil {
		return false, fmt.Errorf("open connection: %w", err)
	}

	conn, _, err := websocket.Dial(ctx, endpoint+"?ticket="+url.QueryEscape(ticket), nil)
	if err != nil {
		return false, fmt.Errorf("dial gateway: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	c.connected.Store(true)
	defer c.connected.Store(false)
	c.log.Info("stream session established", "endpoint", endpoint)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return true, fmt.Errorf("read frame: %w", err)
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.log.Warn("unparseable frame", "error", err)
			continue
		}

		switch f.Type {
		case frameTypeSystem:
			c.handleSystem(ctx, conn, f)
		case frameTypeCallback:
			c.handleCallback(ctx, conn, f)
		default:
			c.log.Warn("unknown frame type", "type", f.Type)
		}
	}
}

// open exchanges credentials for a websocket endpoint and one-shot ticket.
func (c *Client) open(ctx context.Context) (endpoint, ticket string, err error) {
	payload, _ := json.Marshal(map[string]any{
		"clientId":     c.cfg.ClientID,
		"clientSecret": c.cfg.ClientSecret,
		"ua":           "gitrelay/1.0",
		"subscriptions": []map[string]string{
			{"type": frameTypeCallback, "topic": c.cfg.Topic},
		},
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.GatewayURL+openPath, bytes.NewReader(payload))
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("gateway returned %d: %s", resp.StatusCode, body)
	}

	var parsed struct {
		Endpoint string `json:"endpoint"`
		Ticket   string `json:"ticket"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", "", fmt.Errorf("parse open response: %w", err)
	}
	if parsed.Endpoint == "" || parsed.Ticket == "" {
		return "", "", fmt.Errorf("gateway response missing endpoint or ticket")
	}
	return parsed.Endpoint, parsed.Ticket, nil
}

// handleSystem answers gateway keepalives. Ping frames are echoed back with
// their own data; anything else is logged and dropped.
func (c *Client) handleSystem(ctx context.Context, conn *websocket.Conn, f frame) {
	if f.Headers[headerTopic] != topicPing {
		c.log.Debug("system frame ignored", "topic", f.Headers[headerTopic])
		return
	}
	c.send(ctx, conn, ack{
		Code:    http.StatusOK,
		Headers: ackHeaders(f.Headers[headerMessageID]),
		Message: "OK",
		Data:    f.Data,
	})
}

func (c *Client) handleCallback(ctx context.Context, conn *websocket.Conn, f frame) {
	messageID := f.Headers[headerMessageID]
	if messageID == "" {
		messageID = uuid.NewString()
	}
	ctx = logger.WithRequestID(ctx, messageID)
	ctx, span := relayotel.StartCallbackSpan(ctx, messageID, f.Headers[headerTopic])
	defer span.End()

	if f.Headers[headerTopic] != c.cfg.Topic {
		c.log.Warn("callback on unsubscribed topic", "topic", f.Headers[headerTopic])
		c.send(ctx, conn, ack{
			Code:    http.StatusNotFound,
			Headers: ackHeaders(messageID),
			Message: "unknown topic",
		})
		return
	}

	// A redelivered callback is acknowledged again but never dispatched
	// twice; the gateway only needs the ack to stop resending.
	if seen, err := c.dedupe.Seen(ctx, messageID); err == nil && seen {
		c.log.Info("duplicate callback re-acked", "message_id", messageID)
		c.send(ctx, conn, ack{
			Code:    http.StatusOK,
			Headers: ackHeaders(messageID),
			Message: relay.AckOK,
		})
		return
	}

	var cb callbackData
	if err := json.Unmarshal([]byte(f.Data), &cb); err != nil {
		c.log.Error("callback payload unparseable", "error", err)
		c.send(ctx, conn, ack{
			Code:    http.StatusBadRequest,
			Headers: ackHeaders(messageID),
			Message: "malformed payload",
		})
		return
	}

	resp := c.dispatcher.Dispatch(ctx, cb.Request)
	_ = c.dedupe.Mark(ctx, messageID, c.dedupeTTL)

	data, _ := json.Marshal(responseData{Response: resp})
	c.send(ctx, conn, ack{
		Code:    http.StatusOK,
		Headers: ackHeaders(messageID),
		Message: relay.AckOK,
		Data:    string(data),
	})
}

func (c *Client) send(ctx context.Context, conn *websocket.Conn, a ack) {
	data, err := json.Marshal(a)
	if err != nil {
		c.log.Error("ack marshal failed", "error", err)
		return
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		c.log.Warn("ack write failed", "error", err)
	}
}

const (
	headerTopic       = "topic"
	headerMessageID   = "messageId"
	headerContentType = "contentType"
)

func ackHeaders(messageID string) map[string]string {
	return map[string]string{
		headerMessageID:   messageID,
		headerContentType: "application/json",
	}
}
