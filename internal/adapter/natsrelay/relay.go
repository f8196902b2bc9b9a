// Package natsrelay exposes the dispatcher over NATS request/reply as a
// second inbound channel next to the gateway stream.
package natsrelay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/Wirebird/gitrelay/internal/config"
	"github.com/Wirebird/gitrelay/internal/relay"
)

// Dispatcher handles one decoded request envelope.
type Dispatcher interface {
	Dispatch(ctx context.Context, env relay.RequestEnvelope) relay.ResponseEnvelope
}

// Relay serves request envelopes arriving on a NATS subject. Instances
// sharing the queue group split the load.
type Relay struct {
	nc         *nats.Conn
	sub        *nats.Subscription
	cfg        config.NATS
	dispatcher Dispatcher
	log        *slog.Logger
}

// Connect establishes the NATS connection and subscribes the queue group.
func Connect(cfg config.NATS, d Dispatcher, log *slog.Logger) (*Relay, error) {
	nc, err := nats.Connect(cfg.URL, nats.Name("gitrelay"))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	r := &Relay{nc: nc, cfg: cfg, dispatcher: d, log: log}
	sub, err := nc.QueueSubscribe(cfg.Subject, cfg.Queue, r.handle)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("nats subscribe %s: %w", cfg.Subject, err)
	}
	r.sub = sub

	log.Info("nats relay listening", "url", cfg.URL, "subject", cfg.Subject, "queue", cfg.Queue)
	return r, nil
}

func (r *Relay) handle(msg *nats.Msg) {
	var env relay.RequestEnvelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		r.log.Warn("unparseable request on nats subject", "subject", msg.Subject, "error", err)
		// A reply is still owed so the requester does not wait out its timeout.
		resp := relay.ResponseEnvelope{
			StatusLine: relay.StatusLine{Code: 500, ReasonPhrase: "Internal Server Error"},
			Headers:    map[string]string{"Content-Type": "application/json"},
			Body:       fmt.Sprintf(`{"error":"Internal server error","message":%q}`, err.Error()),
		}
		r.reply(msg, resp)
		return
	}

	resp := r.dispatcher.Dispatch(context.Background(), env)
	r.reply(msg, resp)
}

func (r *Relay) reply(msg *nats.Msg, resp relay.ResponseEnvelope) {
	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(resp)
	if err != nil {
		r.log.Error("response marshal failed", "error", err)
		return
	}
	if err := msg.Respond(data); err != nil {
		r.log.Warn("nats respond failed", "error", err)
	}
}

// Close drains the subscription and shuts down the connection.
func (r *Relay) Close() error {
	if err := r.sub.Drain(); err != nil {
		return err
	}
	r.nc.Close()
	return nil
}
