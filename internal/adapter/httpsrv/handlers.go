// Package httpsrv provides the operational HTTP surface: health, route
// diagnostics, and a debug invoke endpoint. The relay's own request surface
// stays on the stream and NATS channels.
package httpsrv

import (
	"context"
	"net/http"

	"github.com/Wirebird/gitrelay/internal/relay"
	"github.com/Wirebird/gitrelay/internal/resilience"
)

const invokeBodyLimit = 1 << 20 // 1 MiB

// Dispatcher is the slice of the relay core the ops surface needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, env relay.RequestEnvelope) relay.ResponseEnvelope
	Routes() []relay.RouteInfo
}

// Handlers serves the operational endpoints.
type Handlers struct {
	dispatcher  Dispatcher
	upstreamURL string
	breaker     *resilience.Breaker
	// streamState reports gateway session health; nil when the stream
	// channel is not configured.
	streamState func() bool
}

// NewHandlers creates the ops handlers. streamState may be nil.
func NewHandlers(d Dispatcher, upstreamURL string, breaker *resilience.Breaker, streamState func() bool) *Handlers {
	return &Handlers{dispatcher: d, upstreamURL: upstreamURL, breaker: breaker, streamState: streamState}
}

type healthResponse struct {
	Status          string `json:"status"`
	Upstream        string `json:"upstream"`
	Breaker         string `json:"breaker"`
	StreamEnabled   bool   `json:"stream_enabled"`
	StreamConnected bool   `json:"stream_connected"`
}

// Health reports service status and channel state.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{
		Status:        "ok",
		Upstream:      h.upstreamURL,
		Breaker:       string(h.breaker.State()),
		StreamEnabled: h.streamState != nil,
	}
	if h.streamState != nil {
		resp.StreamConnected = h.streamState()
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListRoutes returns the route table in evaluation order.
func (h *Handlers) ListRoutes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.dispatcher.Routes())
}

// Invoke runs a request envelope through the dispatcher and returns the
// response envelope. Debug aid: the same path a stream callback takes,
// minus the session layer.
func (h *Handlers) Invoke(w http.ResponseWriter, r *http.Request) {
	env, ok := readJSON[relay.RequestEnvelope](w, r, invokeBodyLimit)
	if !ok {
		return
	}
	if env.RequestLine.Method == "" || env.RequestLine.URI == "" {
		writeError(w, http.StatusBadRequest, "requestLine.method and requestLine.uri are required")
		return
	}
	writeJSON(w, http.StatusOK, h.dispatcher.Dispatch(r.Context(), env))
}
