package relay

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	relayotel "github.com/Wirebird/gitrelay/internal/adapter/otel"
	"github.com/Wirebird/gitrelay/internal/port/upstream"
)

// Dispatcher evaluates normalized requests against the route table and maps
// results and failures into response envelopes. The table and handler
// bindings are immutable after construction; Dispatch is safe for
// concurrent use.
type Dispatcher struct {
	table   []route
	log     *slog.Logger
	metrics *relayotel.Metrics
}

// NewDispatcher builds a dispatcher over the given upstream client.
// metrics may be nil.
func NewDispatcher(client upstream.Client, log *slog.Logger, metrics *relayotel.Metrics) *Dispatcher {
	return &Dispatcher{
		table:   buildTable(&handlers{up: client}),
		log:     log,
		metrics: metrics,
	}
}

// Routes returns the route table in evaluation order, for diagnostics.
func (d *Dispatcher) Routes() []RouteInfo {
	infos := make([]RouteInfo, 0, len(d.table))
	for _, rt := range d.table {
		infos = append(infos, RouteInfo{Name: rt.name, Methods: rt.methods, Shape: rt.shape})
	}
	return infos
}

// Dispatch handles one request envelope end to end: decode, route, invoke,
// build response. It never returns an error; every failure becomes a
// response envelope. The fixed AckOK token accompanies every response at
// the transport layer.
func (d *Dispatcher) Dispatch(ctx context.Context, env RequestEnvelope) ResponseEnvelope {
	start := time.Now()

	req, err := decode(env)
	if err != nil {
		d.log.Error("request decode failed",
			"method", env.RequestLine.Method,
			"uri", env.RequestLine.URI,
			"error", err,
		)
		d.countFailed(ctx, "decode")
		return errorResponse(err)
	}

	ctx, span := relayotel.StartDispatchSpan(ctx, req.method, req.path)
	defer span.End()

	for _, rt := range d.table {
		if !rt.match(req.method, req.path, req.segs) {
			continue
		}

		result, err := rt.call(ctx, req)
		if err != nil {
			d.log.Error("handler failed",
				"route", rt.name,
				"method", req.method,
				"path", req.path,
				"error", err,
			)
			d.countFailed(ctx, rt.name)
			return errorResponse(err)
		}

		d.log.Info("request dispatched",
			"route", rt.name,
			"method", req.method,
			"path", req.path,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		if d.metrics != nil {
			attrs := metric.WithAttributes(attribute.String("route", rt.name))
			d.metrics.Dispatched.Add(ctx, 1, attrs)
			d.metrics.RequestDuration.Record(ctx, time.Since(start).Seconds(), attrs)
		}
		return okResponse(result)
	}

	d.log.Warn("no route matched", "method", req.method, "path", req.path)
	if d.metrics != nil {
		d.metrics.Unmatched.Add(ctx, 1)
	}
	return notFoundResponse(req.path)
}

func (d *Dispatcher) countFailed(ctx context.Context, route string) {
	if d.metrics != nil {
		d.metrics.Failed.Add(ctx, 1, metric.WithAttributes(attribute.String("route", route)))
	}
}
