package telemetry

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Severity describes the telemetry severity level.
type Severity string

const (
	SeverityInfo  Severity = "INFO"
	SeverityWarn  Severity = "WARN"
	SeverityError Severity = "ERROR"
)

// Event names emitted by the live post service.
const (
	EventFrameDecodeFailed   = "frame.decode_failed"
	EventFrameUnknownEvent   = "frame.unknown_event"
	EventFrameDropped        = "frame.dropped_unsubscribed"
	EventStatusUnknown       = "post.status_unknown"
	EventSnapshotReconciled  = "post.reconciled"
	EventTransportConnected  = "transport.connected"
	EventTransportDropped    = "transport.disconnected"
	EventIntentDropped       = "transport.intent_dropped"
	EventPostResolveFailed   = "post.resolve_failed"
	EventSnapshotUnavailable = "post.snapshot_unavailable"
	EventUpdateBuffered      = "post.update_buffered"
	EventVariantMismatch     = "post.variant_mismatch"
)

const instrumentationName = "github.com/louisbranch/livepost"

// Event is one operational telemetry record.
type Event struct {
	Name       string
	Severity   Severity
	PostUUID   string
	Attributes map[string]string
	Err        error
	Timestamp  time.Time
}

// Emitter records operational telemetry events.
type Emitter struct {
	logf    func(format string, args ...any)
	clock   func() time.Time
	counter metric.Int64Counter

	mu     sync.Mutex
	counts map[string]int64
}

// NewEmitter creates an emitter that logs through the standard logger and
// counts on the global OpenTelemetry meter.
func NewEmitter() *Emitter {
	counter, err := otel.Meter(instrumentationName).Int64Counter(
		"livepost.telemetry.events",
		metric.WithDescription("Operational events emitted by the live post service."),
	)
	if err != nil {
		log.Printf("telemetry: create event counter: %v", err)
		counter = nil
	}
	return &Emitter{
		logf:    log.Printf,
		clock:   time.Now,
		counter: counter,
		counts:  make(map[string]int64),
	}
}

// Emit records a telemetry event. It is a no-op on a nil emitter.
func (e *Emitter) Emit(ctx context.Context, evt Event) {
	if e == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if evt.Severity == "" {
		evt.Severity = SeverityInfo
	}
	if evt.Timestamp.IsZero() {
		if e.clock == nil {
			evt.Timestamp = time.Now().UTC()
		} else {
			evt.Timestamp = e.clock().UTC()
		}
	}

	e.mu.Lock()
	if e.counts == nil {
		e.counts = make(map[string]int64)
	}
	e.counts[evt.Name]++
	e.mu.Unlock()

	attrs := []attribute.KeyValue{
		attribute.String("event", evt.Name),
		attribute.String("severity", string(evt.Severity)),
	}
	if e.counter != nil {
		e.counter.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		if evt.PostUUID != "" {
			attrs = append(attrs, attribute.String("post_uuid", evt.PostUUID))
		}
		if evt.Err != nil {
			attrs = append(attrs, attribute.String("error", evt.Err.Error()))
		}
		span.AddEvent(evt.Name, trace.WithAttributes(attrs...), trace.WithTimestamp(evt.Timestamp))
	}

	if e.logf != nil && evt.Severity != SeverityInfo {
		e.logf("%s", formatEvent(evt))
	}
}

// Count returns how many events with name were emitted.
func (e *Emitter) Count(name string) int64 {
	if e == nil {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.counts[name]
}

// Counts returns a copy of all event counters.
func (e *Emitter) Counts() map[string]int64 {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]int64, len(e.counts))
	for name, count := range e.counts {
		out[name] = count
	}
	return out
}

func formatEvent(evt Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "telemetry %s %s", evt.Severity, evt.Name)
	if evt.PostUUID != "" {
		fmt.Fprintf(&b, " post=%q", evt.PostUUID)
	}
	keys := make([]string, 0, len(evt.Attributes))
	for key := range evt.Attributes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(&b, " %s=%q", key, evt.Attributes[key])
	}
	if evt.Err != nil {
		fmt.Fprintf(&b, " err=%v", evt.Err)
	}
	return b.String()
}
