package server

import (
	"context"
	"errors"
	"strconv"

	"github.com/louisbranch/livepost/internal/platform/telemetry"
	"github.com/louisbranch/livepost/internal/services/livepost/domain"
	"github.com/louisbranch/livepost/internal/services/livepost/wire"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Dispatcher turns inbound frames into events and folds them into the
// snapshots of subscribed posts. Failures never leave the dispatcher.
type Dispatcher struct {
	registry *Registry
	emitter  *telemetry.Emitter
	tracer   trace.Tracer
}

// NewDispatcher builds a dispatcher over registry.
func NewDispatcher(registry *Registry, emitter *telemetry.Emitter) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		emitter:  emitter,
		tracer:   otel.Tracer("github.com/louisbranch/livepost/dispatcher"),
	}
}

// OnFrame decodes one frame payload and applies it. Frames for posts nobody
// watches are dropped silently.
func (d *Dispatcher) OnFrame(eventName string, payload []byte) {
	ctx, span := d.tracer.Start(context.Background(), "livepost.dispatch",
		trace.WithAttributes(attribute.String("event_name", eventName)))
	defer span.End()

	evt, err := wire.DecodeEvent(eventName, payload)
	if err != nil {
		if errors.Is(err, wire.ErrUnknownEvent) {
			d.emitter.Emit(ctx, telemetry.Event{
				Name:       telemetry.EventFrameUnknownEvent,
				Severity:   telemetry.SeverityWarn,
				Attributes: map[string]string{"event_name": eventName},
			})
			return
		}
		d.emitter.Emit(ctx, telemetry.Event{
			Name:     telemetry.EventFrameDecodeFailed,
			Severity: telemetry.SeverityWarn,
			Attributes: map[string]string{
				"event_name": eventName,
				"bytes":      strconv.Itoa(len(payload)),
			},
			Err: err,
		})
		return
	}
	d.Dispatch(ctx, evt)
}

// Dispatch applies an already decoded event. Events for a post whose initial
// fetch is still in flight are held and applied once it is seeded.
func (d *Dispatcher) Dispatch(ctx context.Context, evt domain.Event) {
	postUUID := evt.TargetPostUUID()
	update, isUpdate := evt.(domain.PostUpdated)

	// Written by apply under the registry lock; read below only when apply ran
	// inside this call.
	var (
		unknownStatus int32
		variant       domain.Variant
		mismatched    bool
	)
	apply := func(snapshot *domain.Snapshot) bool {
		if isUpdate {
			variant = snapshot.Post.Tag()
			if !update.MatchesVariant(variant) {
				mismatched = true
				return false
			}
			if update.Status != 0 {
				if _, known := domain.ProjectKnown(variant, update.Status); !known {
					unknownStatus = update.Status
				}
			}
		}
		return domain.Reconcile(snapshot, evt)
	}

	result := d.registry.Apply(postUUID, apply)
	switch result {
	case ApplyNotSubscribed:
		d.emitter.Emit(ctx, telemetry.Event{Name: telemetry.EventFrameDropped, PostUUID: postUUID})
		return
	case ApplyBuffered:
		d.emitter.Emit(ctx, telemetry.Event{Name: telemetry.EventUpdateBuffered, PostUUID: postUUID})
		return
	case ApplyNotSeeded:
		d.emitter.Emit(ctx, telemetry.Event{
			Name:     telemetry.EventSnapshotUnavailable,
			Severity: telemetry.SeverityWarn,
			PostUUID: postUUID,
		})
		return
	case ApplyChanged:
		d.emitter.Emit(ctx, telemetry.Event{Name: telemetry.EventSnapshotReconciled, PostUUID: postUUID})
	}
	if mismatched {
		d.emitter.Emit(ctx, telemetry.Event{
			Name:     telemetry.EventVariantMismatch,
			Severity: telemetry.SeverityWarn,
			PostUUID: postUUID,
			Attributes: map[string]string{
				"post_variant":  string(variant),
				"event_variant": string(update.Variant),
			},
		})
	}
	if unknownStatus != 0 {
		d.emitter.Emit(ctx, telemetry.Event{
			Name:     telemetry.EventStatusUnknown,
			Severity: telemetry.SeverityWarn,
			PostUUID: postUUID,
			Attributes: map[string]string{
				"variant":    string(variant),
				"raw_status": strconv.Itoa(int(unknownStatus)),
			},
		})
	}
}
