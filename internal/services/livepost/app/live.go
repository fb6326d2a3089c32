package server

import (
	"context"
	"errors"
	"strconv"

	apperrors "github.com/louisbranch/livepost/internal/platform/errors"
	"github.com/louisbranch/livepost/internal/platform/telemetry"
	"github.com/louisbranch/livepost/internal/services/livepost/domain"
)

// Live is the consumer-facing entry point: it pairs a registry subscription
// with the initial fetch that seeds the post's snapshot.
type Live struct {
	registry *Registry
	fetcher  PostFetcher
	emitter  *telemetry.Emitter
}

// NewLive builds the facade over registry and fetcher.
func NewLive(registry *Registry, fetcher PostFetcher, emitter *telemetry.Emitter) (*Live, error) {
	if registry == nil {
		return nil, errors.New("registry is required")
	}
	if fetcher == nil {
		return nil, errors.New("post fetcher is required")
	}
	return &Live{registry: registry, fetcher: fetcher, emitter: emitter}, nil
}

// Watch subscribes to postUUID and makes sure its snapshot is seeded before
// returning. The subscription is taken before the fetch; updates pushed while
// the fetch is in flight are held by the registry and applied on top of the
// fetched post. On failure the handle is released.
func (l *Live) Watch(ctx context.Context, postUUID string) (*Handle, error) {
	handle, err := l.registry.Subscribe(postUUID, Interest{PostUpdates: true})
	if err != nil {
		return nil, err
	}
	if _, ok := l.registry.Snapshot(handle.PostUUID()); ok {
		return handle, nil
	}

	post, err := l.fetcher.FetchPost(ctx, handle.PostUUID())
	if err == nil && post.Common().PostUUID != handle.PostUUID() {
		err = apperrors.WithMetadata(apperrors.CodeMalformedPost, "fetched post uuid does not match", map[string]string{
			"want": handle.PostUUID(),
			"got":  post.Common().PostUUID,
		})
	}
	if err != nil {
		l.registry.Release(handle)
		l.emitter.Emit(ctx, telemetry.Event{
			Name:       telemetry.EventPostResolveFailed,
			Severity:   telemetry.SeverityError,
			PostUUID:   handle.PostUUID(),
			Attributes: map[string]string{"code": string(apperrors.CodeOf(err))},
			Err:        err,
		})
		return nil, err
	}

	if _, known := domain.ProjectKnown(post.Tag(), post.Common().Status); !known {
		l.emitter.Emit(ctx, telemetry.Event{
			Name:     telemetry.EventStatusUnknown,
			Severity: telemetry.SeverityWarn,
			PostUUID: handle.PostUUID(),
			Attributes: map[string]string{
				"variant":    string(post.Tag()),
				"raw_status": strconv.Itoa(int(post.Common().Status)),
			},
		})
	}
	// A concurrent Watch may have seeded first; its snapshot wins.
	l.registry.Seed(post)
	return handle, nil
}

// Release gives up a handle returned by Watch.
func (l *Live) Release(handle *Handle) {
	l.registry.Release(handle)
}

// Snapshot returns the current snapshot of a watched post.
func (l *Live) Snapshot(postUUID string) (domain.Snapshot, bool) {
	return l.registry.Snapshot(postUUID)
}

// Registry exposes the underlying subscription table.
func (l *Live) Registry() *Registry {
	return l.registry
}
