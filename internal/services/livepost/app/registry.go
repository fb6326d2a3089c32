package server

import (
	"strings"
	"sync"

	"github.com/google/uuid"
	apperrors "github.com/louisbranch/livepost/internal/platform/errors"
	"github.com/louisbranch/livepost/internal/services/livepost/domain"
)

// IntentKind says whether an intent registers or withdraws interest.
type IntentKind int

const (
	IntentSubscribe IntentKind = iota + 1
	IntentUnsubscribe
)

func (k IntentKind) String() string {
	switch k {
	case IntentSubscribe:
		return "subscribe"
	case IntentUnsubscribe:
		return "unsubscribe"
	}
	return "unknown"
}

// Interest names the sub-resources a subscriber wants pushed.
type Interest struct {
	PostUpdates bool
}

// merge returns the union of both interests.
func (i Interest) merge(other Interest) Interest {
	return Interest{PostUpdates: i.PostUpdates || other.PostUpdates}
}

// Intent is a fire-and-forget request for the push transport.
type Intent struct {
	Kind     IntentKind
	PostUUID string
	Interest Interest
}

// IntentSink receives subscribe/unsubscribe intents. SendIntent is called with
// the registry lock held and must not block.
type IntentSink interface {
	SendIntent(Intent)
}

// Registry is the reference-counted subscription table. A post is subscribed
// upstream once, when its first handle is taken, and unsubscribed when its last
// handle is released.
type Registry struct {
	mu            sync.Mutex
	sink          IntentSink
	subscriptions map[string]*subscription
}

// maxPendingUpdates bounds the updates held for a post while its initial
// fetch is in flight.
const maxPendingUpdates = 32

type subscription struct {
	postUUID string
	interest Interest
	handles  map[*Handle]struct{}
	snapshot domain.Snapshot
	seeded   bool
	// pending holds updates applied before the snapshot was seeded.
	pending []func(*domain.Snapshot) bool
}

// Handle is one consumer's claim on a post subscription.
type Handle struct {
	id       string
	postUUID string
	registry *Registry
	updates  chan struct{}

	// released is guarded by registry.mu.
	released bool
}

// NewRegistry builds an empty registry sending intents to sink.
func NewRegistry(sink IntentSink) *Registry {
	return &Registry{
		sink:          sink,
		subscriptions: make(map[string]*subscription),
	}
}

// Subscribe takes a handle on postUUID, emitting a subscribe intent when this
// is the post's first handle or when interest widens what the post already
// subscribes to.
func (r *Registry) Subscribe(postUUID string, interest Interest) (*Handle, error) {
	postUUID = strings.TrimSpace(postUUID)
	if postUUID == "" {
		return nil, apperrors.New(apperrors.CodeInvalidArgument, "post uuid is required")
	}

	handle := &Handle{
		id:       uuid.NewString(),
		postUUID: postUUID,
		registry: r,
		updates:  make(chan struct{}, 1),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subscriptions[postUUID]
	if !ok {
		sub = &subscription{
			postUUID: postUUID,
			interest: interest,
			handles:  make(map[*Handle]struct{}),
		}
		r.subscriptions[postUUID] = sub
		r.send(Intent{Kind: IntentSubscribe, PostUUID: postUUID, Interest: interest})
	} else if merged := sub.interest.merge(interest); merged != sub.interest {
		sub.interest = merged
		r.send(Intent{Kind: IntentSubscribe, PostUUID: postUUID, Interest: merged})
	}
	sub.handles[handle] = struct{}{}
	return handle, nil
}

// Release drops a handle. The last release for a post emits an unsubscribe
// intent and discards the snapshot. Releasing twice is a no-op.
func (r *Registry) Release(handle *Handle) {
	if handle == nil || handle.registry != r {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if handle.released {
		return
	}
	handle.released = true

	sub, ok := r.subscriptions[handle.postUUID]
	if !ok {
		return
	}
	delete(sub.handles, handle)
	if len(sub.handles) > 0 {
		return
	}
	delete(r.subscriptions, handle.postUUID)
	r.send(Intent{Kind: IntentUnsubscribe, PostUUID: handle.postUUID, Interest: sub.interest})
}

// Seed installs the initial snapshot of a subscribed post and replays the
// updates that arrived while it was being fetched. It returns false when the
// post is no longer subscribed or was already seeded.
func (r *Registry) Seed(post domain.Post) bool {
	if post == nil {
		return false
	}
	postUUID := post.Common().PostUUID

	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subscriptions[postUUID]
	if !ok || sub.seeded {
		return false
	}
	sub.snapshot = domain.Snapshot{Post: post.Clone()}
	sub.seeded = true
	for _, fn := range sub.pending {
		fn(&sub.snapshot)
	}
	sub.pending = nil
	sub.notify()
	return true
}

// Snapshot returns a copy of the post's current snapshot.
func (r *Registry) Snapshot(postUUID string) (domain.Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subscriptions[postUUID]
	if !ok || !sub.seeded {
		return domain.Snapshot{}, false
	}
	return sub.snapshot.Clone(), true
}

// Subscribed reports whether postUUID has at least one live handle.
func (r *Registry) Subscribed(postUUID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.subscriptions[postUUID]
	return ok
}

// SubscriberCount returns the number of live handles for postUUID.
func (r *Registry) SubscriberCount(postUUID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sub, ok := r.subscriptions[postUUID]; ok {
		return len(sub.handles)
	}
	return 0
}

// Len returns the number of subscribed posts.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subscriptions)
}

// ActiveWith runs fn under the registry lock and returns a subscribe intent for
// every post subscribed at that moment, for replay after the transport
// reconnects. fn may be nil. Each intent the registry sends is
// ordered entirely before or after fn.
func (r *Registry) ActiveWith(fn func()) []Intent {
	r.mu.Lock()
	defer r.mu.Unlock()

	if fn != nil {
		fn()
	}
	intents := make([]Intent, 0, len(r.subscriptions))
	for postUUID, sub := range r.subscriptions {
		intents = append(intents, Intent{Kind: IntentSubscribe, PostUUID: postUUID, Interest: sub.interest})
	}
	return intents
}

// ApplyResult describes what Apply did with an event.
type ApplyResult int

const (
	ApplyNotSubscribed ApplyResult = iota
	// ApplyBuffered means the post is not seeded yet; fn runs on Seed.
	ApplyBuffered
	// ApplyNotSeeded means the post is not seeded and its buffer is full.
	ApplyNotSeeded
	ApplyUnchanged
	ApplyChanged
)

// Apply runs fn on the post's snapshot under the registry lock. It is the only
// path that mutates snapshots. Handles are notified when fn reports a change.
func (r *Registry) Apply(postUUID string, fn func(*domain.Snapshot) bool) ApplyResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subscriptions[postUUID]
	if !ok {
		return ApplyNotSubscribed
	}
	if !sub.seeded {
		if len(sub.pending) >= maxPendingUpdates {
			return ApplyNotSeeded
		}
		sub.pending = append(sub.pending, fn)
		return ApplyBuffered
	}
	if !fn(&sub.snapshot) {
		return ApplyUnchanged
	}
	sub.notify()
	return ApplyChanged
}

func (r *Registry) send(intent Intent) {
	if r.sink != nil {
		r.sink.SendIntent(intent)
	}
}

func (s *subscription) notify() {
	for handle := range s.handles {
		select {
		case handle.updates <- struct{}{}:
		default:
		}
	}
}

// ID identifies the handle in logs.
func (h *Handle) ID() string { return h.id }

// PostUUID returns the post this handle watches.
func (h *Handle) PostUUID() string { return h.postUUID }

// Snapshot returns a copy of the watched post's snapshot. It reports false
// before the snapshot is seeded and after the handle is released.
func (h *Handle) Snapshot() (domain.Snapshot, bool) {
	if h == nil || h.registry == nil {
		return domain.Snapshot{}, false
	}
	if h.Released() {
		return domain.Snapshot{}, false
	}
	return h.registry.Snapshot(h.postUUID)
}

// Updates signals after the snapshot changes. Signals coalesce: a receiver
// should re-read Snapshot rather than count them.
func (h *Handle) Updates() <-chan struct{} { return h.updates }

// Released reports whether the handle was released.
func (h *Handle) Released() bool {
	h.registry.mu.Lock()
	defer h.registry.mu.Unlock()
	return h.released
}

// Release is shorthand for releasing the handle on its registry.
func (h *Handle) Release() {
	if h == nil || h.registry == nil {
		return
	}
	h.registry.Release(h)
}
