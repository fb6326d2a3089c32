package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/louisbranch/livepost/internal/platform/telemetry"
	"github.com/louisbranch/livepost/internal/services/livepost/domain"
	"golang.org/x/net/websocket"
)

type wsTestFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

type wsTestSnapshotPayload struct {
	Snapshot struct {
		PostUUID  string `json:"post_uuid"`
		Variant   string `json:"variant"`
		Status    string `json:"status"`
		RawStatus int32  `json:"raw_status"`
		Terminal  bool   `json:"terminal"`
		Post      struct {
			TotalVotes         int64  `json:"totalVotes"`
			ResponseCoverImage string `json:"responseCoverImage"`
		} `json:"post"`
	} `json:"snapshot"`
}

type wsTestErrorPayload struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		Retryable bool   `json:"retryable"`
	} `json:"error"`
}

type consumerHarness struct {
	srv        *httptest.Server
	registry   *Registry
	dispatcher *Dispatcher
}

func newConsumerHarness(t *testing.T, posts ...domain.Post) *consumerHarness {
	t.Helper()
	emitter := telemetry.NewEmitter()
	registry := NewRegistry(nil)
	live, err := NewLive(registry, PostFetcherFunc(staticFetch(posts...)), emitter)
	if err != nil {
		t.Fatalf("NewLive: %v", err)
	}
	srv := httptest.NewServer(newHandler(live, emitter, func() ConnState { return StateConnected }))
	t.Cleanup(srv.Close)
	return &consumerHarness{
		srv:        srv,
		registry:   registry,
		dispatcher: NewDispatcher(registry, emitter),
	}
}

func (h *consumerHarness) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/ws"
	conn, err := websocket.Dial(wsURL, "", h.srv.URL)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}

func writeFrame(t *testing.T, conn *websocket.Conn, frame map[string]any) {
	t.Helper()
	if err := json.NewEncoder(conn).Encode(frame); err != nil {
		t.Fatalf("encode frame: %v", err)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) wsTestFrame {
	t.Helper()
	_ = conn.SetDeadline(time.Now().Add(2 * time.Second))
	var got wsTestFrame
	if err := json.NewDecoder(conn).Decode(&got); err != nil {
		t.Fatalf("decode server frame: %v", err)
	}
	return got
}

func decodeSnapshotPayload(t *testing.T, payload json.RawMessage) wsTestSnapshotPayload {
	t.Helper()
	var snapshot wsTestSnapshotPayload
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		t.Fatalf("decode snapshot payload: %v", err)
	}
	return snapshot
}

func decodeErrorPayload(t *testing.T, payload json.RawMessage) wsTestErrorPayload {
	t.Helper()
	var wsErr wsTestErrorPayload
	if err := json.Unmarshal(payload, &wsErr); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	return wsErr
}

func watchPost(t *testing.T, conn *websocket.Conn, postUUID string) wsTestFrame {
	t.Helper()
	writeFrame(t, conn, map[string]any{
		"type":       "post.watch",
		"request_id": "req-watch-1",
		"payload":    map[string]any{"post_uuid": postUUID},
	})
	return readFrame(t, conn)
}

func waitUnsubscribed(t *testing.T, registry *Registry, postUUID string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for registry.Subscribed(postUUID) {
		if time.Now().After(deadline) {
			t.Fatalf("post %q still subscribed", postUUID)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWebSocketWatchReturnsSnapshot(t *testing.T) {
	h := newConsumerHarness(t, multipleChoicePost("p1", 2))
	conn := h.dial(t)

	got := watchPost(t, conn, "p1")
	if got.Type != "post.snapshot" {
		t.Fatalf("frame type = %q, want %q", got.Type, "post.snapshot")
	}
	if got.RequestID != "req-watch-1" {
		t.Fatalf("request id = %q, want %q", got.RequestID, "req-watch-1")
	}
	snapshot := decodeSnapshotPayload(t, got.Payload).Snapshot
	if snapshot.PostUUID != "p1" || snapshot.Variant != string(domain.VariantMultipleChoice) {
		t.Fatalf("snapshot = %+v, want p1 multiple choice", snapshot)
	}
	if snapshot.Status != string(domain.StatusVoting) || snapshot.Terminal {
		t.Fatalf("status = %q terminal=%v, want voting", snapshot.Status, snapshot.Terminal)
	}
	if snapshot.Post.TotalVotes != 2 {
		t.Fatalf("total votes = %d, want 2", snapshot.Post.TotalVotes)
	}
}

func TestWebSocketPushesSnapshotChanges(t *testing.T) {
	h := newConsumerHarness(t, multipleChoicePost("p1", 0))
	conn := h.dial(t)
	watchPost(t, conn, "p1")

	h.dispatcher.Dispatch(context.Background(), domain.PostUpdated{
		PostUUID:   "p1",
		Variant:    domain.VariantMultipleChoice,
		TotalVotes: 5,
	})
	got := readFrame(t, conn)
	if got.Type != "post.snapshot" {
		t.Fatalf("frame type = %q, want %q", got.Type, "post.snapshot")
	}
	if got.RequestID != "" {
		t.Fatalf("pushed snapshot request id = %q, want empty", got.RequestID)
	}
	if votes := decodeSnapshotPayload(t, got.Payload).Snapshot.Post.TotalVotes; votes != 5 {
		t.Fatalf("total votes = %d, want 5", votes)
	}

	h.dispatcher.Dispatch(context.Background(), domain.CoverImageUpdated{
		PostUUID: "p1",
		Target:   domain.CoverTargetResponse,
		Action:   domain.CoverActionUpdated,
		URL:      "x.jpg",
	})
	got = readFrame(t, conn)
	snapshot := decodeSnapshotPayload(t, got.Payload).Snapshot
	if snapshot.Post.ResponseCoverImage != "x.jpg" || snapshot.Post.TotalVotes != 5 {
		t.Fatalf("snapshot post = %+v, want x.jpg with 5 votes", snapshot.Post)
	}
}

func TestWebSocketWatchUnknownPostReturnsError(t *testing.T) {
	h := newConsumerHarness(t)
	conn := h.dial(t)

	got := watchPost(t, conn, "missing")
	if got.Type != "post.error" {
		t.Fatalf("frame type = %q, want %q", got.Type, "post.error")
	}
	wsErr := decodeErrorPayload(t, got.Payload).Error
	if wsErr.Code != "POST_NOT_FOUND" || wsErr.Retryable {
		t.Fatalf("error = %+v, want non-retryable POST_NOT_FOUND", wsErr)
	}
	if h.registry.Subscribed("missing") {
		t.Fatal("failed watch must not leave a subscription behind")
	}
}

func TestWebSocketWatchRequiresPostUUID(t *testing.T) {
	h := newConsumerHarness(t)
	conn := h.dial(t)

	got := watchPost(t, conn, "  ")
	if got.Type != "post.error" {
		t.Fatalf("frame type = %q, want %q", got.Type, "post.error")
	}
	if code := decodeErrorPayload(t, got.Payload).Error.Code; code != "INVALID_ARGUMENT" {
		t.Fatalf("error code = %q, want INVALID_ARGUMENT", code)
	}
}

func TestWebSocketUnwatchReleasesHandle(t *testing.T) {
	h := newConsumerHarness(t, multipleChoicePost("p1", 0))
	conn := h.dial(t)
	watchPost(t, conn, "p1")

	writeFrame(t, conn, map[string]any{
		"type":       "post.unwatch",
		"request_id": "req-unwatch-1",
		"payload":    map[string]any{"post_uuid": "p1"},
	})
	got := readFrame(t, conn)
	if got.Type != "post.unwatched" || got.RequestID != "req-unwatch-1" {
		t.Fatalf("frame = %+v, want post.unwatched", got)
	}
	if h.registry.Subscribed("p1") {
		t.Fatal("expected p1 to be unsubscribed after unwatch")
	}
}

func TestWebSocketCloseReleasesHandles(t *testing.T) {
	h := newConsumerHarness(t, multipleChoicePost("p1", 0), multipleChoicePost("p2", 0))
	conn := h.dial(t)
	watchPost(t, conn, "p1")
	watchPost(t, conn, "p2")

	other := h.dial(t)
	watchPost(t, other, "p2")

	_ = conn.Close()
	waitUnsubscribed(t, h.registry, "p1")
	if !h.registry.Subscribed("p2") {
		t.Fatal("p2 is still watched by another connection")
	}
	if got := h.registry.SubscriberCount("p2"); got != 1 {
		t.Fatalf("p2 subscribers = %d, want 1", got)
	}
}

func TestWebSocketUnknownTypeReturnsError(t *testing.T) {
	h := newConsumerHarness(t)
	conn := h.dial(t)

	writeFrame(t, conn, map[string]any{
		"type":       "post.bogus",
		"request_id": "req-1",
		"payload":    map[string]any{},
	})
	got := readFrame(t, conn)
	if got.Type != "post.error" || got.RequestID != "req-1" {
		t.Fatalf("frame = %+v, want post.error for req-1", got)
	}
}

func TestWebSocketRejectsNonGet(t *testing.T) {
	h := newConsumerHarness(t)
	resp, err := http.Post(h.srv.URL+"/ws", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("POST /ws: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusMethodNotAllowed)
	}
}

func TestHTTPPostSnapshotRoute(t *testing.T) {
	h := newConsumerHarness(t, multipleChoicePost("p1", 3))

	resp, err := http.Get(h.srv.URL + "/posts/p1")
	if err != nil {
		t.Fatalf("GET /posts/p1: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unwatched status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}

	conn := h.dial(t)
	watchPost(t, conn, "p1")

	resp, err = http.Get(h.srv.URL + "/posts/p1")
	if err != nil {
		t.Fatalf("GET /posts/p1: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	var body wsTestSnapshotPayload
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Snapshot.Post.TotalVotes != 3 || body.Snapshot.Status != string(domain.StatusVoting) {
		t.Fatalf("snapshot = %+v, want 3 votes voting", body.Snapshot)
	}
}

func TestHTTPStatsAndUpRoutes(t *testing.T) {
	h := newConsumerHarness(t, multipleChoicePost("p1", 0))
	conn := h.dial(t)
	watchPost(t, conn, "p1")

	resp, err := http.Get(h.srv.URL + "/up")
	if err != nil {
		t.Fatalf("GET /up: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("up status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	resp, err = http.Get(h.srv.URL + "/stats")
	if err != nil {
		t.Fatalf("GET /stats: %v", err)
	}
	defer resp.Body.Close()
	var stats struct {
		Subscriptions int    `json:"subscriptions"`
		Push          string `json:"push"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Subscriptions != 1 || stats.Push != "connected" {
		t.Fatalf("stats = %+v, want 1 subscription connected", stats)
	}
}
