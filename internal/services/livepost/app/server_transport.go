package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	apperrors "github.com/louisbranch/livepost/internal/platform/errors"
	"github.com/louisbranch/livepost/internal/platform/telemetry"
	"github.com/louisbranch/livepost/internal/platform/timeouts"
	"github.com/louisbranch/livepost/internal/services/livepost/domain"
	"golang.org/x/net/websocket"
)

const (
	maxFramePayloadBytes   = 16 * 1024
	maxFramesPerSecond     = 40
	maxDecodeErrorsPerConn = 3
	maxWatchesPerConn      = 64
)

type wsFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

type wsErrorEnvelope struct {
	Error wsError `json:"error"`
}

type wsError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable"`
	Details   map[string]any `json:"details,omitempty"`
}

type watchPayload struct {
	PostUUID string `json:"post_uuid"`
}

type snapshotEnvelope struct {
	Snapshot snapshotView `json:"snapshot"`
}

type unwatchedEnvelope struct {
	PostUUID string `json:"post_uuid"`
}

// snapshotView is the consumer rendering of a post: the raw variant payload
// plus its projected semantic status.
type snapshotView struct {
	PostUUID  string                `json:"post_uuid"`
	Variant   domain.Variant        `json:"variant"`
	Status    domain.SemanticStatus `json:"status"`
	RawStatus int32                 `json:"raw_status"`
	Terminal  bool                  `json:"terminal"`
	Revision  uint64                `json:"revision,omitempty"`
	Post      domain.Post           `json:"post"`
}

func newSnapshotView(snapshot domain.Snapshot) snapshotView {
	details := snapshot.Post.Common()
	status := snapshot.Status()
	return snapshotView{
		PostUUID:  details.PostUUID,
		Variant:   snapshot.Post.Tag(),
		Status:    status,
		RawStatus: details.Status,
		Terminal:  status.IsTerminal(),
		Revision:  snapshot.Revision,
		Post:      snapshot.Post,
	}
}

type statsResponse struct {
	Subscriptions int              `json:"subscriptions"`
	Push          string           `json:"push"`
	Telemetry     map[string]int64 `json:"telemetry"`
}

type wsPeer struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	encoder *json.Encoder
}

func newWSPeer(conn *websocket.Conn) *wsPeer {
	return &wsPeer{conn: conn, encoder: json.NewEncoder(conn)}
}

func (p *wsPeer) writeFrame(frame wsFrame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		_ = p.conn.SetWriteDeadline(time.Now().Add(timeouts.ConsumerWrite))
	}
	return p.encoder.Encode(frame)
}

// postWatch pumps snapshot changes of one handle to the peer.
type postWatch struct {
	handle *Handle
	stop   chan struct{}
	done   chan struct{}
}

type wsSession struct {
	mu      sync.Mutex
	peer    *wsPeer
	watches map[string]*postWatch
}

func newWSSession(peer *wsPeer) *wsSession {
	return &wsSession{
		peer:    peer,
		watches: make(map[string]*postWatch),
	}
}

func (s *wsSession) watching(postUUID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.watches[postUUID]
	return ok
}

func (s *wsSession) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watches)
}

func (s *wsSession) add(handle *Handle) {
	w := &postWatch{
		handle: handle,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	s.mu.Lock()
	s.watches[handle.PostUUID()] = w
	s.mu.Unlock()

	go func() {
		defer close(w.done)
		for {
			select {
			case <-w.stop:
				return
			case <-handle.Updates():
				snapshot, ok := handle.Snapshot()
				if !ok {
					return
				}
				_ = s.peer.writeFrame(wsFrame{
					Type:    "post.snapshot",
					Payload: mustJSON(snapshotEnvelope{Snapshot: newSnapshotView(snapshot)}),
				})
			}
		}
	}()
}

// remove stops the pump for postUUID and returns its handle for release.
func (s *wsSession) remove(postUUID string) *Handle {
	s.mu.Lock()
	w, ok := s.watches[postUUID]
	delete(s.watches, postUUID)
	s.mu.Unlock()
	if !ok {
		return nil
	}
	close(w.stop)
	<-w.done
	return w.handle
}

func (s *wsSession) removeAll() []*Handle {
	s.mu.Lock()
	postUUIDs := make([]string, 0, len(s.watches))
	for postUUID := range s.watches {
		postUUIDs = append(postUUIDs, postUUID)
	}
	s.mu.Unlock()

	handles := make([]*Handle, 0, len(postUUIDs))
	for _, postUUID := range postUUIDs {
		if handle := s.remove(postUUID); handle != nil {
			handles = append(handles, handle)
		}
	}
	return handles
}

// newHandler creates the consumer routes over live. pushState may be nil.
func newHandler(live *Live, emitter *telemetry.Emitter, pushState func() ConnState) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	wsHandler := websocket.Handler(func(conn *websocket.Conn) {
		handleWSConn(conn, live)
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		wsHandler.ServeHTTP(w, r)
	})

	mux.HandleFunc("GET /posts/{uuid}", func(w http.ResponseWriter, r *http.Request) {
		postUUID := strings.TrimSpace(r.PathValue("uuid"))
		snapshot, ok := live.Snapshot(postUUID)
		if !ok {
			writeJSONError(w, apperrors.WithMetadata(apperrors.CodePostNotFound, "post is not being watched", map[string]string{"post_uuid": postUUID}))
			return
		}
		writeJSON(w, http.StatusOK, snapshotEnvelope{Snapshot: newSnapshotView(snapshot)})
	})

	mux.HandleFunc("GET /stats", func(w http.ResponseWriter, r *http.Request) {
		stats := statsResponse{
			Subscriptions: live.Registry().Len(),
			Push:          StateDisconnected.String(),
			Telemetry:     emitter.Counts(),
		}
		if pushState != nil {
			stats.Push = pushState().String()
		}
		writeJSON(w, http.StatusOK, stats)
	})

	return mux
}

func handleWSConn(conn *websocket.Conn, live *Live) {
	defer func() {
		_ = conn.Close()
	}()

	ctx := context.Background()
	if request := conn.Request(); request != nil {
		ctx = request.Context()
	}

	decoder := json.NewDecoder(conn)
	session := newWSSession(newWSPeer(conn))
	defer func() {
		for _, handle := range session.removeAll() {
			live.Release(handle)
		}
	}()

	windowStart := time.Now()
	framesInWindow := 0
	decodeErrors := 0

	for {
		var frame wsFrame
		if err := decoder.Decode(&frame); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			decodeErrors++
			_ = writeWSError(session.peer, "", apperrors.CodeInvalidArgument, "invalid frame payload", false)
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			// A failed decode leaves the decoder unusable.
			decoder = json.NewDecoder(conn)
			continue
		}
		decodeErrors = 0

		if len(frame.Payload) > maxFramePayloadBytes {
			_ = writeWSError(session.peer, frame.RequestID, apperrors.CodeInvalidArgument, "payload too large", false)
			continue
		}

		now := time.Now()
		if now.Sub(windowStart) >= time.Second {
			windowStart = now
			framesInWindow = 0
		}
		framesInWindow++
		if framesInWindow > maxFramesPerSecond {
			_ = writeWSError(session.peer, frame.RequestID, "RESOURCE_EXHAUSTED", "rate limit exceeded", false)
			return
		}

		switch frame.Type {
		case "post.watch":
			handleWatchFrame(ctx, session, live, frame)
		case "post.unwatch":
			handleUnwatchFrame(session, live, frame)
		default:
			_ = writeWSError(session.peer, frame.RequestID, apperrors.CodeInvalidArgument, "unsupported frame type", false)
		}
	}
}

func decodeWatchPayload(session *wsSession, frame wsFrame) (string, bool) {
	var payload watchPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSError(session.peer, frame.RequestID, apperrors.CodeInvalidArgument, "invalid watch payload", false)
		return "", false
	}
	postUUID := strings.TrimSpace(payload.PostUUID)
	if postUUID == "" {
		_ = writeWSError(session.peer, frame.RequestID, apperrors.CodeInvalidArgument, "post_uuid is required", false)
		return "", false
	}
	return postUUID, true
}

func handleWatchFrame(ctx context.Context, session *wsSession, live *Live, frame wsFrame) {
	postUUID, ok := decodeWatchPayload(session, frame)
	if !ok {
		return
	}

	if session.watching(postUUID) {
		if snapshot, ok := live.Snapshot(postUUID); ok {
			writeSnapshotFrame(session.peer, frame.RequestID, snapshot)
		}
		return
	}
	if session.count() >= maxWatchesPerConn {
		_ = writeWSError(session.peer, frame.RequestID, "RESOURCE_EXHAUSTED", "too many watched posts", false)
		return
	}

	handle, err := live.Watch(ctx, postUUID)
	if err != nil {
		code := apperrors.CodeOf(err)
		log.Printf("livepost: watch post=%q failed: %v", postUUID, err)
		_ = writeWSError(session.peer, frame.RequestID, code, err.Error(), code == apperrors.CodeUpstreamUnavailable)
		return
	}

	// Consume the seed signal so the pump only reports later changes.
	select {
	case <-handle.Updates():
	default:
	}
	snapshot, ok := handle.Snapshot()
	if !ok {
		live.Release(handle)
		_ = writeWSError(session.peer, frame.RequestID, apperrors.CodePostNotFound, "post snapshot unavailable", true)
		return
	}
	writeSnapshotFrame(session.peer, frame.RequestID, snapshot)
	session.add(handle)
}

func handleUnwatchFrame(session *wsSession, live *Live, frame wsFrame) {
	postUUID, ok := decodeWatchPayload(session, frame)
	if !ok {
		return
	}
	if handle := session.remove(postUUID); handle != nil {
		live.Release(handle)
	}
	_ = session.peer.writeFrame(wsFrame{
		Type:      "post.unwatched",
		RequestID: frame.RequestID,
		Payload:   mustJSON(unwatchedEnvelope{PostUUID: postUUID}),
	})
}

func writeSnapshotFrame(peer *wsPeer, requestID string, snapshot domain.Snapshot) {
	_ = peer.writeFrame(wsFrame{
		Type:      "post.snapshot",
		RequestID: requestID,
		Payload:   mustJSON(snapshotEnvelope{Snapshot: newSnapshotView(snapshot)}),
	})
}

func writeWSError(peer *wsPeer, requestID string, code apperrors.Code, message string, retryable bool) error {
	return peer.writeFrame(wsFrame{
		Type:      "post.error",
		RequestID: requestID,
		Payload: mustJSON(wsErrorEnvelope{
			Error: wsError{
				Code:      string(code),
				Message:   message,
				Retryable: retryable,
			},
		}),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("livepost: encode response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)
	writeJSON(w, code.HTTPStatus(), wsErrorEnvelope{
		Error: wsError{Code: string(code), Message: err.Error()},
	})
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("failed to marshal websocket frame payload: %v", err)
		return nil
	}
	return b
}
