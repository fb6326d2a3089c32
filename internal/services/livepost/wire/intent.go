package wire

import "google.golang.org/protobuf/encoding/protowire"

const (
	subscriptionPostUpdates protowire.Number = 1
	postUpdatesPostUUID     protowire.Number = 1
)

// SubscriptionRequest is the body of Subscribe and Unsubscribe frames:
// {postUpdates: {postUuid}}.
type SubscriptionRequest struct {
	PostUpdatesUUID string
}

// EncodeSubscriptionRequest encodes a subscription request payload.
func EncodeSubscriptionRequest(req SubscriptionRequest) []byte {
	if req.PostUpdatesUUID == "" {
		return nil
	}
	postUpdates := appendStringField(nil, postUpdatesPostUUID, req.PostUpdatesUUID)
	return appendMessageField(nil, subscriptionPostUpdates, postUpdates)
}

// SubscribeFrame returns the complete frame asking for updates of postUUID.
func SubscribeFrame(req SubscriptionRequest) []byte {
	return EncodeEnvelope(EventSubscribe, EncodeSubscriptionRequest(req))
}

// UnsubscribeFrame returns the complete frame withdrawing interest in postUUID.
func UnsubscribeFrame(req SubscriptionRequest) []byte {
	return EncodeEnvelope(EventUnsubscribe, EncodeSubscriptionRequest(req))
}
