// Package wiretest builds and reads push frames the way the platform push
// server does, for exercising the client side in tests.
package wiretest

import (
	"fmt"

	"github.com/louisbranch/livepost/internal/services/livepost/domain"
	"google.golang.org/protobuf/encoding/protowire"
)

const (
	postUpdatedPost     protowire.Number = 1
	postUpdatedRevision protowire.Number = 2

	wrapperAuction        protowire.Number = 1
	wrapperCrowdfunding   protowire.Number = 2
	wrapperMultipleChoice protowire.Number = 3

	variantPostUUID    protowire.Number = 1
	variantStatus      protowire.Number = 2
	variantTotalAmount protowire.Number = 3
	variantCounter     protowire.Number = 4
	moneyUSDCents      protowire.Number = 1

	coverPostUUID protowire.Number = 1
	coverTarget   protowire.Number = 2
	coverAction   protowire.Number = 3
	coverURL      protowire.Number = 4

	subscriptionPostUpdates protowire.Number = 1
	postUpdatesPostUUID     protowire.Number = 1
)

// PostUpdated encodes a PostUpdated payload. The wrapper field is chosen by
// evt.Variant; an empty variant encodes as multiple choice.
func PostUpdated(evt domain.PostUpdated) []byte {
	var msg []byte
	msg = appendString(msg, variantPostUUID, evt.PostUUID)
	msg = appendVarint(msg, variantStatus, uint64(int64(evt.Status)))

	var wrapperField protowire.Number
	switch evt.Variant {
	case domain.VariantAuction:
		wrapperField = wrapperAuction
		msg = appendMoney(msg, evt.TotalAmountUSDCents)
	case domain.VariantCrowdfunding:
		wrapperField = wrapperCrowdfunding
		msg = appendMoney(msg, evt.TotalAmountUSDCents)
		msg = appendVarint(msg, variantCounter, uint64(evt.CurrentBackerCount))
	default:
		wrapperField = wrapperMultipleChoice
		msg = appendVarint(msg, variantCounter, uint64(evt.TotalVotes))
	}

	wrapper := appendMessage(nil, wrapperField, msg)
	b := appendMessage(nil, postUpdatedPost, wrapper)
	return appendVarint(b, postUpdatedRevision, evt.Revision)
}

// CoverImageUpdated encodes a PostCoverImageUpdated payload.
func CoverImageUpdated(evt domain.CoverImageUpdated) []byte {
	var b []byte
	b = appendString(b, coverPostUUID, evt.PostUUID)
	b = appendVarint(b, coverTarget, uint64(int64(evt.Target)))
	b = appendVarint(b, coverAction, uint64(int64(evt.Action)))
	return appendString(b, coverURL, evt.URL)
}

// SubscriptionPostUUID reads the post uuid out of a Subscribe or Unsubscribe
// payload.
func SubscriptionPostUUID(payload []byte) (string, error) {
	postUpdates, err := bytesField(payload, subscriptionPostUpdates)
	if err != nil {
		return "", err
	}
	postUUID, err := bytesField(postUpdates, postUpdatesPostUUID)
	if err != nil {
		return "", err
	}
	return string(postUUID), nil
}

// bytesField returns the last length-delimited field num of msg.
func bytesField(msg []byte, num protowire.Number) ([]byte, error) {
	var found []byte
	for len(msg) > 0 {
		n, typ, tagLen := protowire.ConsumeTag(msg)
		if tagLen < 0 {
			return nil, protowire.ParseError(tagLen)
		}
		msg = msg[tagLen:]
		if n == num && typ == protowire.BytesType {
			v, valueLen := protowire.ConsumeBytes(msg)
			if valueLen < 0 {
				return nil, protowire.ParseError(valueLen)
			}
			found = v
			msg = msg[valueLen:]
			continue
		}
		valueLen := protowire.ConsumeFieldValue(n, typ, msg)
		if valueLen < 0 {
			return nil, fmt.Errorf("field %d: %w", n, protowire.ParseError(valueLen))
		}
		msg = msg[valueLen:]
	}
	return found, nil
}

func appendMoney(b []byte, usdCents int64) []byte {
	if usdCents == 0 {
		return b
	}
	return appendMessage(b, variantTotalAmount, appendVarint(nil, moneyUSDCents, uint64(usdCents)))
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}
