// Package wire encodes and decodes push socket frames.
//
// Frames use the protobuf wire format. Messages are read field by field with
// protowire so the service does not depend on generated code for the
// platform's event schema; unknown fields are skipped.
package wire

import (
	"errors"
	"fmt"

	apperrors "github.com/louisbranch/livepost/internal/platform/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// Event names carried in frame envelopes.
const (
	EventPostUpdated           = "PostUpdated"
	EventPostCoverImageUpdated = "PostCoverImageUpdated"
	EventSubscribe             = "Subscribe"
	EventUnsubscribe           = "Unsubscribe"
)

// ErrDecode matches every frame decode failure.
var ErrDecode = apperrors.New(apperrors.CodeDecode, "decode frame")

// ErrUnknownEvent reports an event name with no known schema.
var ErrUnknownEvent = errors.New("unknown event name")

// Envelope field numbers.
const (
	envelopeEventName protowire.Number = 1
	envelopePayload   protowire.Number = 2
)

// EncodeEnvelope wraps a payload under an event name.
func EncodeEnvelope(eventName string, payload []byte) []byte {
	var b []byte
	b = protowire.AppendTag(b, envelopeEventName, protowire.BytesType)
	b = protowire.AppendString(b, eventName)
	b = protowire.AppendTag(b, envelopePayload, protowire.BytesType)
	b = protowire.AppendBytes(b, payload)
	return b
}

// DecodeEnvelope splits a frame into its event name and payload.
func DecodeEnvelope(raw []byte) (string, []byte, error) {
	var (
		eventName string
		payload   []byte
	)
	err := readFields(raw, func(f field) error {
		switch f.num {
		case envelopeEventName:
			s, err := f.str()
			eventName = s
			return err
		case envelopePayload:
			b, err := f.raw()
			payload = b
			return err
		}
		return nil
	})
	if err != nil {
		return "", nil, apperrors.Wrap(apperrors.CodeDecode, "decode envelope", err)
	}
	if eventName == "" {
		return "", nil, apperrors.New(apperrors.CodeDecode, "envelope has no event name")
	}
	return eventName, payload, nil
}

// field is one decoded protobuf field.
type field struct {
	num    protowire.Number
	typ    protowire.Type
	varint uint64
	bytes  []byte
}

func (f field) str() (string, error) {
	if f.typ != protowire.BytesType {
		return "", fmt.Errorf("field %d: wire type %d, want bytes", f.num, f.typ)
	}
	return string(f.bytes), nil
}

func (f field) raw() ([]byte, error) {
	if f.typ != protowire.BytesType {
		return nil, fmt.Errorf("field %d: wire type %d, want bytes", f.num, f.typ)
	}
	return f.bytes, nil
}

func (f field) uint() (uint64, error) {
	if f.typ != protowire.VarintType {
		return 0, fmt.Errorf("field %d: wire type %d, want varint", f.num, f.typ)
	}
	return f.varint, nil
}

func (f field) int32() (int32, error) {
	v, err := f.uint()
	return int32(v), err
}

func (f field) int64() (int64, error) {
	v, err := f.uint()
	return int64(v), err
}

// readFields walks every field of a message, calling fn for each. Groups and
// fixed-width fields are skipped.
func readFields(b []byte, fn func(field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.varint, n = protowire.ConsumeVarint(b)
		case protowire.BytesType:
			f.bytes, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return fmt.Errorf("field %d: %w", num, protowire.ParseError(n))
		}
		b = b[n:]

		if typ != protowire.VarintType && typ != protowire.BytesType {
			continue
		}
		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

func appendStringField(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendMessageField(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}
