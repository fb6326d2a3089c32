package wire

import (
	"errors"
	"fmt"

	apperrors "github.com/louisbranch/livepost/internal/platform/errors"
	"github.com/louisbranch/livepost/internal/services/livepost/domain"
	"google.golang.org/protobuf/encoding/protowire"
)

// PostUpdated fields.
const (
	postUpdatedPost     protowire.Number = 1
	postUpdatedRevision protowire.Number = 2
)

// Wrapper fields, in resolution priority order.
const (
	wrapperAuction        protowire.Number = 1
	wrapperCrowdfunding   protowire.Number = 2
	wrapperMultipleChoice protowire.Number = 3
)

// Variant update fields. Field 4 is current_backer_count on crowdfunding and
// total_votes on multiple choice.
const (
	variantPostUUID    protowire.Number = 1
	variantStatus      protowire.Number = 2
	variantTotalAmount protowire.Number = 3
	variantCounter     protowire.Number = 4

	moneyUSDCents protowire.Number = 1
)

// PostCoverImageUpdated fields.
const (
	coverPostUUID protowire.Number = 1
	coverTarget   protowire.Number = 2
	coverAction   protowire.Number = 3
	coverURL      protowire.Number = 4
)

// DecodeEvent decodes a push payload according to its event name.
//
// Malformed payloads return an error matching ErrDecode. Names without a
// schema return ErrUnknownEvent.
func DecodeEvent(eventName string, payload []byte) (domain.Event, error) {
	switch eventName {
	case EventPostUpdated:
		evt, err := decodePostUpdated(payload)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeDecode, "decode "+eventName, err)
		}
		return evt, nil
	case EventPostCoverImageUpdated:
		evt, err := decodeCoverImageUpdated(payload)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeDecode, "decode "+eventName, err)
		}
		return evt, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, eventName)
}

func decodePostUpdated(payload []byte) (domain.PostUpdated, error) {
	var (
		wrapper  domain.Wrapper
		revision uint64
	)
	err := readFields(payload, func(f field) error {
		switch f.num {
		case postUpdatedPost:
			b, err := f.raw()
			if err != nil {
				return err
			}
			wrapper, err = decodeWrapper(b)
			return err
		case postUpdatedRevision:
			v, err := f.uint()
			revision = v
			return err
		}
		return nil
	})
	if err != nil {
		return domain.PostUpdated{}, err
	}

	post, _, err := domain.Resolve(wrapper)
	if err != nil {
		return domain.PostUpdated{}, err
	}
	if post.Common().PostUUID == "" {
		return domain.PostUpdated{}, errors.New("post update has no post uuid")
	}
	return domain.PostUpdatedFrom(post, revision), nil
}

func decodeWrapper(b []byte) (domain.Wrapper, error) {
	var w domain.Wrapper
	err := readFields(b, func(f field) error {
		if f.num != wrapperAuction && f.num != wrapperCrowdfunding && f.num != wrapperMultipleChoice {
			return nil
		}
		msg, err := f.raw()
		if err != nil {
			return err
		}
		var details domain.Details
		var totalAmount, counter int64
		if err := decodeVariantUpdate(msg, &details, &totalAmount, &counter); err != nil {
			return err
		}
		switch f.num {
		case wrapperAuction:
			w.Auction = &domain.Auction{Details: details, TotalAmountUSDCents: totalAmount}
		case wrapperCrowdfunding:
			w.Crowdfunding = &domain.Crowdfunding{Details: details, TotalAmountUSDCents: totalAmount, CurrentBackerCount: counter}
		case wrapperMultipleChoice:
			w.MultipleChoice = &domain.MultipleChoice{Details: details, TotalVotes: counter}
		}
		return nil
	})
	return w, err
}

func decodeVariantUpdate(b []byte, details *domain.Details, totalAmount *int64, counter *int64) error {
	return readFields(b, func(f field) error {
		var err error
		switch f.num {
		case variantPostUUID:
			details.PostUUID, err = f.str()
		case variantStatus:
			details.Status, err = f.int32()
		case variantTotalAmount:
			var money []byte
			if money, err = f.raw(); err != nil {
				return err
			}
			err = readFields(money, func(m field) error {
				if m.num != moneyUSDCents {
					return nil
				}
				v, err := m.int64()
				*totalAmount = v
				return err
			})
		case variantCounter:
			*counter, err = f.int64()
		}
		return err
	})
}

func decodeCoverImageUpdated(payload []byte) (domain.CoverImageUpdated, error) {
	var evt domain.CoverImageUpdated
	err := readFields(payload, func(f field) error {
		var err error
		switch f.num {
		case coverPostUUID:
			evt.PostUUID, err = f.str()
		case coverTarget:
			var v int32
			v, err = f.int32()
			evt.Target = domain.CoverTarget(v)
		case coverAction:
			var v int32
			v, err = f.int32()
			evt.Action = domain.CoverAction(v)
		case coverURL:
			evt.URL, err = f.str()
		}
		return err
	})
	if err != nil {
		return domain.CoverImageUpdated{}, err
	}
	if evt.PostUUID == "" {
		return domain.CoverImageUpdated{}, errors.New("cover image update has no post uuid")
	}
	return evt, nil
}
