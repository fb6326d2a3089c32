package domain

import (
	"errors"
	"testing"

	apperrors "github.com/louisbranch/livepost/internal/platform/errors"
)

func TestResolveWrappedAndUnwrapped(t *testing.T) {
	t.Parallel()

	auction := &Auction{Details: Details{PostUUID: "ac-1"}}
	crowdfunding := &Crowdfunding{Details: Details{PostUUID: "cf-1"}}
	multipleChoice := &MultipleChoice{Details: Details{PostUUID: "mc-1"}}

	testCases := []struct {
		name    string
		payload any
		want    Variant
		wantID  string
	}{
		{name: "wrapped auction", payload: Wrapper{Auction: auction}, want: VariantAuction, wantID: "ac-1"},
		{name: "wrapped crowdfunding pointer", payload: &Wrapper{Crowdfunding: crowdfunding}, want: VariantCrowdfunding, wantID: "cf-1"},
		{name: "wrapped multiple choice", payload: Wrapper{MultipleChoice: multipleChoice}, want: VariantMultipleChoice, wantID: "mc-1"},
		{name: "unwrapped auction", payload: auction, want: VariantAuction, wantID: "ac-1"},
		{name: "unwrapped crowdfunding", payload: crowdfunding, want: VariantCrowdfunding, wantID: "cf-1"},
		{name: "unwrapped multiple choice", payload: multipleChoice, want: VariantMultipleChoice, wantID: "mc-1"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			post, tag, err := Resolve(tc.payload)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if tag != tc.want || post.Tag() != tc.want {
				t.Fatalf("tag = %q (post %q), want %q", tag, post.Tag(), tc.want)
			}
			if post.Common().PostUUID != tc.wantID {
				t.Fatalf("post uuid = %q, want %q", post.Common().PostUUID, tc.wantID)
			}

			again, againTag, err := Resolve(post)
			if err != nil {
				t.Fatalf("re-resolve: %v", err)
			}
			if againTag != tag || again != post {
				t.Fatalf("re-resolve = (%p, %q), want (%p, %q)", again, againTag, post, tag)
			}
		})
	}
}

func TestResolveWrapperPriority(t *testing.T) {
	w := Wrapper{
		Crowdfunding:   &Crowdfunding{Details: Details{PostUUID: "cf"}},
		MultipleChoice: &MultipleChoice{Details: Details{PostUUID: "mc"}},
	}
	_, tag, err := Resolve(w)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if tag != VariantCrowdfunding {
		t.Fatalf("tag = %q, want %q", tag, VariantCrowdfunding)
	}
}

func TestResolveUnknownVariant(t *testing.T) {
	t.Parallel()

	var nilAuction *Auction
	payloads := map[string]any{
		"empty wrapper":   Wrapper{},
		"nil wrapper":     (*Wrapper)(nil),
		"nil variant":     nilAuction,
		"foreign payload": struct{ PostUUID string }{PostUUID: "x"},
		"nil":             nil,
	}
	for name, payload := range payloads {
		payload := payload
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, _, err := Resolve(payload)
			if !errors.Is(err, ErrUnknownPostVariant) {
				t.Fatalf("Resolve err = %v, want unknown post variant", err)
			}
			if apperrors.CodeOf(err) != apperrors.CodeUnknownPostVariant {
				t.Fatalf("code = %q, want %q", apperrors.CodeOf(err), apperrors.CodeUnknownPostVariant)
			}
		})
	}
}

func TestWrapRoundTrip(t *testing.T) {
	post := &MultipleChoice{Details: Details{PostUUID: "mc-1"}}
	got, tag, err := Resolve(wrap(post))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if tag != VariantMultipleChoice || got != Post(post) {
		t.Fatalf("Resolve(Wrap) = (%v, %q), want original multiple choice", got, tag)
	}
}

func TestCloneIsDeep(t *testing.T) {
	original := &Auction{
		Details: Details{PostUUID: "ac-1"},
		Options: []AuctionOption{{ID: "o1", SupporterCount: 2}},
	}
	clone := original.Clone().(*Auction)
	clone.Options[0].SupporterCount = 9
	clone.Title = "changed"

	if original.Options[0].SupporterCount != 2 {
		t.Fatalf("original option mutated through clone: %d", original.Options[0].SupporterCount)
	}
	if original.Title != "" {
		t.Fatalf("original title mutated through clone: %q", original.Title)
	}
}

func wrap(post Post) Wrapper {
	switch p := post.(type) {
	case *Auction:
		return Wrapper{Auction: p}
	case *Crowdfunding:
		return Wrapper{Crowdfunding: p}
	case *MultipleChoice:
		return Wrapper{MultipleChoice: p}
	}
	return Wrapper{}
}
