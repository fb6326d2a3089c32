package domain

import (
	"reflect"
	"testing"
)

func TestReconcilePostUpdatedIsIdempotent(t *testing.T) {
	t.Parallel()

	events := map[string]PostUpdated{
		"unversioned": {PostUUID: "cf-1", TotalAmountUSDCents: 1500, CurrentBackerCount: 7},
		"versioned":   {PostUUID: "cf-1", Revision: 3, TotalAmountUSDCents: 1500, CurrentBackerCount: 7},
	}
	for name, evt := range events {
		evt := evt
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			once := Snapshot{Post: &Crowdfunding{Details: Details{PostUUID: "cf-1"}, TargetBackerCount: 10}}
			twice := once.Clone()

			Reconcile(&once, evt)
			Reconcile(&twice, evt)
			if Reconcile(&twice, evt) {
				t.Fatal("second application reported a change")
			}
			if !reflect.DeepEqual(once, twice) {
				t.Fatalf("snapshot after two applications = %+v, want %+v", twice.Post, once.Post)
			}
		})
	}
}

func TestReconcileTotalVotesOnlyLeavesOtherAggregates(t *testing.T) {
	crowdfunding := &Crowdfunding{
		Details:             Details{PostUUID: "cf-1"},
		CurrentBackerCount:  4,
		TargetBackerCount:   10,
		TotalAmountUSDCents: 2000,
	}
	snapshot := Snapshot{Post: crowdfunding}

	if Reconcile(&snapshot, PostUpdated{PostUUID: "cf-1", TotalVotes: 12}) {
		t.Fatal("expected no change for a crowdfunding post")
	}
	if crowdfunding.TotalAmountUSDCents != 2000 {
		t.Fatalf("total amount = %d, want 2000", crowdfunding.TotalAmountUSDCents)
	}
	if crowdfunding.CurrentBackerCount != 4 {
		t.Fatalf("backer count = %d, want 4", crowdfunding.CurrentBackerCount)
	}

	multipleChoice := &MultipleChoice{Details: Details{PostUUID: "mc-1", Status: MultipleChoiceAcceptingVotes}, TotalVotes: 1}
	snapshot = Snapshot{Post: multipleChoice}
	if !Reconcile(&snapshot, PostUpdated{PostUUID: "mc-1", TotalVotes: 12}) {
		t.Fatal("expected total votes change")
	}
	if multipleChoice.TotalVotes != 12 {
		t.Fatalf("total votes = %d, want 12", multipleChoice.TotalVotes)
	}
	if multipleChoice.Status != MultipleChoiceAcceptingVotes {
		t.Fatalf("status = %d, want %d", multipleChoice.Status, MultipleChoiceAcceptingVotes)
	}
}

func TestReconcileZeroMeansNotReported(t *testing.T) {
	auction := &Auction{Details: Details{PostUUID: "ac-1", Status: AuctionAcceptingBids}, TotalAmountUSDCents: 900}
	snapshot := Snapshot{Post: auction}

	if Reconcile(&snapshot, PostUpdated{PostUUID: "ac-1"}) {
		t.Fatal("empty update reported a change")
	}
	if auction.TotalAmountUSDCents != 900 || auction.Status != AuctionAcceptingBids {
		t.Fatalf("auction = %+v, want untouched", auction)
	}

	if !Reconcile(&snapshot, PostUpdated{PostUUID: "ac-1", Status: AuctionWaitingForDecision}) {
		t.Fatal("status update reported no change")
	}
	if got := snapshot.Status(); got != StatusWaitingForDecision {
		t.Fatalf("status = %q, want %q", got, StatusWaitingForDecision)
	}
}

func TestReconcileRejectsStaleRevision(t *testing.T) {
	multipleChoice := &MultipleChoice{Details: Details{PostUUID: "mc-1"}}
	snapshot := Snapshot{Post: multipleChoice}

	Reconcile(&snapshot, PostUpdated{PostUUID: "mc-1", Revision: 5, TotalVotes: 50})
	if Reconcile(&snapshot, PostUpdated{PostUUID: "mc-1", Revision: 4, TotalVotes: 40}) {
		t.Fatal("stale revision applied")
	}
	if multipleChoice.TotalVotes != 50 {
		t.Fatalf("total votes = %d, want 50", multipleChoice.TotalVotes)
	}
	if snapshot.Revision != 5 {
		t.Fatalf("revision = %d, want 5", snapshot.Revision)
	}

	// Unversioned updates still apply after versioned ones.
	if !Reconcile(&snapshot, PostUpdated{PostUUID: "mc-1", TotalVotes: 51}) {
		t.Fatal("unversioned update rejected")
	}
	if multipleChoice.TotalVotes != 51 {
		t.Fatalf("total votes = %d, want 51", multipleChoice.TotalVotes)
	}
}

func TestReconcileCoverImage(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name             string
		start            Details
		event            CoverImageUpdated
		wantAnnouncement string
		wantResponse     string
		wantChanged      bool
	}{
		{
			name:         "response updated",
			event:        CoverImageUpdated{Target: CoverTargetResponse, Action: CoverActionUpdated, URL: "x.jpg"},
			wantResponse: "x.jpg",
			wantChanged:  true,
		},
		{
			name:             "announcement updated",
			start:            Details{ResponseCoverImage: "r.jpg"},
			event:            CoverImageUpdated{Target: CoverTargetAnnouncement, Action: CoverActionUpdated, URL: "a.jpg"},
			wantAnnouncement: "a.jpg",
			wantResponse:     "r.jpg",
			wantChanged:      true,
		},
		{
			name:             "announcement deleted",
			start:            Details{AnnouncementCoverImage: "a.jpg", ResponseCoverImage: "r.jpg"},
			event:            CoverImageUpdated{Target: CoverTargetAnnouncement, Action: CoverActionDeleted},
			wantAnnouncement: "",
			wantResponse:     "r.jpg",
			wantChanged:      true,
		},
		{
			name:             "unknown target ignored",
			start:            Details{AnnouncementCoverImage: "a.jpg"},
			event:            CoverImageUpdated{Target: CoverTarget(9), Action: CoverActionDeleted},
			wantAnnouncement: "a.jpg",
		},
		{
			name:         "unknown action ignored",
			start:        Details{ResponseCoverImage: "r.jpg"},
			event:        CoverImageUpdated{Target: CoverTargetResponse, Action: CoverActionUnspecified, URL: "x.jpg"},
			wantResponse: "r.jpg",
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			post := &MultipleChoice{Details: tc.start, TotalVotes: 5}
			snapshot := Snapshot{Post: post}

			if got := Reconcile(&snapshot, tc.event); got != tc.wantChanged {
				t.Fatalf("changed = %v, want %v", got, tc.wantChanged)
			}
			if post.AnnouncementCoverImage != tc.wantAnnouncement {
				t.Fatalf("announcement cover = %q, want %q", post.AnnouncementCoverImage, tc.wantAnnouncement)
			}
			if post.ResponseCoverImage != tc.wantResponse {
				t.Fatalf("response cover = %q, want %q", post.ResponseCoverImage, tc.wantResponse)
			}
			if post.TotalVotes != 5 {
				t.Fatalf("total votes = %d, want 5", post.TotalVotes)
			}
		})
	}
}

func TestReconcileWithoutSnapshotPost(t *testing.T) {
	if Reconcile(nil, PostUpdated{TotalVotes: 1}) {
		t.Fatal("nil snapshot reported change")
	}
	if Reconcile(&Snapshot{}, PostUpdated{TotalVotes: 1}) {
		t.Fatal("empty snapshot reported change")
	}
}

func TestPostUpdatedFrom(t *testing.T) {
	evt := PostUpdatedFrom(&Crowdfunding{
		Details:             Details{PostUUID: "cf-1", Status: CrowdfundingSucceeded},
		CurrentBackerCount:  11,
		TotalAmountUSDCents: 5500,
	}, 8)

	want := PostUpdated{
		PostUUID:            "cf-1",
		Variant:             VariantCrowdfunding,
		Revision:            8,
		Status:              CrowdfundingSucceeded,
		TotalAmountUSDCents: 5500,
		CurrentBackerCount:  11,
	}
	if evt != want {
		t.Fatalf("PostUpdatedFrom = %+v, want %+v", evt, want)
	}
}

func TestReconcileIgnoresUpdateForOtherVariant(t *testing.T) {
	auction := &Auction{
		Details:             Details{PostUUID: "a-1", Status: AuctionAcceptingBids},
		TotalAmountUSDCents: 100,
	}
	snapshot := Snapshot{Post: auction, Revision: 2}

	changed := Reconcile(&snapshot, PostUpdated{
		PostUUID:            "a-1",
		Variant:             VariantCrowdfunding,
		Revision:            5,
		Status:              CrowdfundingFlagged,
		TotalAmountUSDCents: 999,
	})
	if changed {
		t.Fatal("expected a crowdfunding update to leave an auction untouched")
	}
	if auction.TotalAmountUSDCents != 100 {
		t.Fatalf("total amount = %d, want 100", auction.TotalAmountUSDCents)
	}
	if auction.Status != AuctionAcceptingBids {
		t.Fatalf("raw status = %d, want %d", auction.Status, AuctionAcceptingBids)
	}
	if snapshot.Revision != 2 {
		t.Fatalf("revision = %d, want 2", snapshot.Revision)
	}

	if !Reconcile(&snapshot, PostUpdated{PostUUID: "a-1", Variant: VariantAuction, Revision: 5, TotalAmountUSDCents: 300}) {
		t.Fatal("expected a matching update to apply")
	}
	if auction.TotalAmountUSDCents != 300 {
		t.Fatalf("total amount = %d, want 300", auction.TotalAmountUSDCents)
	}
}
