package domain

// SemanticStatus is the lifecycle status shared by every decision variant.
type SemanticStatus string

const (
	StatusScheduled              SemanticStatus = "scheduled"
	StatusVoting                 SemanticStatus = "voting"
	StatusWaitingForDecision     SemanticStatus = "waiting_for_decision"
	StatusWaitingForResponse     SemanticStatus = "waiting_for_response"
	StatusFlagged                SemanticStatus = "flagged"
	StatusSucceeded              SemanticStatus = "succeeded"
	StatusFailed                 SemanticStatus = "failed"
	StatusDeletedByCreator       SemanticStatus = "deleted_by_creator"
	StatusDeletedByAdmin         SemanticStatus = "deleted_by_admin"
	StatusProcessingAnnouncement SemanticStatus = "processing_announcement"
	StatusProcessingResponse     SemanticStatus = "processing_response"
)

// Raw auction statuses as sent by the platform.
const (
	AuctionScheduled              int32 = 1
	AuctionAcceptingBids          int32 = 2
	AuctionWaitingForDecision     int32 = 3
	AuctionWaitingForResponse     int32 = 4
	AuctionSucceeded              int32 = 5
	AuctionFailed                 int32 = 6
	AuctionFlagged                int32 = 7
	AuctionDeletedByCreator       int32 = 8
	AuctionDeletedByAdmin         int32 = 9
	AuctionProcessingAnnouncement int32 = 10
	AuctionProcessingResponse     int32 = 11
)

// Raw crowdfunding statuses as sent by the platform.
const (
	CrowdfundingScheduled              int32 = 1
	CrowdfundingAcceptingPledges       int32 = 2
	CrowdfundingWaitingForResponse     int32 = 3
	CrowdfundingSucceeded              int32 = 4
	CrowdfundingFailed                 int32 = 5
	CrowdfundingFlagged                int32 = 6
	CrowdfundingDeletedByCreator       int32 = 7
	CrowdfundingDeletedByAdmin         int32 = 8
	CrowdfundingProcessingAnnouncement int32 = 9
	CrowdfundingProcessingResponse     int32 = 10
)

// Raw multiple-choice statuses as sent by the platform.
const (
	MultipleChoiceScheduled              int32 = 1
	MultipleChoiceAcceptingVotes         int32 = 2
	MultipleChoiceWaitingForResponse     int32 = 3
	MultipleChoiceSucceeded              int32 = 4
	MultipleChoiceFailed                 int32 = 5
	MultipleChoiceFlagged                int32 = 6
	MultipleChoiceDeletedByCreator       int32 = 7
	MultipleChoiceDeletedByAdmin         int32 = 8
	MultipleChoiceProcessingAnnouncement int32 = 9
	MultipleChoiceProcessingResponse     int32 = 10
)

var statusTables = map[Variant]map[int32]SemanticStatus{
	VariantAuction: {
		AuctionScheduled:              StatusScheduled,
		AuctionAcceptingBids:          StatusVoting,
		AuctionWaitingForDecision:     StatusWaitingForDecision,
		AuctionWaitingForResponse:     StatusWaitingForResponse,
		AuctionSucceeded:              StatusSucceeded,
		AuctionFailed:                 StatusFailed,
		AuctionFlagged:                StatusFlagged,
		AuctionDeletedByCreator:       StatusDeletedByCreator,
		AuctionDeletedByAdmin:         StatusDeletedByAdmin,
		AuctionProcessingAnnouncement: StatusProcessingAnnouncement,
		AuctionProcessingResponse:     StatusProcessingResponse,
	},
	VariantCrowdfunding: {
		CrowdfundingScheduled:              StatusScheduled,
		CrowdfundingAcceptingPledges:       StatusVoting,
		CrowdfundingWaitingForResponse:     StatusWaitingForResponse,
		CrowdfundingSucceeded:              StatusSucceeded,
		CrowdfundingFailed:                 StatusFailed,
		CrowdfundingFlagged:                StatusFlagged,
		CrowdfundingDeletedByCreator:       StatusDeletedByCreator,
		CrowdfundingDeletedByAdmin:         StatusDeletedByAdmin,
		CrowdfundingProcessingAnnouncement: StatusProcessingAnnouncement,
		CrowdfundingProcessingResponse:     StatusProcessingResponse,
	},
	VariantMultipleChoice: {
		MultipleChoiceScheduled:              StatusScheduled,
		MultipleChoiceAcceptingVotes:         StatusVoting,
		MultipleChoiceWaitingForResponse:     StatusWaitingForResponse,
		MultipleChoiceSucceeded:              StatusSucceeded,
		MultipleChoiceFailed:                 StatusFailed,
		MultipleChoiceFlagged:                StatusFlagged,
		MultipleChoiceDeletedByCreator:       StatusDeletedByCreator,
		MultipleChoiceDeletedByAdmin:         StatusDeletedByAdmin,
		MultipleChoiceProcessingAnnouncement: StatusProcessingAnnouncement,
		MultipleChoiceProcessingResponse:     StatusProcessingResponse,
	},
}

// Project maps a variant's raw status onto the shared lifecycle status.
// Unmapped values fall back to StatusProcessingAnnouncement.
func Project(variant Variant, raw int32) SemanticStatus {
	status, _ := ProjectKnown(variant, raw)
	return status
}

// ProjectKnown is Project that also reports whether raw was a known status of
// variant, so callers can flag protocol drift instead of hiding it.
func ProjectKnown(variant Variant, raw int32) (SemanticStatus, bool) {
	if status, ok := statusTables[variant][raw]; ok {
		return status, true
	}
	return StatusProcessingAnnouncement, false
}

// IsTerminal reports whether no further push updates are expected for a post
// in this status.
func (s SemanticStatus) IsTerminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusDeletedByCreator, StatusDeletedByAdmin:
		return true
	}
	return false
}
