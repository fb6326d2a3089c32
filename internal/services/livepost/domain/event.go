package domain

// Event is a push notification about one post. The implementations are
// PostUpdated and CoverImageUpdated.
type Event interface {
	TargetPostUUID() string
	isEvent()
}

// PostUpdated carries the aggregates that changed on a post. Zero values mean
// "not reported", never "reset to zero".
type PostUpdated struct {
	PostUUID string
	Variant  Variant
	// Revision increases per post on the server. Zero means the sender did not
	// version the update.
	Revision            uint64
	Status              int32
	TotalAmountUSDCents int64
	TotalVotes          int64
	CurrentBackerCount  int64
}

// MatchesVariant reports whether the update may be folded into a post of
// variant v. An update that names no variant matches any post.
func (e PostUpdated) MatchesVariant(v Variant) bool {
	return e.Variant == "" || e.Variant == v
}

// CoverTarget selects which cover image an update addresses.
type CoverTarget int32

const (
	CoverTargetUnspecified  CoverTarget = 0
	CoverTargetAnnouncement CoverTarget = 1
	CoverTargetResponse     CoverTarget = 2
)

// CoverAction says what happened to the cover image.
type CoverAction int32

const (
	CoverActionUnspecified CoverAction = 0
	CoverActionUpdated     CoverAction = 1
	CoverActionDeleted     CoverAction = 2
)

// CoverImageUpdated reports a new or removed cover image.
type CoverImageUpdated struct {
	PostUUID string
	Target   CoverTarget
	Action   CoverAction
	URL      string
}

func (e PostUpdated) TargetPostUUID() string       { return e.PostUUID }
func (e CoverImageUpdated) TargetPostUUID() string { return e.PostUUID }

func (PostUpdated) isEvent()       {}
func (CoverImageUpdated) isEvent() {}

// PostUpdatedFrom extracts the reported aggregates of a resolved partial post,
// as carried inside a PostUpdated push frame.
func PostUpdatedFrom(post Post, revision uint64) PostUpdated {
	evt := PostUpdated{
		PostUUID: post.Common().PostUUID,
		Variant:  post.Tag(),
		Revision: revision,
		Status:   post.Common().Status,
	}
	switch p := post.(type) {
	case *Auction:
		evt.TotalAmountUSDCents = p.TotalAmountUSDCents
	case *Crowdfunding:
		evt.TotalAmountUSDCents = p.TotalAmountUSDCents
		evt.CurrentBackerCount = p.CurrentBackerCount
	case *MultipleChoice:
		evt.TotalVotes = p.TotalVotes
	}
	return evt
}
