package domain

import "time"

// Variant identifies which kind of decision a post solicits.
type Variant string

const (
	VariantAuction        Variant = "auction"
	VariantCrowdfunding   Variant = "crowdfunding"
	VariantMultipleChoice Variant = "multiple_choice"
)

// UserRef points at the creator of a post. Posts do not own users.
type UserRef struct {
	UUID     string `json:"uuid"`
	Username string `json:"username,omitempty"`
}

// Details holds the fields every decision post carries.
//
// PostUUID, PostShortID, StartsAt and ExpiresAt are fixed once the post is
// scheduled; push events never touch them.
type Details struct {
	PostUUID               string    `json:"postUuid"`
	PostShortID            string    `json:"postShortId,omitempty"`
	Title                  string    `json:"title"`
	Creator                UserRef   `json:"creator"`
	StartsAt               time.Time `json:"startsAt"`
	ExpiresAt              time.Time `json:"expiresAt"`
	Status                 int32     `json:"status"`
	AnnouncementCoverImage string    `json:"announcementCoverImage,omitempty"`
	ResponseCoverImage     string    `json:"responseCoverImage,omitempty"`
}

// Post is a decision post. The implementations are *Auction, *Crowdfunding and
// *MultipleChoice; the dynamic type is the variant tag.
type Post interface {
	Tag() Variant
	Common() *Details
	// Clone returns a deep copy safe to hand to readers.
	Clone() Post
	isPost()
}

// AuctionOption is one bid option of an auction.
type AuctionOption struct {
	ID                  string `json:"id"`
	Title               string `json:"title"`
	SupporterCount      int64  `json:"supporterCount"`
	TotalAmountUSDCents int64  `json:"totalAmountUsdCents"`
}

// Auction collects bids on creator-proposed or viewer-proposed options.
type Auction struct {
	Details
	TotalAmountUSDCents int64           `json:"totalAmountUsdCents"`
	Options             []AuctionOption `json:"options,omitempty"`
}

// Crowdfunding collects pledges towards a backer target.
type Crowdfunding struct {
	Details
	CurrentBackerCount  int64 `json:"currentBackerCount"`
	TargetBackerCount   int64 `json:"targetBackerCount"`
	TotalAmountUSDCents int64 `json:"totalAmountUsdCents"`
}

// VoteOption is one choice of a multiple-choice post.
type VoteOption struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	VoteCount int64  `json:"voteCount"`
}

// MultipleChoice collects votes on a fixed set of options.
type MultipleChoice struct {
	Details
	TotalVotes int64        `json:"totalVotes"`
	Options    []VoteOption `json:"options,omitempty"`
}

func (*Auction) Tag() Variant        { return VariantAuction }
func (*Crowdfunding) Tag() Variant   { return VariantCrowdfunding }
func (*MultipleChoice) Tag() Variant { return VariantMultipleChoice }

func (p *Auction) Common() *Details        { return &p.Details }
func (p *Crowdfunding) Common() *Details   { return &p.Details }
func (p *MultipleChoice) Common() *Details { return &p.Details }

func (p *Auction) Clone() Post {
	clone := *p
	clone.Options = append([]AuctionOption(nil), p.Options...)
	return &clone
}

func (p *Crowdfunding) Clone() Post {
	clone := *p
	return &clone
}

func (p *MultipleChoice) Clone() Post {
	clone := *p
	clone.Options = append([]VoteOption(nil), p.Options...)
	return &clone
}

func (*Auction) isPost()        {}
func (*Crowdfunding) isPost()   {}
func (*MultipleChoice) isPost() {}

// Wrapper is the envelope form the platform uses for polymorphic posts: at
// most one of the fields is set.
type Wrapper struct {
	Auction        *Auction        `json:"auction,omitempty"`
	Crowdfunding   *Crowdfunding   `json:"crowdfunding,omitempty"`
	MultipleChoice *MultipleChoice `json:"multipleChoice,omitempty"`
}

// Snapshot is the locally held state of one post plus the last push revision
// folded into it.
type Snapshot struct {
	Post     Post
	Revision uint64
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	if s.Post == nil {
		return s
	}
	return Snapshot{Post: s.Post.Clone(), Revision: s.Revision}
}

// Status returns the semantic status of the snapshot's post.
func (s Snapshot) Status() SemanticStatus {
	if s.Post == nil {
		return StatusProcessingAnnouncement
	}
	return Project(s.Post.Tag(), s.Post.Common().Status)
}
