package models

import "time"

// ReplyRecord is one scraped reply before it is placed into a thread tree.
// CreatedAt is left zero by the scrape layer when the source timestamp
// cannot be parsed.
type ReplyRecord struct {
	ID                string    `json:"id" validate:"required"`
	AuthorHandle      string    `json:"authorHandle" validate:"required,excludesall= "`
	AuthorDisplayName string    `json:"authorDisplayName"`
	Text              string    `json:"text"`
	CreatedAt         time.Time `json:"createdAt" validate:"required"`
	LikeCount         int       `json:"likeCount" validate:"gte=0"`
	ShareCount        int       `json:"shareCount" validate:"gte=0"`
	ReplyCount        int       `json:"replyCount" validate:"gte=0"`
	ParentID          string    `json:"parentId" validate:"required"`
	RootID            string    `json:"rootId" validate:"required"`
	IsRetweet         bool      `json:"isRetweet,omitempty"`
	IsQuote           bool      `json:"isQuote,omitempty"`
}

// IsReshare reports whether the record wraps another message instead of
// carrying original commentary.
func (r ReplyRecord) IsReshare() bool {
	return r.IsRetweet || r.IsQuote
}
