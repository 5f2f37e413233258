// Package thread assembles scraped reply records into a bounded reply tree.
//
// Build is pure: it never mutates its input, performs no I/O, and is safe
// to call concurrently.
package thread

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/pauljones0/x-parser/internal/models"
	"github.com/pauljones0/x-parser/internal/validator"
)

const (
	DefaultMaxDepth    = 3
	DefaultMaxChildren = 50
)

var (
	// ErrInvalidBounds is returned when maxDepth or maxChildrenPerLevel is below 1.
	ErrInvalidBounds = errors.New("invalid thread bounds")
	// ErrMissingRoot is returned when Build is called without a root id.
	ErrMissingRoot = errors.New("missing root id")
)

var recordValidator = validator.New()

// Build converts an unordered list of reply records into a ThreadStructure
// rooted at rootID.
//
// Records are discarded when their RootID differs from rootID, when they are
// reshares, when they are the root itself, or when they fail validation (for
// example a zero CreatedAt). Duplicate ids keep the earliest CreatedAt.
// Participant totals cover every record that survives filtering, including
// records later pruned by the depth and width bounds.
func Build(records []models.ReplyRecord, rootID string, maxDepth, maxChildrenPerLevel int) (*ThreadStructure, error) {
	if rootID == "" {
		return nil, ErrMissingRoot
	}
	if maxDepth < 1 {
		return nil, fmt.Errorf("%w: maxDepth must be >= 1, got %d", ErrInvalidBounds, maxDepth)
	}
	if maxChildrenPerLevel < 1 {
		return nil, fmt.Errorf("%w: maxChildrenPerLevel must be >= 1, got %d", ErrInvalidBounds, maxChildrenPerLevel)
	}

	accepted := acceptRecords(records, rootID)

	byParent := make(map[string][]models.ReplyRecord, len(accepted))
	for _, r := range accepted {
		byParent[r.ParentID] = append(byParent[r.ParentID], r)
	}
	for _, siblings := range byParent {
		slices.SortStableFunc(siblings, compareRecords)
	}

	ts := &ThreadStructure{
		RootID:       rootID,
		Participants: summarizeParticipants(accepted),
	}

	// Breadth-first attachment from the root. A record is only reachable
	// once its parent has been attached, so input order does not matter and
	// cycles or orphans are never visited.
	ts.ReplyTree = attach(byParent[rootID], 1, maxChildrenPerLevel)
	queue := slices.Clone(ts.ReplyTree)
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if n.Depth >= maxDepth {
			continue
		}
		n.Children = attach(byParent[n.ID], n.Depth+1, maxChildrenPerLevel)
		queue = append(queue, n.Children...)
	}

	ts.Walk(func(n *ReplyNode) {
		ts.Replies = append(ts.Replies, n)
		ts.MaxDepth = max(ts.MaxDepth, n.Depth)
	})
	ts.TotalReplies = len(ts.Replies)
	if ts.ReplyTree == nil {
		ts.ReplyTree = []*ReplyNode{}
	}
	if ts.Replies == nil {
		ts.Replies = []*ReplyNode{}
	}
	return ts, nil
}

// acceptRecords applies the per-record filters and collapses duplicate ids.
// The returned slice holds copies; the caller's slice is left untouched.
func acceptRecords(records []models.ReplyRecord, rootID string) []models.ReplyRecord {
	accepted := make([]models.ReplyRecord, 0, len(records))
	index := make(map[string]int, len(records))

	for _, r := range records {
		if r.RootID != rootID || r.ID == rootID || r.IsReshare() {
			continue
		}
		if err := recordValidator.ValidateStruct(r); err != nil {
			continue
		}
		if i, ok := index[r.ID]; ok {
			if r.CreatedAt.Before(accepted[i].CreatedAt) {
				accepted[i] = r
			}
			continue
		}
		index[r.ID] = len(accepted)
		accepted = append(accepted, r)
	}
	return accepted
}

// attach turns an already sorted sibling list into nodes at the given depth,
// keeping at most limit entries.
func attach(siblings []models.ReplyRecord, depth, limit int) []*ReplyNode {
	if len(siblings) == 0 {
		return nil
	}
	if len(siblings) > limit {
		siblings = siblings[:limit]
	}
	nodes := make([]*ReplyNode, len(siblings))
	for i, r := range siblings {
		nodes[i] = &ReplyNode{ReplyRecord: r, Depth: depth}
	}
	return nodes
}

func compareRecords(a, b models.ReplyRecord) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

func summarizeParticipants(records []models.ReplyRecord) []ParticipantSummary {
	byHandle := make(map[string]*ParticipantSummary)
	var order []string
	for _, r := range records {
		p, ok := byHandle[r.AuthorHandle]
		if !ok {
			p = &ParticipantSummary{Handle: r.AuthorHandle, DisplayName: r.AuthorDisplayName}
			byHandle[r.AuthorHandle] = p
			order = append(order, r.AuthorHandle)
		}
		p.ReplyCount++
		p.TotalLikes += r.LikeCount
	}

	out := make([]ParticipantSummary, 0, len(order))
	for _, h := range order {
		out = append(out, *byHandle[h])
	}
	slices.SortFunc(out, func(a, b ParticipantSummary) int {
		if c := cmp.Compare(b.ReplyCount, a.ReplyCount); c != 0 {
			return c
		}
		if c := cmp.Compare(b.TotalLikes, a.TotalLikes); c != 0 {
			return c
		}
		return cmp.Compare(a.Handle, b.Handle)
	})
	return out
}
