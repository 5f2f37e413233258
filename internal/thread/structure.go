package thread

import (
	"encoding/json"

	"github.com/pauljones0/x-parser/internal/models"
)

// ReplyNode is a reply placed in the tree. Root-level replies have depth 1.
type ReplyNode struct {
	models.ReplyRecord
	Depth    int          `json:"depth"`
	Children []*ReplyNode `json:"children,omitempty"`
}

// ParticipantSummary aggregates replies and likes per author handle.
type ParticipantSummary struct {
	Handle      string `json:"handle"`
	DisplayName string `json:"displayName,omitempty"`
	ReplyCount  int    `json:"replyCount"`
	TotalLikes  int    `json:"totalLikes"`
}

// ThreadStructure is the result of Build. ReplyTree and Replies hold the
// same set of nodes; Replies lists them in pre-order.
type ThreadStructure struct {
	RootID       string
	ReplyTree    []*ReplyNode
	Replies      []*ReplyNode
	TotalReplies int
	MaxDepth     int
	Participants []ParticipantSummary
}

// Walk visits every node in pre-order: a node, then its children in order.
func (ts *ThreadStructure) Walk(fn func(n *ReplyNode)) {
	stack := make([]*ReplyNode, 0, len(ts.ReplyTree))
	for i := len(ts.ReplyTree) - 1; i >= 0; i-- {
		stack = append(stack, ts.ReplyTree[i])
	}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		fn(n)
		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, n.Children[i])
		}
	}
}

// flatReply is a node without its children, used for the flat replies list
// in the serialized snapshot.
type flatReply struct {
	models.ReplyRecord
	Depth int `json:"depth"`
}

type threadJSON struct {
	RootID       string               `json:"rootId"`
	ReplyTree    []*ReplyNode         `json:"replyTree"`
	Replies      []flatReply          `json:"replies"`
	TotalReplies int                  `json:"totalReplies"`
	MaxDepth     int                  `json:"maxDepth"`
	Participants []ParticipantSummary `json:"participants"`
}

// MarshalJSON writes the tree once and the flat list without nested
// children, so the snapshot does not repeat subtrees.
func (ts *ThreadStructure) MarshalJSON() ([]byte, error) {
	out := threadJSON{
		RootID:       ts.RootID,
		ReplyTree:    ts.ReplyTree,
		Replies:      make([]flatReply, 0, len(ts.Replies)),
		TotalReplies: ts.TotalReplies,
		MaxDepth:     ts.MaxDepth,
		Participants: ts.Participants,
	}
	if out.ReplyTree == nil {
		out.ReplyTree = []*ReplyNode{}
	}
	if out.Participants == nil {
		out.Participants = []ParticipantSummary{}
	}
	for _, n := range ts.Replies {
		out.Replies = append(out.Replies, flatReply{ReplyRecord: n.ReplyRecord, Depth: n.Depth})
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores a snapshot. The flat list is rebuilt from the tree
// so both views share the same nodes again.
func (ts *ThreadStructure) UnmarshalJSON(data []byte) error {
	var in threadJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*ts = ThreadStructure{
		RootID:       in.RootID,
		ReplyTree:    in.ReplyTree,
		Participants: in.Participants,
	}
	ts.Replies = []*ReplyNode{}
	ts.Walk(func(n *ReplyNode) {
		ts.Replies = append(ts.Replies, n)
		ts.MaxDepth = max(ts.MaxDepth, n.Depth)
	})
	ts.TotalReplies = len(ts.Replies)
	return nil
}
