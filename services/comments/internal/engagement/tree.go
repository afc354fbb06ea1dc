package engagement

import (
	"slices"
	"strings"

	"github.com/example/artist-portfolio/services/comments/internal/store"
)

// Node is a comment with its replies, nested to any depth.
type Node struct {
	store.Comment
	Replies []Node `json:"replies"`
}

// BuildTree nests a flat thread. Top-level comments come newest first and
// replies oldest first. A comment whose parent is not in the list is shown
// at the top level.
func BuildTree(comments []store.Comment) []Node {
	present := make(map[string]struct{}, len(comments))
	for _, c := range comments {
		present[c.ID] = struct{}{}
	}

	byParent := make(map[string][]store.Comment)
	var roots []store.Comment
	for _, c := range comments {
		if c.ParentID != nil {
			if _, ok := present[*c.ParentID]; ok && *c.ParentID != c.ID {
				byParent[*c.ParentID] = append(byParent[*c.ParentID], c)
				continue
			}
		}
		roots = append(roots, c)
	}
	sortNewestFirst(roots)

	visited := make(map[string]struct{}, len(comments))
	var build func(c store.Comment) Node
	build = func(c store.Comment) Node {
		visited[c.ID] = struct{}{}
		replies := byParent[c.ID]
		sortOldestFirst(replies)
		n := Node{Comment: c, Replies: make([]Node, 0, len(replies))}
		for _, r := range replies {
			if _, seen := visited[r.ID]; seen {
				continue
			}
			n.Replies = append(n.Replies, build(r))
		}
		return n
	}

	out := make([]Node, 0, len(roots))
	for _, r := range roots {
		out = append(out, build(r))
	}
	return out
}

func sortOldestFirst(cs []store.Comment) {
	slices.SortStableFunc(cs, func(a, b store.Comment) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

func sortNewestFirst(cs []store.Comment) {
	slices.SortStableFunc(cs, func(a, b store.Comment) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
}
