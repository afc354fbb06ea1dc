package engagement

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/artist-portfolio/services/comments/internal/publisher"
	"github.com/example/artist-portfolio/services/comments/internal/store"
)

func TestDeleteCascadesToWholeSubtree(t *testing.T) {
	f := newFixture(t)
	root := f.submit(t, artwork, nil, "root")
	r1 := f.submit(t, artwork, &root, "r1")
	r1a := f.submit(t, artwork, &r1, "r1a")
	f.submit(t, artwork, &r1a, "r1a-deep")
	f.submit(t, artwork, &root, "r2")
	keep := f.submit(t, artwork, nil, "other root")
	keepReply := f.submit(t, artwork, &keep, "other reply")
	elsewhere := f.submit(t, post, nil, "other thread")

	require.NoError(t, f.svc.Delete(context.Background(), artwork.ID, root.ID))

	left := f.all(t)
	require.ElementsMatch(t, []string{keep.ID, keepReply.ID, elsewhere.ID}, commentIDs(left))
	requireNoOrphans(t, left)

	evt := f.pub.last()
	require.Equal(t, publisher.SubjectDeleted, evt.Subject)
	require.Equal(t, root.ID, evt.CommentID)
	require.Len(t, evt.DeletedIDs, 5)
}

func TestDeleteReplyKeepsParent(t *testing.T) {
	f := newFixture(t)
	root := f.submit(t, artwork, nil, "root")
	reply := f.submit(t, artwork, &root, "reply")

	require.NoError(t, f.svc.Delete(context.Background(), artwork.ID, reply.ID))
	require.Equal(t, []string{root.ID}, commentIDs(f.all(t)))
}

func TestDeleteRequiresMatchingTarget(t *testing.T) {
	f := newFixture(t)
	c := f.submit(t, artwork, nil, "c")
	ctx := context.Background()

	require.ErrorIs(t, f.svc.Delete(ctx, "art-2", c.ID), ErrNotFound)
	require.ErrorIs(t, f.svc.Delete(ctx, artwork.ID, "missing"), ErrNotFound)
	require.ErrorIs(t, f.svc.Delete(ctx, "", c.ID), ErrValidation)
	require.Len(t, f.all(t), 1)
}

func TestDeleteNeverExposesOrphans(t *testing.T) {
	f, fs := newFaultyFixture(t)
	root := f.submit(t, artwork, nil, "root")
	a := f.submit(t, artwork, &root, "a")
	b := f.submit(t, artwork, &a, "b")
	f.submit(t, artwork, &b, "c")
	f.submit(t, artwork, &root, "d")

	calls := 0
	fs.afterDeleteID = func([]string) {
		calls++
		requireNoOrphans(t, f.all(t))
	}

	require.NoError(t, f.svc.Delete(context.Background(), artwork.ID, root.ID))
	require.Equal(t, 4, calls, "one delete per tree level")
	require.Empty(t, f.all(t))
}

func TestDeleteSweepsRepliesWrittenDuringCascade(t *testing.T) {
	f, fs := newFaultyFixture(t)
	root := f.submit(t, artwork, nil, "root")
	child := f.submit(t, artwork, &root, "child")

	// A reply to child lands right after the walk has read child's
	// (empty) reply list, so only the final sweep can find it.
	fs.childrenHook = func(call int) {
		if call != 2 {
			return
		}
		late := store.Comment{
			ID:         "late",
			TargetID:   artwork.ID,
			TargetType: artwork.Type,
			ParentID:   &child.ID,
			Content:    "late",
		}
		_, err := f.store.Create(context.Background(), late)
		require.NoError(t, err)
	}

	require.NoError(t, f.svc.Delete(context.Background(), artwork.ID, root.ID))
	require.Empty(t, f.all(t))
	require.Contains(t, f.pub.last().DeletedIDs, "late")
}

func TestToggleAfterDeleteIsNotFound(t *testing.T) {
	f := newFixture(t)
	root := f.submit(t, artwork, nil, "root")
	reply := f.submit(t, artwork, &root, "reply")
	ctx := context.Background()

	_, err := f.svc.ToggleLike(ctx, LikeInput{CommentID: reply.ID, SessionID: "s1"})
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, artwork.ID, root.ID))

	_, err = f.svc.ToggleLike(ctx, LikeInput{CommentID: reply.ID, SessionID: "s1"})
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, f.svc.Delete(ctx, artwork.ID, root.ID), ErrNotFound)
}

func TestDeleteRandomTrees(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for round := range 20 {
		f := newFixture(t)
		ctx := context.Background()

		var nodes []store.Comment
		for i := range 30 {
			target := artwork
			if i%5 == 4 {
				target = post
			}
			var parent *store.Comment
			if len(nodes) > 0 && rng.IntN(3) > 0 {
				candidate := nodes[rng.IntN(len(nodes))]
				if candidate.Target() == target {
					parent = &candidate
				}
			}
			nodes = append(nodes, f.submit(t, target, parent, "n"))
		}

		victim := nodes[rng.IntN(len(nodes))]
		doomed := subtree(nodes, victim.ID)

		require.NoError(t, f.svc.Delete(ctx, victim.TargetID, victim.ID), "round %d", round)

		left := f.all(t)
		requireNoOrphans(t, left)
		require.Len(t, left, len(nodes)-len(doomed), "round %d", round)
		for _, c := range left {
			_, gone := doomed[c.ID]
			require.False(t, gone, "round %d: %s survived", round, c.ID)
		}
	}
}

func subtree(all []store.Comment, rootID string) map[string]struct{} {
	out := map[string]struct{}{rootID: {}}
	for changed := true; changed; {
		changed = false
		for _, c := range all {
			if c.ParentID == nil {
				continue
			}
			if _, in := out[*c.ParentID]; in {
				if _, already := out[c.ID]; !already {
					out[c.ID] = struct{}{}
					changed = true
				}
			}
		}
	}
	return out
}
