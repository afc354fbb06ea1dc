package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/example/artist-portfolio/internal/platform/docstore"
	"github.com/example/artist-portfolio/internal/platform/docstore/memstore"
)

func ptr(s string) *string { return &s }

func newStore(t *testing.T) *DocCommentStore {
	t.Helper()
	s := NewDocCommentStore(memstore.New())
	require.NoError(t, s.EnsureIndexes(context.Background()))
	return s
}

func comment(id, target string, parent *string) Comment {
	return Comment{
		ID:         id,
		TargetID:   target,
		TargetType: TargetArtwork,
		ParentID:   parent,
		AuthorName: "Anonymous",
		Content:    "hello " + id,
		CreatedAt:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestCreateGetPreservesFields(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	in := comment("c1", "a1", ptr("p1"))
	_, err := s.Create(ctx, in)
	require.NoError(t, err)

	got, err := s.Get(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, "a1", got.TargetID)
	require.Equal(t, TargetArtwork, got.TargetType)
	require.Equal(t, "p1", *got.ParentID)
	require.Equal(t, "hello c1", got.Content)
	require.Zero(t, got.Likes)
	require.Equal(t, []string{}, got.LikedBy)
	require.True(t, got.CreatedAt.Equal(in.CreatedAt))
	require.Nil(t, got.UpdatedAt)

	_, err = s.Get(ctx, "missing")
	require.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestListThreadIsolatesTargets(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	for _, c := range []Comment{
		comment("a", "t1", nil),
		comment("b", "t2", nil),
		{ID: "c", TargetID: "t1", TargetType: TargetPost, Content: "x"},
	} {
		_, err := s.Create(ctx, c)
		require.NoError(t, err)
	}

	got, err := s.ListThread(ctx, Target{Type: TargetArtwork, ID: "t1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "a", got[0].ID)

	all, err := s.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestToggleLikeKeepsCountInSync(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	_, err := s.Create(ctx, comment("c1", "t1", nil))
	require.NoError(t, err)

	at := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	c, added, err := s.ToggleLike(ctx, "c1", "s1", at)
	require.NoError(t, err)
	require.True(t, added)
	require.Equal(t, 1, c.Likes)
	require.Equal(t, []string{"s1"}, c.LikedBy)
	require.NotNil(t, c.UpdatedAt)
	require.True(t, c.UpdatedAt.Equal(at))

	c, added, err = s.ToggleLike(ctx, "c1", "s1", at)
	require.NoError(t, err)
	require.False(t, added)
	require.Zero(t, c.Likes)
	require.Empty(t, c.LikedBy)
}

func TestChildrenAndDeleteIDs(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	for _, c := range []Comment{
		comment("root", "t1", nil),
		comment("r1", "t1", ptr("root")),
		comment("r2", "t1", ptr("root")),
		comment("r1a", "t1", ptr("r1")),
	} {
		_, err := s.Create(ctx, c)
		require.NoError(t, err)
	}

	kids, err := s.Children(ctx, []string{"root"})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"r1", "r2"}, ids(kids))

	kids, err = s.Children(ctx, []string{"r1", "r2"})
	require.NoError(t, err)
	require.Equal(t, []string{"r1a"}, ids(kids))

	kids, err = s.Children(ctx, nil)
	require.NoError(t, err)
	require.Empty(t, kids)

	n, err := s.DeleteIDs(ctx, []string{"r1a", "r2", "nope"})
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestBuryIsIdempotentAndKeptApartFromComments(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	at := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	buried, err := s.Buried(ctx, "c1")
	require.NoError(t, err)
	require.False(t, buried)

	require.NoError(t, s.Bury(ctx, []string{"c1", "c2"}, at))
	require.NoError(t, s.Bury(ctx, []string{"c1"}, at))

	for _, id := range []string{"c1", "c2"} {
		buried, err := s.Buried(ctx, id)
		require.NoError(t, err)
		require.True(t, buried)
	}
	all, err := s.ListAll(ctx)
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestWatchThreadDeliversAndCloses(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	target := Target{Type: TargetArtwork, ID: "t1"}

	w, err := s.WatchThread(ctx, target)
	require.NoError(t, err)

	require.Empty(t, <-w.C)

	_, err = s.Create(ctx, comment("c1", "t1", nil))
	require.NoError(t, err)

	select {
	case got := <-w.C:
		require.Equal(t, []string{"c1"}, ids(got))
	case <-time.After(2 * time.Second):
		t.Fatal("no delivery after create")
	}

	w.Close()
	_, open := <-w.C
	require.False(t, open)
	require.NoError(t, w.Err())
}

func TestWatchEndsWithContext(t *testing.T) {
	s := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())

	w, err := s.WatchAll(ctx)
	require.NoError(t, err)
	<-w.C

	cancel()
	for range w.C {
	}
	require.NoError(t, w.Err())
}

func ids(cs []Comment) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.ID)
	}
	return out
}
