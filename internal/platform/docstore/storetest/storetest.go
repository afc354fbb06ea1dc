// Package storetest is the behavioural contract every docstore backend must
// satisfy. Backend packages call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/example/artist-portfolio/internal/platform/docstore"
)

// Run exercises s. Each subtest works in its own collection so a shared
// backend can be reused across subtests.
func Run(t *testing.T, s docstore.Store) {
	t.Helper()
	tests := []struct {
		name string
		fn   func(t *testing.T, s docstore.Store, coll string)
	}{
		{"CreateGet", testCreateGet},
		{"CreateConflict", testCreateConflict},
		{"Update", testUpdate},
		{"Delete", testDelete},
		{"DeleteMany", testDeleteMany},
		{"QueryFilters", testQueryFilters},
		{"ToggleMember", testToggleMember},
		{"ToggleMemberConcurrent", testToggleMemberConcurrent},
		{"SubscribeDelivers", testSubscribeDelivers},
		{"SubscribeClose", testSubscribeClose},
		{"SubscribeContextCancel", testSubscribeContextCancel},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, s, "t_"+uuid.NewString()[:8])
		})
	}
}

func ctx(t *testing.T) context.Context {
	c, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return c
}

func testCreateGet(t *testing.T, s docstore.Store, coll string) {
	c := ctx(t)

	id, err := s.Create(c, coll, docstore.Document{Fields: map[string]any{"name": "a", "n": 3}})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := s.Get(c, coll, id)
	require.NoError(t, err)
	require.Equal(t, id, got.ID)
	require.Equal(t, "a", got.String("name"))
	require.EqualValues(t, 3, got.Int("n"))

	_, err = s.Get(c, coll, "missing")
	require.ErrorIs(t, err, docstore.ErrNotFound)
}

func testCreateConflict(t *testing.T, s docstore.Store, coll string) {
	c := ctx(t)

	id, err := s.Create(c, coll, docstore.Document{ID: "fixed", Fields: map[string]any{"v": "1"}})
	require.NoError(t, err)
	require.Equal(t, "fixed", id)

	_, err = s.Create(c, coll, docstore.Document{ID: "fixed", Fields: map[string]any{"v": "2"}})
	require.ErrorIs(t, err, docstore.ErrConflict)

	got, err := s.Get(c, coll, "fixed")
	require.NoError(t, err)
	require.Equal(t, "1", got.String("v"))
}

func testUpdate(t *testing.T, s docstore.Store, coll string) {
	c := ctx(t)

	id, err := s.Create(c, coll, docstore.Document{Fields: map[string]any{"a": "1", "b": "2"}})
	require.NoError(t, err)

	require.NoError(t, s.Update(c, coll, id, map[string]any{"b": "3", "c": "4"}))
	got, err := s.Get(c, coll, id)
	require.NoError(t, err)
	require.Equal(t, "1", got.String("a"))
	require.Equal(t, "3", got.String("b"))
	require.Equal(t, "4", got.String("c"))

	err = s.Update(c, coll, "missing", map[string]any{"a": "x"})
	require.ErrorIs(t, err, docstore.ErrNotFound)
}

func testDelete(t *testing.T, s docstore.Store, coll string) {
	c := ctx(t)

	id, err := s.Create(c, coll, docstore.Document{Fields: map[string]any{"a": "1"}})
	require.NoError(t, err)
	require.NoError(t, s.Delete(c, coll, id))

	_, err = s.Get(c, coll, id)
	require.ErrorIs(t, err, docstore.ErrNotFound)
	require.ErrorIs(t, s.Delete(c, coll, id), docstore.ErrNotFound)
}

func testDeleteMany(t *testing.T, s docstore.Store, coll string) {
	c := ctx(t)

	var ids []string
	for i := range 4 {
		id, err := s.Create(c, coll, docstore.Document{Fields: map[string]any{"i": fmt.Sprint(i)}})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	n, err := s.DeleteMany(c, coll, []string{ids[0], ids[2], "missing"})
	require.NoError(t, err)
	require.Equal(t, 2, n)

	rest, err := s.Query(c, coll, nil)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{ids[1], ids[3]}, docIDs(rest))

	n, err = s.DeleteMany(c, coll, nil)
	require.NoError(t, err)
	require.Zero(t, n)
}

func testQueryFilters(t *testing.T, s docstore.Store, coll string) {
	c := ctx(t)

	mk := func(id string, fields map[string]any) {
		_, err := s.Create(c, coll, docstore.Document{ID: id, Fields: fields})
		require.NoError(t, err)
	}
	mk("r1", map[string]any{"thread": "t1", "parent": nil})
	mk("r2", map[string]any{"thread": "t1", "parent": "r1"})
	mk("r3", map[string]any{"thread": "t2"})
	mk("r4", map[string]any{"thread": "t1", "parent": "r2"})

	cases := []struct {
		name   string
		filter docstore.Filter
		want   []string
	}{
		{"all", nil, []string{"r1", "r2", "r3", "r4"}},
		{"eq", docstore.Filter{docstore.Eq("thread", "t1")}, []string{"r1", "r2", "r4"}},
		{"in", docstore.Filter{docstore.In("parent", "r1", "r2")}, []string{"r2", "r4"}},
		{"missing", docstore.Filter{docstore.Missing("parent")}, []string{"r1", "r3"}},
		{"and", docstore.Filter{docstore.Eq("thread", "t1"), docstore.Missing("parent")}, []string{"r1"}},
		{"id", docstore.Filter{docstore.Eq(docstore.IDField, "r3")}, []string{"r3"}},
		{"none", docstore.Filter{docstore.Eq("thread", "nope")}, []string{}},
		{"empty in", docstore.Filter{docstore.In("parent")}, []string{}},
	}
	for _, tc := range cases {
		got, err := s.Query(c, coll, tc.filter)
		require.NoError(t, err, tc.name)
		require.ElementsMatch(t, tc.want, docIDs(got), tc.name)
	}
}

func testToggleMember(t *testing.T, s docstore.Store, coll string) {
	c := ctx(t)

	id, err := s.Create(c, coll, docstore.Document{Fields: map[string]any{"likes": 0, "likedBy": []string{}}})
	require.NoError(t, err)

	tog := func(member string) (docstore.Document, bool) {
		doc, added, err := s.ToggleMember(c, coll, id, docstore.Toggle{
			SetField: "likedBy", CountField: "likes", Member: member,
			Set: map[string]any{"touched": member},
		})
		require.NoError(t, err)
		return doc, added
	}

	doc, added := tog("s1")
	require.True(t, added)
	require.EqualValues(t, 1, doc.Int("likes"))
	require.Equal(t, []string{"s1"}, doc.Strings("likedBy"))
	require.Equal(t, "s1", doc.String("touched"))

	doc, added = tog("s2")
	require.True(t, added)
	require.EqualValues(t, 2, doc.Int("likes"))

	doc, added = tog("s1")
	require.False(t, added)
	require.EqualValues(t, 1, doc.Int("likes"))
	require.Equal(t, []string{"s2"}, doc.Strings("likedBy"))

	stored, err := s.Get(c, coll, id)
	require.NoError(t, err)
	require.EqualValues(t, len(stored.Strings("likedBy")), stored.Int("likes"))

	_, _, err = s.ToggleMember(c, coll, "missing", docstore.Toggle{SetField: "likedBy", CountField: "likes", Member: "x"})
	require.ErrorIs(t, err, docstore.ErrNotFound)
}

func testToggleMemberConcurrent(t *testing.T, s docstore.Store, coll string) {
	c := ctx(t)

	id, err := s.Create(c, coll, docstore.Document{Fields: map[string]any{"likes": 0, "likedBy": []string{}}})
	require.NoError(t, err)

	const sessions = 16
	var wg sync.WaitGroup
	errs := make(chan error, sessions)
	for i := range sessions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			member := fmt.Sprintf("s%02d", i)
			for {
				_, _, err := s.ToggleMember(c, coll, id, docstore.Toggle{SetField: "likedBy", CountField: "likes", Member: member})
				if errors.Is(err, docstore.ErrUnavailable) {
					continue
				}
				errs <- err
				return
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	doc, err := s.Get(c, coll, id)
	require.NoError(t, err)
	require.EqualValues(t, sessions, doc.Int("likes"))
	require.Len(t, doc.Strings("likedBy"), sessions)
}

func testSubscribeDelivers(t *testing.T, s docstore.Store, coll string) {
	c := ctx(t)

	_, err := s.Create(c, coll, docstore.Document{ID: "a", Fields: map[string]any{"thread": "t1"}})
	require.NoError(t, err)

	sub, err := s.Subscribe(c, coll, docstore.Filter{docstore.Eq("thread", "t1")})
	require.NoError(t, err)
	defer sub.Close()

	WaitFor(t, sub, func(docs []docstore.Document) bool {
		return slices.Equal(docIDs(docs), []string{"a"})
	})

	_, err = s.Create(c, coll, docstore.Document{ID: "b", Fields: map[string]any{"thread": "t1"}})
	require.NoError(t, err)
	WaitFor(t, sub, func(docs []docstore.Document) bool { return len(docs) == 2 })

	require.NoError(t, s.Update(c, coll, "a", map[string]any{"thread": "t2"}))
	WaitFor(t, sub, func(docs []docstore.Document) bool {
		return slices.Equal(docIDs(docs), []string{"b"})
	})

	require.NoError(t, s.Delete(c, coll, "b"))
	WaitFor(t, sub, func(docs []docstore.Document) bool { return len(docs) == 0 })
}

func testSubscribeClose(t *testing.T, s docstore.Store, coll string) {
	c := ctx(t)

	sub, err := s.Subscribe(c, coll, nil)
	require.NoError(t, err)
	WaitFor(t, sub, func([]docstore.Document) bool { return true })

	sub.Close()
	requireClosed(t, sub)
	require.NoError(t, sub.Err())

	_, err = s.Create(c, coll, docstore.Document{Fields: map[string]any{"x": "1"}})
	require.NoError(t, err)
}

func testSubscribeContextCancel(t *testing.T, s docstore.Store, coll string) {
	c, cancel := context.WithCancel(ctx(t))

	sub, err := s.Subscribe(c, coll, nil)
	require.NoError(t, err)
	WaitFor(t, sub, func([]docstore.Document) bool { return true })

	cancel()
	requireClosed(t, sub)
	select {
	case <-sub.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("subscription not released after cancel")
	}
}

// WaitFor reads deliveries until ok accepts one or the wait times out.
func WaitFor(t *testing.T, sub *docstore.Subscription, ok func([]docstore.Document) bool) []docstore.Document {
	t.Helper()
	timeout := time.After(10 * time.Second)
	for {
		select {
		case docs, open := <-sub.C:
			if !open {
				t.Fatalf("subscription closed early: %v", sub.Err())
			}
			if ok(docs) {
				return docs
			}
		case <-timeout:
			t.Fatal("timed out waiting for delivery")
		}
	}
}

func requireClosed(t *testing.T, sub *docstore.Subscription) {
	t.Helper()
	timeout := time.After(10 * time.Second)
	for {
		select {
		case _, open := <-sub.C:
			if !open {
				return
			}
		case <-timeout:
			t.Fatal("subscription channel not closed")
		}
	}
}

func docIDs(docs []docstore.Document) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.ID)
	}
	slices.Sort(out)
	return out
}
