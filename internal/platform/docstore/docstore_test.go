package docstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestUnavailableWraps(t *testing.T) {
	base := errors.New("dial tcp: refused")
	err := Unavailable(base)
	require.ErrorIs(t, err, ErrUnavailable)
	require.ErrorIs(t, err, base)
	require.Same(t, err, Unavailable(err))
	require.NoError(t, Unavailable(nil))
}

func TestDocumentAccessorsNormalize(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	d := Document{ID: "x", Fields: map[string]any{
		"s":     "v",
		"i32":   int32(4),
		"f":     float64(7),
		"arr":   []any{"a", "b"},
		"bson":  primitive.A{"c"},
		"dt":    primitive.NewDateTimeFromTime(now),
		"text":  now.Format(time.RFC3339Nano),
		"null":  nil,
		"other": 5,
	}}

	require.Equal(t, "v", d.String("s"))
	require.Empty(t, d.String("other"))
	require.EqualValues(t, 4, d.Int("i32"))
	require.EqualValues(t, 7, d.Int("f"))
	require.Equal(t, []string{"a", "b"}, d.Strings("arr"))
	require.Equal(t, []string{"c"}, d.Strings("bson"))
	require.Nil(t, d.OptString("null"))
	require.Equal(t, "v", *d.OptString("s"))

	for _, k := range []string{"dt", "text"} {
		got, ok := d.Time(k)
		require.True(t, ok, k)
		require.True(t, got.Equal(now), k)
	}
	_, ok := d.Time("s")
	require.False(t, ok)
}

func TestFilterMatch(t *testing.T) {
	d := Document{ID: "c1", Fields: map[string]any{"thread": "t1", "parent": nil, "n": 3}}

	require.True(t, Filter(nil).Match(d))
	require.True(t, Filter{Eq("thread", "t1")}.Match(d))
	require.False(t, Filter{Eq("thread", "t2")}.Match(d))
	require.True(t, Filter{Missing("parent")}.Match(d))
	require.True(t, Filter{Missing("absent")}.Match(d))
	require.False(t, Filter{Missing("thread")}.Match(d))
	require.True(t, Filter{In("thread", "t0", "t1")}.Match(d))
	require.False(t, Filter{In("thread")}.Match(d))
	require.False(t, Filter{Eq("n", "3")}.Match(d))
	require.True(t, Filter{Eq(IDField, "c1")}.Match(d))
}

func TestSubscriptionCoalescesAndReleases(t *testing.T) {
	changes := make(chan struct{}, 1)
	loads := 0
	released := make(chan struct{})
	sub := NewSubscription(context.Background(), Feed{
		Load: func(context.Context) ([]Document, error) {
			loads++
			return []Document{{ID: "n"}}, nil
		},
		Changes: changes,
		Release: func() { close(released) },
	})

	// The feed is blocked on the first send, so these collapse into one reload.
	Signal(changes)
	Signal(changes)
	Signal(changes)
	<-sub.C
	<-sub.C

	sub.Close()
	<-released
	_, open := <-sub.C
	require.False(t, open)
	require.NoError(t, sub.Err())
	require.Equal(t, 2, loads)
}

func TestSubscriptionLoadError(t *testing.T) {
	boom := Unavailable(errors.New("boom"))
	sub := NewSubscription(context.Background(), Feed{
		Load:    func(context.Context) ([]Document, error) { return nil, boom },
		Changes: make(chan struct{}),
	})
	<-sub.Done()
	_, open := <-sub.C
	require.False(t, open)
	require.ErrorIs(t, sub.Err(), ErrUnavailable)
}

func TestSubscriptionFeedClosed(t *testing.T) {
	changes := make(chan struct{})
	sub := NewSubscription(context.Background(), Feed{
		Load:    func(context.Context) ([]Document, error) { return nil, nil },
		Changes: changes,
	})
	<-sub.C
	close(changes)
	<-sub.Done()
	require.ErrorIs(t, sub.Err(), ErrUnavailable)
}
