package store

import (
	"sync"

	"github.com/example/artist-portfolio/internal/platform/docstore"
)

// Watch is a live comment query. C receives the full result set on every
// change and is closed when the watch ends; Err tells why it ended.
type Watch struct {
	C <-chan []Comment

	sub  *docstore.Subscription
	stop chan struct{}
	once sync.Once
	done chan struct{}
}

func newWatch(sub *docstore.Subscription) *Watch {
	out := make(chan []Comment)
	w := &Watch{C: out, sub: sub, stop: make(chan struct{}), done: make(chan struct{})}
	go func() {
		defer close(w.done)
		defer close(out)
		for docs := range sub.C {
			select {
			case out <- fromDocuments(docs):
			case <-w.stop:
				return
			}
		}
	}()
	return w
}

// Close releases the underlying subscription and waits for C to close.
func (w *Watch) Close() {
	w.once.Do(func() { close(w.stop) })
	w.sub.Close()
	<-w.done
}

// Err is nil when the watch was cancelled by its owner.
func (w *Watch) Err() error {
	<-w.done
	return w.sub.Err()
}
