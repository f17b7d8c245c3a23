package store

import (
	"context"
	"sync"

	"github.com/TOOL2U/Application---Property-Management--sub002/internal/utils"
)

const watchBuffer = 64

/*
watcherSet fans change events out to in-process watchers. broadcast never
blocks the writer: a watcher whose buffer is full is dropped and its channel
closed, and the caller resubscribes.
*/
type watcherSet struct {
	mu   sync.Mutex
	subs map[int]chan ChangeEvent
	next int
}

func newWatcherSet() *watcherSet {
	return &watcherSet{subs: make(map[int]chan ChangeEvent)}
}

// add registers a watcher that is removed and closed once ctx ends.
func (w *watcherSet) add(ctx context.Context) <-chan ChangeEvent {
	w.mu.Lock()
	id := w.next
	w.next++
	ch := make(chan ChangeEvent, watchBuffer)
	w.subs[id] = ch
	w.mu.Unlock()

	go func() {
		<-ctx.Done()
		w.remove(id)
	}()
	return ch
}

func (w *watcherSet) remove(id int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if ch, ok := w.subs[id]; ok {
		delete(w.subs, id)
		close(ch)
	}
}

func (w *watcherSet) broadcast(ev ChangeEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for id, ch := range w.subs {
		select {
		case ch <- ev:
		default:
			utils.Logger.WithField("watcher", id).Warn("change feed watcher too slow, dropping it")
			delete(w.subs, id)
			close(ch)
		}
	}
}

// closeAll ends every current watcher, e.g. when the feed itself is lost.
func (w *watcherSet) closeAll() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for id, ch := range w.subs {
		delete(w.subs, id)
		close(ch)
	}
}

func (w *watcherSet) len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.subs)
}
