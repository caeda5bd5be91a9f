package notehive

import "sync"

// feed is a fan-out publisher for one live read-model collection. Each
// subscriber holds a buffered channel carrying the latest full snapshot of
// the collection; a slow subscriber only ever misses intermediate snapshots,
// never the most recent one. A feed never completes on its own: the stream
// ends only when the subscriber cancels.
type feed[T any] struct {
	mu      sync.Mutex
	subs    map[int]chan []T
	next    int
	last    []T
	hasLast bool
}

func newFeed[T any]() *feed[T] {
	return &feed[T]{subs: make(map[int]chan []T)}
}

// subscribe registers a new subscriber. The current snapshot, if one has been
// published, is delivered immediately. The returned cancel func closes the
// channel and is idempotent.
func (f *feed[T]) subscribe() (<-chan []T, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.next
	f.next++

	ch := make(chan []T, 1)
	f.subs[id] = ch
	if f.hasLast {
		ch <- f.last
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			delete(f.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

// publish replaces the current snapshot and pushes it to every subscriber,
// displacing any undelivered older snapshot.
func (f *feed[T]) publish(items []T) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.last = items
	f.hasLast = true

	for _, ch := range f.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- items:
		default:
		}
	}
}

// collections groups the five live read-model feeds exposed by the client:
// one per note lifecycle bucket, one for reminder notes, one for labels.
type collections struct {
	active   *feed[Note]
	archived *feed[Note]
	bin      *feed[Note]
	reminder *feed[Note]
	labels   *feed[Label]
}

func newCollections() *collections {
	return &collections{
		active:   newFeed[Note](),
		archived: newFeed[Note](),
		bin:      newFeed[Note](),
		reminder: newFeed[Note](),
		labels:   newFeed[Label](),
	}
}
