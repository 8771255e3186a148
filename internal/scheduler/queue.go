package scheduler

import "sync"

// Priority governs which end of a file queue's deque an enqueue lands on.
type Priority int

const (
	Low Priority = iota
	High
)

// fileTask is one unit of per-file work: a media path plus the album
// directory it belongs to (needed for active-root gating and sidecar
// writes).
type fileTask struct {
	albumDir string
	path     string
}

func (t fileTask) key() string { return t.albumDir + "\x00" + t.path }

// fileQueue is a priority-aware deque with dedup across concurrent
// enqueues: High pushes to the front, Low pushes to the back, and a task
// already queued or in flight is never queued twice.
type fileQueue struct {
	mu         sync.Mutex
	cond       *sync.Cond
	items      []fileTask
	queued     map[string]bool
	inProgress map[string]bool
	closed     bool
}

func newFileQueue() *fileQueue {
	q := &fileQueue{
		queued:     map[string]bool{},
		inProgress: map[string]bool{},
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// enqueue adds t unless it is already queued or in progress. Returns true
// if it was actually added.
func (q *fileQueue) enqueue(t fileTask, pr Priority) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	k := t.key()
	if q.queued[k] || q.inProgress[k] {
		return false
	}
	q.queued[k] = true

	if pr == High {
		q.items = append([]fileTask{t}, q.items...)
	} else {
		q.items = append(q.items, t)
	}
	q.cond.Signal()
	return true
}

// dequeue blocks until an item is available. A reset does not end the
// wait: woken waiters find the queue still empty and wait again. It
// returns false only for a closed queue.
func (q *fileQueue) dequeue() (fileTask, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return fileTask{}, false
	}
	t := q.items[0]
	q.items = q.items[1:]
	delete(q.queued, t.key())
	q.inProgress[t.key()] = true
	return t, true
}

// markDone removes t from the in-progress set, letting it be re-queued.
func (q *fileQueue) markDone(t fileTask) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inProgress, t.key())
}

// isOutstanding reports whether t is queued or currently being worked.
func (q *fileQueue) isOutstanding(t fileTask) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	k := t.key()
	return q.queued[k] || q.inProgress[k]
}

// reset drops every queued item (in-progress work is left to finish but
// its result will be discarded by the active-root check) and wakes every
// waiter; with no items left they go back to waiting.
func (q *fileQueue) reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
	q.queued = map[string]bool{}
	q.cond.Broadcast()
}

// size reports the number of queued-but-not-started items.
func (q *fileQueue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
