package xmplayer

import "sync"

// command is a deferred mutation posted from outside the tick handler.
// The Player drains its queue at the top of every tick (§5 Option A: "the UI
// thread posts commands into a single-consumer queue which the tick handler
// drains at the top of each tick").
type command func(p *Player)

// commandQueue is a simple FIFO guarded by a mutex. Posting never blocks on
// the tick handler; draining only ever happens from the tick goroutine.
type commandQueue struct {
	mu  sync.Mutex
	cmd []command
}

func (q *commandQueue) post(c command) {
	q.mu.Lock()
	q.cmd = append(q.cmd, c)
	q.mu.Unlock()
}

// drain hands every queued command to fn, in FIFO order, then empties the
// queue. Commands posted while drain is running are left for the next call.
func (q *commandQueue) drain(fn func(command)) {
	q.mu.Lock()
	pending := q.cmd
	q.cmd = nil
	q.mu.Unlock()

	for _, c := range pending {
		fn(c)
	}
}
