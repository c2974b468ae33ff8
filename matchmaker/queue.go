package matchmaker

// Queue is the FIFO of connections waiting for a session.
// It is not safe for concurrent use; the Manager serializes access.
type Queue struct {
	entries []*Connection
	index   map[*Connection]struct{}
}

func NewQueue() *Queue {
	return &Queue{index: make(map[*Connection]struct{})}
}

// Push appends c to the tail. It returns false if c is already queued.
func (q *Queue) Push(c *Connection) bool {
	if _, ok := q.index[c]; ok {
		return false
	}
	q.entries = append(q.entries, c)
	q.index[c] = struct{}{}
	return true
}

// PopFront removes and returns the head of the queue.
func (q *Queue) PopFront() (*Connection, bool) {
	if len(q.entries) == 0 {
		return nil, false
	}
	c := q.entries[0]
	q.entries[0] = nil
	q.entries = q.entries[1:]
	delete(q.index, c)
	return c, true
}

// Remove deletes c if present, keeping the order of the remaining entries.
func (q *Queue) Remove(c *Connection) bool {
	if _, ok := q.index[c]; !ok {
		return false
	}
	for i, e := range q.entries {
		if e == c {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			break
		}
	}
	delete(q.index, c)
	return true
}

// Position returns the 1-based position of c.
func (q *Queue) Position(c *Connection) (int, bool) {
	if _, ok := q.index[c]; !ok {
		return 0, false
	}
	for i, e := range q.entries {
		if e == c {
			return i + 1, true
		}
	}
	return 0, false
}

func (q *Queue) Len() int {
	return len(q.entries)
}
