package limiter

// multiQueue holds pending tasks bucketed by priority level. Lower levels
// drain first; within one level tasks keep arrival order.
type multiQueue struct {
	buckets [][]Task
	size    int
}

func newMultiQueue(levels int) *multiQueue {
	return &multiQueue{buckets: make([][]Task, levels)}
}

func (q *multiQueue) push(priority int, task Task) {
	q.buckets[priority] = append(q.buckets[priority], task)
	q.size++
}

// pop removes the oldest task of the most urgent non-empty level.
// Returns nil when the queue is empty.
func (q *multiQueue) pop() Task {
	for i, bucket := range q.buckets {
		if len(bucket) == 0 {
			continue
		}
		task := bucket[0]
		q.buckets[i] = bucket[1:]
		q.size--
		return task
	}

	return nil
}

func (q *multiQueue) len() int {
	return q.size
}
