package dispatch

import "container/list"

// QueueManager is the per-peer FIFO of frames pending a usable connection
// (§3, §4.3). Enqueue is the only operation that adds frames; DrainInto is
// the only operation that removes them non-destructively. FIFO order per
// peer is preserved across every operation.
//
// QueueManager is not safe for concurrent use; like Registry, it is owned
// exclusively by the Dispatcher Core's single-threaded receive loop.
type QueueManager struct {
	queues map[SocketAddr]*list.List
}

// NewQueueManager builds an empty Queue Manager.
func NewQueueManager() *QueueManager {
	return &QueueManager{queues: make(map[SocketAddr]*list.List)}
}

// Enqueue appends frame to peer's FIFO.
func (q *QueueManager) Enqueue(peer SocketAddr, frame Frame) {
	queue, ok := q.queues[peer]
	if !ok {
		queue = list.New()
		q.queues[peer] = queue
	}
	queue.PushBack(frame)
}

// EnqueueFront re-queues frame at the head of peer's FIFO. Used when a
// frame that was handed to try_send must be recovered because the channel
// reported Disconnected (§4.2 transition table), so it is retried ahead
// of everything already waiting.
func (q *QueueManager) EnqueueFront(peer SocketAddr, frame Frame) {
	queue, ok := q.queues[peer]
	if !ok {
		queue = list.New()
		q.queues[peer] = queue
	}
	queue.PushFront(frame)
}

// Len returns the current depth of peer's queue, for observability
// counters (queue_depth).
func (q *QueueManager) Len(peer SocketAddr) int {
	queue, ok := q.queues[peer]
	if !ok {
		return 0
	}
	return queue.Len()
}

// DrainInto repeatedly pops frames from peer's FIFO and hands them to
// sink.TrySend, stopping on the first non-Ok result so order and the
// remainder are preserved: a Full result leaves the popped frame
// re-queued at the head; a Disconnected result does the same, since the
// caller (Dispatcher Core) is expected to requeue via the connection
// transition rather than have DrainInto silently retry. It returns the
// number of frames successfully handed off.
func (q *QueueManager) DrainInto(peer SocketAddr, sink SendChannel) int {
	queue, ok := q.queues[peer]
	if !ok {
		return 0
	}

	count := 0
	for {
		front := queue.Front()
		if front == nil {
			break
		}
		frame := front.Value.(Frame)

		switch sink.TrySend(frame) {
		case TrySendOk:
			queue.Remove(front)
			count++

		case TrySendFull, TrySendDisconnected:
			// Leave the frame at the head. Only the count is
			// returned; the caller is not told which signal
			// stopped the drain.
			return count
		}
	}

	return count
}

// DropPeer discards peer's entire queue, returning the number of frames
// it held (for observability / deadlettering).
func (q *QueueManager) DropPeer(peer SocketAddr) int {
	queue, ok := q.queues[peer]
	if !ok {
		return 0
	}

	n := queue.Len()
	delete(q.queues, peer)
	return n
}

// TrimOverflow enforces maxPending on peer's queue by deadlettering the
// oldest frames until the queue is at most maxPending long. It returns the
// dropped frames, oldest first, for the caller to deadletter and emit a
// QueueOverflow event for each.
func (q *QueueManager) TrimOverflow(peer SocketAddr, maxPending int) []Frame {
	queue, ok := q.queues[peer]
	if !ok || maxPending <= 0 {
		return nil
	}

	var dropped []Frame
	for queue.Len() > maxPending {
		front := queue.Front()
		if front == nil {
			break
		}
		dropped = append(dropped, front.Value.(Frame))
		queue.Remove(front)
	}

	return dropped
}
