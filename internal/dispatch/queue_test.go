package dispatch

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// recordingSink is a SendChannel whose behavior is scripted ahead of time:
// each TrySend call consumes the next scripted result, recording the
// frame it was offered for later comparison.
type recordingSink struct {
	script   []TrySendResult
	accepted []Frame
}

func (s *recordingSink) TrySend(frame Frame) TrySendResult {
	if len(s.script) == 0 {
		return TrySendFull
	}
	result := s.script[0]
	s.script = s.script[1:]
	if result == TrySendOk {
		s.accepted = append(s.accepted, frame)
	}
	return result
}

func dataFrame(seq uint64) Frame {
	return DataFrame{Seq: seq}
}

// TestQueueManager_FIFOOrder verifies that for any sequence of Enqueue
// calls to a single peer, DrainInto (scripted to always accept) hands
// frames to the sink in the exact order they were enqueued.
func TestQueueManager_FIFOOrder(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		q := NewQueueManager()
		peer := SocketAddr{IP: "10.0.0.1", Port: 9000}

		n := rapid.IntRange(0, 50).Draw(rt, "numFrames")
		for i := 0; i < n; i++ {
			q.Enqueue(peer, dataFrame(uint64(i)))
		}
		require.Equal(t, n, q.Len(peer))

		sink := &recordingSink{}
		for i := 0; i < n; i++ {
			sink.script = append(sink.script, TrySendOk)
		}

		drained := q.DrainInto(peer, sink)
		require.Equal(t, n, drained)
		require.Equal(t, 0, q.Len(peer))

		for i, frame := range sink.accepted {
			require.Equal(t, uint64(i), frame.(DataFrame).Seq)
		}
	})
}

// TestQueueManager_DrainStopsOnBackpressure verifies that DrainInto stops
// at the first Full or Disconnected result, leaving the offending frame
// (and everything after it) still queued in order.
func TestQueueManager_DrainStopsOnBackpressure(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		q := NewQueueManager()
		peer := SocketAddr{IP: "10.0.0.1", Port: 9001}

		n := rapid.IntRange(1, 30).Draw(rt, "numFrames")
		for i := 0; i < n; i++ {
			q.Enqueue(peer, dataFrame(uint64(i)))
		}

		stopAt := rapid.IntRange(0, n-1).Draw(rt, "stopAt")
		blockWithDisconnect := rapid.Bool().Draw(rt, "disconnect")

		sink := &recordingSink{}
		for i := 0; i < stopAt; i++ {
			sink.script = append(sink.script, TrySendOk)
		}
		if blockWithDisconnect {
			sink.script = append(sink.script, TrySendDisconnected)
		} else {
			sink.script = append(sink.script, TrySendFull)
		}

		drained := q.DrainInto(peer, sink)
		require.Equal(t, stopAt, drained)
		require.Equal(t, n-stopAt, q.Len(peer))

		// The first remaining frame is exactly the one the sink
		// refused, preserving order for the next drain attempt.
		remaining := q.DrainInto(peer, &recordingSink{
			script: append([]TrySendResult{TrySendOk},
				repeatOk(n-stopAt-1)...),
		})
		require.Equal(t, n-stopAt, remaining)
	})
}

func repeatOk(n int) []TrySendResult {
	if n <= 0 {
		return nil
	}
	out := make([]TrySendResult, n)
	for i := range out {
		out[i] = TrySendOk
	}
	return out
}

// TestQueueManager_EnqueueFrontPrecedesQueue verifies that a frame
// recovered via EnqueueFront is drained before anything already waiting.
func TestQueueManager_EnqueueFrontPrecedesQueue(t *testing.T) {
	q := NewQueueManager()
	peer := SocketAddr{IP: "10.0.0.1", Port: 9002}

	q.Enqueue(peer, dataFrame(1))
	q.Enqueue(peer, dataFrame(2))
	q.EnqueueFront(peer, dataFrame(0))

	sink := &recordingSink{script: []TrySendResult{TrySendOk, TrySendOk, TrySendOk}}
	drained := q.DrainInto(peer, sink)
	require.Equal(t, 3, drained)
	require.Equal(t, []uint64{0, 1, 2}, []uint64{
		sink.accepted[0].(DataFrame).Seq,
		sink.accepted[1].(DataFrame).Seq,
		sink.accepted[2].(DataFrame).Seq,
	})
}

// TestQueueManager_TrimOverflowDropsOldestFirst verifies the P5
// backpressure invariant: trimming to a cap always drops from the head
// (oldest) first, and is idempotent once the queue is at or under the
// cap.
func TestQueueManager_TrimOverflowDropsOldestFirst(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		q := NewQueueManager()
		peer := SocketAddr{IP: "10.0.0.2", Port: 9100}

		n := rapid.IntRange(0, 60).Draw(rt, "numFrames")
		for i := 0; i < n; i++ {
			q.Enqueue(peer, dataFrame(uint64(i)))
		}

		cap := rapid.IntRange(0, 60).Draw(rt, "cap")

		dropped := q.TrimOverflow(peer, cap)
		if cap <= 0 {
			require.Nil(t, dropped)
			return
		}

		if n > cap {
			require.Len(t, dropped, n-cap)
			for i, frame := range dropped {
				require.Equal(t, uint64(i), frame.(DataFrame).Seq)
			}
		} else {
			require.Empty(t, dropped)
		}
		require.LessOrEqual(t, q.Len(peer), cap)

		// Idempotent: trimming again at the same cap drops nothing
		// further.
		again := q.TrimOverflow(peer, cap)
		require.Empty(t, again)
	})
}

// TestQueueManager_DropPeerClearsQueue verifies DropPeer empties a peer's
// queue and reports how many frames it discarded.
func TestQueueManager_DropPeerClearsQueue(t *testing.T) {
	q := NewQueueManager()
	peer := SocketAddr{IP: "10.0.0.3", Port: 9200}

	for i := 0; i < 5; i++ {
		q.Enqueue(peer, dataFrame(uint64(i)))
	}

	n := q.DropPeer(peer)
	require.Equal(t, 5, n)
	require.Equal(t, 0, q.Len(peer))

	again := q.DropPeer(peer)
	require.Equal(t, 0, again)
}

// TestQueueManager_PeersAreIndependent verifies that operations on one
// peer's queue never affect another peer's.
func TestQueueManager_PeersAreIndependent(t *testing.T) {
	q := NewQueueManager()
	a := SocketAddr{IP: "10.0.0.4", Port: 1}
	b := SocketAddr{IP: "10.0.0.5", Port: 2}

	q.Enqueue(a, dataFrame(1))
	q.Enqueue(a, dataFrame(2))
	q.Enqueue(b, dataFrame(99))

	require.Equal(t, 2, q.Len(a))
	require.Equal(t, 1, q.Len(b))

	q.DropPeer(a)
	require.Equal(t, 0, q.Len(a))
	require.Equal(t, 1, q.Len(b))
}
