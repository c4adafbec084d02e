package link

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestSendQueueFIFOWithinPriority(t *testing.T) {
	q := newSendQueue(0)
	for i := 0; i < 5; i++ {
		p, _ := NewPacket(0, 0, nil)
		p.seq = uint64(i)
		require.NoError(t, q.push(p))
	}
	for i := 0; i < 5; i++ {
		p, ok := q.pop()
		require.True(t, ok)
		require.Equal(t, uint64(i), p.seq)
	}
	_, ok := q.pop()
	require.False(t, ok)
}

func TestSendQueueLimit(t *testing.T) {
	q := newSendQueue(2)
	p, _ := NewPacket(0, 0, nil)
	require.NoError(t, q.push(p))
	require.NoError(t, q.push(p))
	require.ErrorIs(t, q.push(p), ErrQueueFull)
}

// TestQueuePriorityOrderingProperty is invariant 2 (spec.md §8): for any
// sequence of (priority, seq) pairs pushed in arbitrary order, pop
// always returns the highest priority first and, within equal
// priorities, the lowest seq first.
func TestQueuePriorityOrderingProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		type entry struct {
			priority int
			seq      uint64
		}
		entries := rapid.SliceOfN(rapid.Custom(func(rt *rapid.T) entry {
			return entry{
				priority: rapid.IntRange(0, 4).Draw(rt, "priority"),
				seq:      rapid.Uint64Range(0, 1000).Draw(rt, "seq"),
			}
		}), 1, 50).Draw(rt, "entries")

		q := newSendQueue(0)
		for _, e := range entries {
			p, _ := NewPacket(0, 0, nil)
			p.seq = e.seq
			p.priority = e.priority
			require.NoError(rt, q.push(p))
		}

		var prev *entry
		for q.len() > 0 {
			p, ok := q.pop()
			require.True(rt, ok)
			if prev != nil {
				if prev.priority != p.priority {
					require.True(rt, prev.priority > p.priority)
				} else {
					require.True(rt, prev.seq <= p.seq)
				}
			}
			prev = &entry{priority: p.priority, seq: p.seq}
		}
	})
}

func TestRecvQueueBlockingPop(t *testing.T) {
	q := newRecvQueue()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan Packet, 1)
	go func() {
		p, err := q.popBlocking(ctx)
		require.NoError(t, err)
		done <- p
	}()

	time.Sleep(10 * time.Millisecond)
	want, _ := NewPacket(3, 1, []byte("hi"))
	q.push(want)

	select {
	case got := <-done:
		require.Equal(t, want.Payload(), got.Payload())
	case <-time.After(time.Second):
		t.Fatal("popBlocking never returned")
	}
}

func TestRecvQueueBlockingPopCancel(t *testing.T) {
	q := newRecvQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := q.popBlocking(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
