// ============================================================================
// meinDENKWERK (mDW) - Voice Listener
// ============================================================================
//
// Package:     audio
// Description: Audio frames and the bounded frame queue
// Author:      Mike Stoffels with Claude
// Created:     2026-10-18
// License:     MIT
// ============================================================================

package audio

import (
	"context"
	"sync/atomic"
	"time"
)

// Frame is one fixed-length block of mono samples in [-1, 1].
// Frames are immutable once produced.
type Frame struct {
	Seq     uint64
	Samples []float32
	At      time.Time
}

// Duration returns the playback length of the frame at sampleRate
func (f Frame) Duration(sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.Samples)) * time.Second / time.Duration(sampleRate)
}

// FrameQueue is a bounded FIFO between the capture goroutine and the
// processing loop. Push never blocks; every frame is received at most once.
type FrameQueue struct {
	ch      chan Frame
	dropped atomic.Uint64
}

// NewFrameQueue creates a queue holding up to capacity frames
func NewFrameQueue(capacity int) *FrameQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &FrameQueue{ch: make(chan Frame, capacity)}
}

// Push enqueues f. It returns false and counts a drop when the queue is full.
func (q *FrameQueue) Push(f Frame) bool {
	select {
	case q.ch <- f:
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// Pop returns the next frame, waiting at most wait for one to arrive.
// ok is false on timeout or when ctx is done.
func (q *FrameQueue) Pop(ctx context.Context, wait time.Duration) (Frame, bool) {
	select {
	case f := <-q.ch:
		return f, true
	default:
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case f := <-q.ch:
		return f, true
	case <-timer.C:
		return Frame{}, false
	case <-ctx.Done():
		return Frame{}, false
	}
}

// Flush discards every queued frame and returns how many were discarded
func (q *FrameQueue) Flush() int {
	n := 0
	for {
		select {
		case <-q.ch:
			n++
		default:
			return n
		}
	}
}

// Len returns the number of queued frames
func (q *FrameQueue) Len() int {
	return len(q.ch)
}

// Cap returns the queue capacity
func (q *FrameQueue) Cap() int {
	return cap(q.ch)
}

// Dropped returns how many frames Push rejected so far
func (q *FrameQueue) Dropped() uint64 {
	return q.dropped.Load()
}
