// SPDX-License-Identifier: EPL-2.0

package secondmusic

import "sync/atomic"

// The command transport is a lock-free multi-producer single-consumer queue
// of command batches. Producers push onto an intrusive list with a CAS loop;
// the consumer detaches the whole list with one swap and reverses it in place
// to recover arrival order.
//
// All allocation happens on the producer side (one node per batch); the
// consumer path never allocates and never waits. Commands are never dropped.

type batch []command

type queueNode struct {
	batch batch
	next  *queueNode
}

type commandQueue struct {
	head atomic.Pointer[queueNode]
}

// push enqueues one batch. Safe for any number of concurrent producers.
func (q *commandQueue) push(b batch) {
	n := &queueNode{batch: b}
	for {
		old := q.head.Load()
		n.next = old
		if q.head.CompareAndSwap(old, n) {
			return
		}
	}
}

// drain removes every pending batch and returns them linked in arrival
// order. Single consumer only.
func (q *commandQueue) drain() *queueNode {
	head := q.head.Swap(nil)
	var reversed *queueNode
	for head != nil {
		next := head.next
		head.next = reversed
		reversed = head
		head = next
	}
	return reversed
}
