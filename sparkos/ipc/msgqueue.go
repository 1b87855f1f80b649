package ipc

import (
	"encoding/binary"
	"fmt"

	"sparkrt/kernel"
)

// Message node layout: next node index, payload length, payload.
const (
	nodeNext    = 0
	nodeLen     = 4
	nodeHeader  = 8
	noNode      = noBlock
	maxMsgBytes = 0xFFFF
)

// MsgQueue is a FIFO of bounded messages stored in pool nodes. Send waits
// only for a free node; Recv waits for a queued message.
type MsgQueue struct {
	k      *kernel.Kernel
	nodes  *Pool
	items  *kernel.Semaphore
	head   uint32
	tail   uint32
	msgMax int
}

// NewMsgQueue holds up to depth messages of at most msgSize bytes.
func NewMsgQueue(k *kernel.Kernel, msgSize, depth int) (*MsgQueue, error) {
	if msgSize <= 0 || msgSize > maxMsgBytes {
		return nil, fmt.Errorf("ipc: message size %d: %w", msgSize, ErrTooLarge)
	}
	nodes, err := NewPool(k, nodeHeader+msgSize, depth)
	if err != nil {
		return nil, fmt.Errorf("ipc: message queue: %w", err)
	}
	return &MsgQueue{
		k:      k,
		nodes:  nodes,
		items:  k.NewSemaphore(0, uint32(depth)),
		head:   noNode,
		tail:   noNode,
		msgMax: msgSize,
	}, nil
}

// Close releases the node pool. The queue must be idle.
func (q *MsgQueue) Close() { q.nodes.Close() }

// Len returns the number of queued messages.
func (q *MsgQueue) Len() int { return int(q.items.Count()) }

// Send queues a copy of msg, waiting at most timeout ticks for a free node.
// With a zero timeout it is safe from interrupt context.
func (q *MsgQueue) Send(msg []byte, timeout kernel.Ticks) error {
	if len(msg) > q.msgMax {
		return fmt.Errorf("ipc: send %d bytes, limit %d: %w", len(msg), q.msgMax, ErrTooLarge)
	}
	node, err := q.nodes.TimedAlloc(timeout)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(node[nodeNext:], noNode)
	binary.LittleEndian.PutUint32(node[nodeLen:], uint32(len(msg)))
	copy(node[nodeHeader:], msg)

	i := q.nodes.index(node)
	q.k.Enter()
	if q.tail == noNode {
		q.head = i
	} else {
		binary.LittleEndian.PutUint32(q.nodes.block(q.tail)[nodeNext:], i)
	}
	q.tail = i
	q.k.Leave()

	q.items.Give()
	return nil
}

// Recv pops the oldest message into out, truncating it to len(out), and
// returns the bytes delivered.
func (q *MsgQueue) Recv(out []byte, timeout kernel.Ticks) (int, error) {
	if _, err := q.items.TakeTimeout(timeout); err != nil {
		return 0, err
	}
	q.k.Enter()
	node := q.nodes.block(q.head)
	q.head = binary.LittleEndian.Uint32(node[nodeNext:])
	if q.head == noNode {
		q.tail = noNode
	}
	q.k.Leave()

	size := int(binary.LittleEndian.Uint32(node[nodeLen:]))
	n := copy(out, node[nodeHeader:nodeHeader+size])
	q.nodes.Free(node)
	return n, nil
}
