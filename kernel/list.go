package kernel

type linkKind uint8

// Each Thread carries one link per kind, so it can sit in at most one list of
// each kind at a time.
const (
	linkWait  linkKind = iota // one synchronization object's wait queue
	linkSched                 // a ready bucket, the sleep queue or the dead list
	linkReg                   // the thread registry
	numLinks
)

type link struct {
	prev, next *Thread
	owner      *threadList
}

// threadList is an intrusive doubly linked list of threads.
type threadList struct {
	head, tail *Thread
	n          int
	kind       linkKind
	// bucket is the priority of a ready bucket, -1 for any other list.
	bucket int
}

func newList(kind linkKind) threadList {
	return threadList{kind: kind, bucket: -1}
}

func (l *threadList) len() int { return l.n }

func (l *threadList) front() *Thread { return l.head }

func (l *threadList) next(t *Thread) *Thread { return t.links[l.kind].next }

func (l *threadList) contains(t *Thread) bool { return t.links[l.kind].owner == l }

func (l *threadList) pushBack(t *Thread) {
	l.insertBefore(t, nil)
}

// insertBefore links t in front of at, or at the tail when at is nil.
func (l *threadList) insertBefore(t, at *Thread) {
	lk := &t.links[l.kind]
	if lk.owner != nil {
		panic("kernel: thread already linked")
	}
	lk.owner = l
	lk.next = at
	if at == nil {
		lk.prev = l.tail
		l.tail = t
	} else {
		lk.prev = at.links[l.kind].prev
		at.links[l.kind].prev = t
	}
	if lk.prev == nil {
		l.head = t
	} else {
		lk.prev.links[l.kind].next = t
	}
	l.n++
}

func (l *threadList) remove(t *Thread) {
	lk := &t.links[l.kind]
	if lk.owner != l {
		panic("kernel: thread not in list")
	}
	if lk.prev == nil {
		l.head = lk.next
	} else {
		lk.prev.links[l.kind].next = lk.next
	}
	if lk.next == nil {
		l.tail = lk.prev
	} else {
		lk.next.links[l.kind].prev = lk.prev
	}
	*lk = link{}
	l.n--
}

func (l *threadList) popFront() *Thread {
	t := l.head
	if t != nil {
		l.remove(t)
	}
	return t
}
