package transport

import "time"

const spinInterval = time.Millisecond

// Selector polls three disjoint sets of connections for readiness, the
// same classic shape as a socket selector: readable, writable, errored.
// The caller must service every connection returned before calling Select
// again.
type Selector struct{}

// NewSelector constructs a Selector. It holds no state of its own; all
// state lives on the FramedConns it is handed.
func NewSelector() *Selector {
	return &Selector{}
}

// Select polls read, write and except for readiness. If block is false it
// returns after a single pass. If block is true it spins, re-polling,
// until at least one connection in any set is ready — this is the only
// place the mesh may suspend the host thread (see internal/mesh.Init).
func (s *Selector) Select(read, write, except []*FramedConn, block bool) (readyRead, readyWrite, readyExcept []*FramedConn) {
	for {
		errored := make(map[*FramedConn]bool)

		for _, c := range read {
			if _, err := c.Recv(); err != nil {
				errored[c] = true
				continue
			}
			if c.CanRead() {
				readyRead = append(readyRead, c)
			}
		}

		for _, c := range write {
			if errored[c] {
				continue
			}
			if c.CanWrite() {
				readyWrite = append(readyWrite, c)
				continue
			}
			if err := c.Send(); err != nil {
				errored[c] = true
				continue
			}
			if c.CanWrite() {
				readyWrite = append(readyWrite, c)
			}
		}

		for _, c := range except {
			if errored[c] || c.Err() != nil {
				readyExcept = append(readyExcept, c)
			}
		}
		for c := range errored {
			readyExcept = appendUnique(readyExcept, c)
		}

		if !block || len(readyRead) > 0 || len(readyWrite) > 0 || len(readyExcept) > 0 {
			return
		}
		time.Sleep(spinInterval)
	}
}

func appendUnique(set []*FramedConn, c *FramedConn) []*FramedConn {
	for _, existing := range set {
		if existing == c {
			return set
		}
	}
	return append(set, c)
}
