package mesh

import "github.com/octolife/octolife/internal/transport"

// peer is one full-mesh connection: a framed socket plus the player id it
// has been associated with. playerID is -1 for an accepted connection
// whose identity has not yet arrived (see Session.pending).
type peer struct {
	conn     *transport.FramedConn
	playerID int32
}

const unidentified int32 = -1
