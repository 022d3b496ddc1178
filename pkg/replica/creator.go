package replica

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Creator produces replicas with ids unique within a role
type Creator struct {
	prefix string
	seq    int
	logger zerolog.Logger
}

// NewCreator returns a creator continuing after seq
func NewCreator(prefix string, seq int, logger zerolog.Logger) *Creator {
	return &Creator{prefix: prefix, seq: seq, logger: logger}
}

// Create returns a new replica with a fresh unassigned worker
func (c *Creator) Create() *Node {
	c.seq++
	return newNode(fmt.Sprintf("%s-%08d", c.prefix, c.seq), c.logger)
}

// Seq returns the last sequence number handed out
func (c *Creator) Seq() int {
	return c.seq
}
