// Package scaling keeps the right number of batch allocations ("blocks")
// behind each batch-backed executor: blocks are created lazily as backlog
// appears, never exceed the configured maximum, and are never torn down by
// this layer. The batch scheduler reclaims them at their wall-clock limit.
package scaling

import (
	"time"
)

// BlockState follows one batch allocation through its lifecycle.
type BlockState string

const (
	// Submitted to the batch scheduler, waiting for nodes.
	BlockQueued BlockState = "queued"
	// Nodes granted, workers running.
	BlockRunning BlockState = "running"
	BlockCompleted BlockState = "completed"
	BlockFailed    BlockState = "failed"
)

// AllocationHandle identifies a batch allocation to the batch client.
type AllocationHandle string

// Block is one request to the batch scheduler for a set of nodes. Its shape
// (node count, wall-clock limit) is fixed at submission; only the number of
// concurrent blocks varies.
type Block struct {
	Id       string
	Handle   AllocationHandle
	Nodes    int
	Walltime time.Duration
	State    BlockState
	Created  time.Time
}

func (b *Block) active() bool {
	return b.State == BlockQueued || b.State == BlockRunning
}
