package utils

import (
	"fmt"
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	idNode *snowflake.Node
	idOnce sync.Once
	idErr  error
)

// InitIDGenerator configures the snowflake node used for event and correlation IDs.
// Only the first call has any effect.
func InitIDGenerator(nodeID int64) error {
	idOnce.Do(func() {
		idNode, idErr = snowflake.NewNode(nodeID)
	})
	if idErr != nil {
		return fmt.Errorf("failed to init snowflake node %d: %w", nodeID, idErr)
	}
	return nil
}

// NewID returns a new snowflake ID. Falls back to node 1 when InitIDGenerator was never called.
func NewID() snowflake.ID {
	if err := InitIDGenerator(1); err != nil {
		panic(err)
	}
	return idNode.Generate()
}
