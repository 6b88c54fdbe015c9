package instance

import "context"

// NoActiveInstances is the instance checker used when no execution engine is
// connected. It never reports running instances.
type NoActiveInstances struct{}

func (NoActiveInstances) HasActiveInstances(ctx context.Context, processID int64) (bool, error) {
	return false, nil
}
