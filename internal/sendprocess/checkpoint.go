package sendprocess

import "sync"

// checkpointTracker accumulates sent progress between checkpoints and
// reports the delta since the last commit, so a checkpoint failure doesn't
// lose track of how much has actually been confirmed sent.
type checkpointTracker struct {
	mu           sync.Mutex
	lastObject   int64
	pendingCount int64
}

func newCheckpointTracker(initialLastObject int64) *checkpointTracker {
	return &checkpointTracker{lastObject: initialLastObject}
}

func (c *checkpointTracker) record(lastID, count int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if lastID > c.lastObject {
		c.lastObject = lastID
	}
	c.pendingCount += count
}

// snapshot returns the current last_object and the sent count accumulated
// since the last commit, without clearing it.
func (c *checkpointTracker) snapshot() (int64, int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastObject, c.pendingCount
}

// commit clears the pending count after its delta has been persisted.
func (c *checkpointTracker) commit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingCount = 0
}
