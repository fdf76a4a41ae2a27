package intake

import "sync"

// ClaimSet remembers every file a lane has claimed during this process run.
// It only grows; files leave the source directory once handled, so its size
// stays close to the number of distinct files ever seen.
type ClaimSet struct {
	mu      sync.Mutex
	claimed map[string]struct{}
}

func NewClaimSet() *ClaimSet {
	return &ClaimSet{claimed: make(map[string]struct{})}
}

// Claim grants ownership of ref exactly once per path. Later calls for the
// same path return false regardless of how the first claim ended.
func (c *ClaimSet) Claim(ref FileRef) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.claimed[ref.Path]; ok {
		return false
	}

	c.claimed[ref.Path] = struct{}{}

	return true
}

func (c *ClaimSet) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.claimed)
}
