package expr

import "sync"

// Cache maps expression id to owned Node. IDs are monotonic per session;
// Clear evicts every entry (on resume, per spec.md §4.6) without resetting
// the id counter, so an id from a prior stop is never reissued.
type Cache struct {
	mu     sync.Mutex
	nodes  map[int32]*Node
	nextID int32
}

// NewCache returns an empty cache with ids starting at 1.
func NewCache() *Cache {
	return &Cache{nodes: make(map[int32]*Node), nextID: 1}
}

// Register assigns the next id to n, stores it, and returns the id.
func (c *Cache) Register(n *Node) int32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	n.ID = id
	c.nodes[id] = n
	return id
}

// Get returns the node registered under id, if any.
func (c *Cache) Get(id int32) (*Node, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.nodes[id]
	return n, ok
}

// Clear evicts every cached node. Child ids handed out under those nodes
// become invalid simultaneously (spec.md §4.6).
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nodes = make(map[int32]*Node)
}
