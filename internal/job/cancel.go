package job

import "sync"

// CancelChannel names one of the two cancellation lanes. Each lane holds
// at most one pending target; a newer request replaces the older one.
type CancelChannel string

const (
	CancelDownload    CancelChannel = "download"
	CancelCompression CancelChannel = "compression"
)

// CancelController tracks pending cancellation requests. Running jobs
// poll it at progress ticks and act on a match, so cancellation is
// cooperative rather than immediate.
type CancelController struct {
	mu      sync.Mutex
	pending map[CancelChannel]string
}

func NewCancelController() *CancelController {
	return &CancelController{pending: make(map[CancelChannel]string)}
}

// Arm records id as the pending cancellation target on the channel,
// replacing any previous target.
func (c *CancelController) Arm(ch CancelChannel, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[ch] = id
}

// Match reports whether id is the pending target on the channel.
func (c *CancelController) Match(ch CancelChannel, id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending[ch] == id && id != ""
}

// Disarm clears the channel's pending target.
func (c *CancelController) Disarm(ch CancelChannel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, ch)
}

// Target returns the channel's pending target, if any.
func (c *CancelController) Target(ch CancelChannel) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.pending[ch]
	return id, ok
}

// PendingFor reports whether any channel targets id.
func (c *CancelController) PendingFor(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, target := range c.pending {
		if target == id {
			return true
		}
	}
	return false
}
