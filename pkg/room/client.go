package room

import "sync"

// SendBuffer is the default size of a client's outbound queue
const SendBuffer = 256

// Client is one live connection. The transport drains Send; the registry
// only ever writes to it through Deliver.
type Client struct {
	ID   string
	Send chan []byte

	mu     sync.Mutex
	closed bool
}

// NewClient creates a client with a buffered send queue.
func NewClient(id string, buffer int) *Client {
	if buffer <= 0 {
		buffer = SendBuffer
	}
	return &Client{ID: id, Send: make(chan []byte, buffer)}
}

// Deliver queues data without blocking. It reports false when the queue is
// full or the client is closed.
func (c *Client) Deliver(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

// Close closes the send queue. It is safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}
