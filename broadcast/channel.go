package broadcast

import "sync"

// DefaultChannelBuffer is the number of frames a client may fall behind
// before it is dropped.
const DefaultChannelBuffer = 64

// Channel is the outbound side of one connected event stream. Frames are
// queued by the broadcaster and drained by the stream's own writer.
type Channel struct {
	id     string
	frames chan []byte
	closed chan struct{}
	once   sync.Once
}

// NewChannel creates an unregistered channel with the given queue size.
func NewChannel(buffer int) *Channel {
	if buffer <= 0 {
		buffer = DefaultChannelBuffer
	}
	return &Channel{
		frames: make(chan []byte, buffer),
		closed: make(chan struct{}),
	}
}

// ID returns the identifier assigned at registration.
func (c *Channel) ID() string { return c.id }

// Frames yields queued frames in broadcast order.
func (c *Channel) Frames() <-chan []byte { return c.frames }

// Closed is closed once the channel has been unregistered.
func (c *Channel) Closed() <-chan struct{} { return c.closed }

// offer queues a frame without blocking. It reports false when the channel is
// closed or its queue is full.
func (c *Channel) offer(frame []byte) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.frames <- frame:
		return true
	default:
		return false
	}
}

func (c *Channel) close() {
	c.once.Do(func() { close(c.closed) })
}
