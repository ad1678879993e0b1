// Package coretest provides an in-memory SignalConnection for tests.
package coretest

import (
	"encoding/json"
	"sync"

	"github.com/dkeye/Huddle/internal/core"
)

// Conn records every frame it accepts.
type Conn struct {
	mu       sync.Mutex
	frames   []core.Frame
	capacity int
	closed   bool
}

// NewConn returns a connection with unbounded buffer.
func NewConn() *Conn { return &Conn{} }

// NewBoundedConn returns a connection that reports backpressure after
// capacity frames.
func NewBoundedConn(capacity int) *Conn { return &Conn{capacity: capacity} }

func (c *Conn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrConnectionClosed
	}
	if c.capacity > 0 && len(c.frames) >= c.capacity {
		return core.ErrBackpressure
	}
	c.frames = append(c.frames, append(core.Frame(nil), f...))
	return nil
}

func (c *Conn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Events decodes every recorded frame.
func (c *Conn) Events() []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, 0, len(c.frames))
	for _, f := range c.frames {
		var m map[string]any
		if err := json.Unmarshal(f, &m); err == nil {
			out = append(out, m)
		}
	}
	return out
}

// OfType keeps only events whose "type" equals typ.
func (c *Conn) OfType(typ string) []map[string]any {
	var out []map[string]any
	for _, ev := range c.Events() {
		if ev["type"] == typ {
			out = append(out, ev)
		}
	}
	return out
}

// Reset forgets recorded frames.
func (c *Conn) Reset() {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
}
