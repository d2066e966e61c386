// Package wstest 提供记录推送内容的内存连接，给服务端测试用。
package wstest

import (
	"encoding/json"
	"sync"
	"time"

	"LandVerse/internal/protocol"
	"LandVerse/internal/shared/transport/ws"
)

type Frame struct {
	Type    string
	Payload json.RawMessage
}

// Bind 把记录下的 payload 解到 dst。
func (f Frame) Bind(dst any) error {
	return json.Unmarshal(f.Payload, dst)
}

type Conn struct {
	id    string
	ident ws.Identity

	mu       sync.Mutex
	frames   []Frame
	props    map[string]any
	kicked   string
	closed   bool
	done     chan struct{}
	notify   chan struct{}
	closeOne sync.Once
}

var _ ws.Conn = (*Conn)(nil)

func NewConn(id string, uid int64, username string) *Conn {
	return &Conn{
		id:     id,
		ident:  ws.Identity{UserID: uid, Username: username},
		props:  make(map[string]any),
		done:   make(chan struct{}),
		notify: make(chan struct{}, 1),
	}
}

func (c *Conn) ID() string            { return c.id }
func (c *Conn) Identity() ws.Identity { return c.ident }
func (c *Conn) Addr() string          { return "wstest" }
func (c *Conn) Done() <-chan struct{} { return c.done }

func (c *Conn) SetProperty(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.props[key] = value
}

func (c *Conn) GetProperty(key string) any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.props[key]
}

func (c *Conn) RemoveProperty(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.props, key)
}

func (c *Conn) Push(msgType string, payload any) error {
	env, err := protocol.NewEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ws.ErrConnClosed
	}
	c.frames = append(c.frames, Frame{Type: msgType, Payload: env.Payload})
	c.mu.Unlock()
	select {
	case c.notify <- struct{}{}:
	default:
	}
	return nil
}

func (c *Conn) Kick(msgType string, payload any) {
	_ = c.Push(msgType, payload)
	c.mu.Lock()
	c.kicked = msgType
	c.mu.Unlock()
	c.Close()
}

func (c *Conn) Close() {
	c.closeOne.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.done)
	})
}

func (c *Conn) Kicked() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.kicked
}

func (c *Conn) Frames() []Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Frame, len(c.frames))
	copy(out, c.frames)
	return out
}

// Types 返回按顺序收到的消息类型。
func (c *Conn) Types() []string {
	frames := c.Frames()
	out := make([]string, len(frames))
	for i, f := range frames {
		out[i] = f.Type
	}
	return out
}

// Count 统计某类消息收到的条数。
func (c *Conn) Count(msgType string) int {
	n := 0
	for _, f := range c.Frames() {
		if f.Type == msgType {
			n++
		}
	}
	return n
}

// Last 返回最后一条该类型的消息。
func (c *Conn) Last(msgType string) (Frame, bool) {
	frames := c.Frames()
	for i := len(frames) - 1; i >= 0; i-- {
		if frames[i].Type == msgType {
			return frames[i], true
		}
	}
	return Frame{}, false
}

// Reset 清空已记录的消息。
func (c *Conn) Reset() {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
}

// WaitFor 等到收到至少一条该类型的消息。
func (c *Conn) WaitFor(msgType string, timeout time.Duration) (Frame, bool) {
	deadline := time.After(timeout)
	for {
		if f, ok := c.Last(msgType); ok {
			return f, true
		}
		select {
		case <-c.notify:
		case <-deadline:
			return Frame{}, false
		}
	}
}
