// Package conntest 提供内存版的会话，给依赖 conn.Client 的组件写测试用。
package conntest

import (
	"encoding/json"
	"sync"

	"LandVerse/internal/client/conn"
	"LandVerse/internal/protocol"
)

// Sent 是一条被 Bus 记录下来的出站消息。
type Sent struct {
	Type    string
	Payload json.RawMessage
}

func (s Sent) Bind(dst any) error {
	return json.Unmarshal(s.Payload, dst)
}

// Bus 同步分发：Deliver 返回时所有订阅者都已执行完。
type Bus struct {
	mu       sync.Mutex
	state    conn.State
	self     conn.Identity
	handlers map[string][]entry
	nextID   uint64
	sent     []Sent
	sendErr  error
	onSend   func(Sent)
}

type entry struct {
	sub conn.Subscription
	fn  conn.HandlerFunc
}

var _ conn.Client = (*Bus)(nil)

func NewBus(self conn.Identity) *Bus {
	return &Bus{
		state:    conn.Open,
		self:     self,
		handlers: make(map[string][]entry),
	}
}

func (b *Bus) On(eventType string, fn conn.HandlerFunc) conn.Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	sub := conn.NewSubscription(eventType, b.nextID)
	b.handlers[eventType] = append(b.handlers[eventType], entry{sub: sub, fn: fn})
	return sub
}

func (b *Bus) Unsubscribe(sub conn.Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for typ, list := range b.handlers {
		for i, e := range list {
			if e.sub != sub {
				continue
			}
			b.handlers[typ] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

func (b *Bus) Send(eventType string, payload any) error {
	b.mu.Lock()
	if b.state != conn.Open {
		b.mu.Unlock()
		return conn.ErrNotOpen.WithData("type", eventType)
	}
	if b.sendErr != nil {
		err := b.sendErr
		b.mu.Unlock()
		return err
	}
	env, err := protocol.NewEnvelope(eventType, payload)
	if err != nil {
		b.mu.Unlock()
		return err
	}
	s := Sent{Type: env.Type, Payload: env.Payload}
	b.sent = append(b.sent, s)
	hook := b.onSend
	b.mu.Unlock()
	if hook != nil {
		hook(s)
	}
	return nil
}

func (b *Bus) State() conn.State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Bus) Self() conn.Identity {
	return b.self
}

// SetState 只改状态，不发生命周期事件。
func (b *Bus) SetState(st conn.State) {
	b.mu.Lock()
	b.state = st
	b.mu.Unlock()
}

// FailSends 让后续 Send 返回 err，传 nil 恢复。
func (b *Bus) FailSends(err error) {
	b.mu.Lock()
	b.sendErr = err
	b.mu.Unlock()
}

// OnSend 注册出站钩子，用来模拟服务端即时回包。
func (b *Bus) OnSend(fn func(Sent)) {
	b.mu.Lock()
	b.onSend = fn
	b.mu.Unlock()
}

// Deliver 模拟收到一条入站消息。
func (b *Bus) Deliver(eventType string, payload any) {
	env, err := protocol.NewEnvelope(eventType, payload)
	if err != nil {
		panic(err)
	}
	b.mu.Lock()
	list := append([]entry(nil), b.handlers[eventType]...)
	b.mu.Unlock()
	for _, e := range list {
		e.fn(env)
	}
}

// Drop 模拟断线：状态置为 disconnected 并发出 disconnected。
func (b *Bus) Drop() {
	b.SetState(conn.Disconnected)
	b.Deliver(protocol.EventDisconnected, nil)
}

// Reconnect 模拟重连成功。
func (b *Bus) Reconnect() {
	b.SetState(conn.Open)
	b.Deliver(protocol.EventReconnected, nil)
}

func (b *Bus) Sent() []Sent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Sent(nil), b.sent...)
}

// SentOf 只返回某一类型的出站消息。
func (b *Bus) SentOf(eventType string) []Sent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Sent
	for _, s := range b.sent {
		if s.Type == eventType {
			out = append(out, s)
		}
	}
	return out
}

func (b *Bus) Reset() {
	b.mu.Lock()
	b.sent = nil
	b.mu.Unlock()
}

// Handlers 返回某类型当前的订阅数。
func (b *Bus) Handlers(eventType string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers[eventType])
}
