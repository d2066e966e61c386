package conn

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"LandVerse/internal/protocol"
	"LandVerse/modules/kit/logx"
)

// HandlerFunc 在读协程里按收到的顺序被调用，不要在里面阻塞。
type HandlerFunc func(env protocol.Envelope)

// Subscription 是 On 返回的订阅凭据，零值无效。
type Subscription struct {
	id        uint64
	eventType string
}

// NewSubscription 给其他 Client 实现构造订阅凭据，id 必须非零。
func NewSubscription(eventType string, id uint64) Subscription {
	return Subscription{id: id, eventType: eventType}
}

func (s Subscription) Valid() bool {
	return s.id != 0
}

type handlerEntry struct {
	id uint64
	fn HandlerFunc
}

// Client 是上层组件依赖的会话能力，Session 和 conntest.Bus 都实现它。
type Client interface {
	On(eventType string, fn HandlerFunc) Subscription
	Unsubscribe(sub Subscription)
	Send(eventType string, payload any) error
	State() State
	Self() Identity
}

var _ Client = (*Session)(nil)

// On 订阅一种消息（含 connected/reconnected/disconnected 伪事件），同一类型可以有多个订阅者。
func (s *Session) On(eventType string, fn HandlerFunc) Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	sub := Subscription{id: s.nextID, eventType: eventType}
	s.handlers[eventType] = append(s.handlers[eventType], handlerEntry{id: sub.id, fn: fn})
	return sub
}

// Unsubscribe 对已取消或无效的订阅是 no-op。
func (s *Session) Unsubscribe(sub Subscription) {
	if !sub.Valid() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.handlers[sub.eventType]
	for i, h := range list {
		if h.id != sub.id {
			continue
		}
		next := make([]handlerEntry, 0, len(list)-1)
		next = append(next, list[:i]...)
		next = append(next, list[i+1:]...)
		if len(next) == 0 {
			delete(s.handlers, sub.eventType)
		} else {
			s.handlers[sub.eventType] = next
		}
		return
	}
}

func (s *Session) dispatch(env protocol.Envelope) {
	s.mu.Lock()
	list := s.handlers[env.Type]
	s.mu.Unlock()

	for _, h := range list {
		s.safeCall(h.fn, env)
	}
}

func (s *Session) safeCall(fn HandlerFunc, env protocol.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			logx.ReportSysErrorWithLoggerContext(context.Background(), s.log,
				logx.NewSysLog("handler panic", fmt.Errorf("%v", r)), zap.String("type", env.Type))
		}
	}()
	fn(env)
}

// Scope 把一组订阅绑在一起，Close 时一次性释放（进房订阅，离房释放）。
type Scope struct {
	client Client

	mu     sync.Mutex
	subs   []Subscription
	closed bool
}

func NewScope(c Client) *Scope {
	return &Scope{client: c}
}

func (sc *Scope) On(eventType string, fn HandlerFunc) Subscription {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.closed {
		return Subscription{}
	}
	sub := sc.client.On(eventType, fn)
	sc.subs = append(sc.subs, sub)
	return sub
}

func (sc *Scope) Close() {
	sc.mu.Lock()
	subs := sc.subs
	sc.subs = nil
	sc.closed = true
	sc.mu.Unlock()
	for _, sub := range subs {
		sc.client.Unsubscribe(sub)
	}
}
