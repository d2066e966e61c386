// Package session 维护 uid 与 ws 连接的一一对应，同一用户的新连接会顶掉旧连接。
package session

import (
	"sync"

	"LandVerse/internal/protocol"
	"LandVerse/internal/shared/transport/ws"
)

type Manager interface {
	// Bind 登记连接，返回被顶掉的旧连接（已发送 session_replaced 并关闭）。
	Bind(conn ws.Conn) ws.Conn
	// UnbindConn 返回 true 表示 conn 是该用户的当前连接。
	UnbindConn(conn ws.Conn) bool
	GetConn(uid int64) (ws.Conn, bool)
	Push(uid int64, msgType string, payload any) error
	// Broadcast 推给所有在线连接，except 为 0 表示不排除。
	Broadcast(msgType string, payload any, except int64)
	Online() int
}

type SessMgr struct {
	sync.RWMutex
	uid2conn map[int64]ws.Conn
}

func NewSessMgr() *SessMgr {
	return &SessMgr{
		uid2conn: make(map[int64]ws.Conn),
	}
}

var _ Manager = (*SessMgr)(nil)

func (s *SessMgr) Bind(conn ws.Conn) ws.Conn {
	if conn == nil {
		return nil
	}
	uid := conn.Identity().UserID
	s.Lock()
	oldConn := s.uid2conn[uid]
	s.uid2conn[uid] = conn
	s.Unlock()

	// 踢掉原来的那个
	if oldConn != nil && oldConn != conn {
		oldConn.Kick(protocol.TypeSessionKicked, struct{}{})
		return oldConn
	}
	return nil
}

func (s *SessMgr) UnbindConn(conn ws.Conn) bool {
	if conn == nil {
		return false
	}
	uid := conn.Identity().UserID
	s.Lock()
	defer s.Unlock()
	if s.uid2conn[uid] != conn {
		return false
	}
	delete(s.uid2conn, uid)
	return true
}

func (s *SessMgr) GetConn(uid int64) (ws.Conn, bool) {
	s.RLock()
	defer s.RUnlock()
	conn, ok := s.uid2conn[uid]
	return conn, ok
}

func (s *SessMgr) Push(uid int64, msgType string, payload any) error {
	conn, ok := s.GetConn(uid)
	if !ok {
		return ws.ErrConnClosed
	}
	return conn.Push(msgType, payload)
}

func (s *SessMgr) Broadcast(msgType string, payload any, except int64) {
	s.RLock()
	conns := make([]ws.Conn, 0, len(s.uid2conn))
	for uid, c := range s.uid2conn {
		if uid != except {
			conns = append(conns, c)
		}
	}
	s.RUnlock()
	for _, c := range conns {
		_ = c.Push(msgType, payload)
	}
}

func (s *SessMgr) Online() int {
	s.RLock()
	defer s.RUnlock()
	return len(s.uid2conn)
}
