// Package presence 是客户端侧的房间成员与远端头像跟踪。
package presence

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"LandVerse/internal/client/conn"
	"LandVerse/internal/protocol"
	"LandVerse/modules/kit/logx"
)

type Config struct {
	LocationInterval  time.Duration
	StepDuration      time.Duration
	LongJumpThreshold int
	PeerTimeout       time.Duration
	// KeepAlive 是本地静止时重发位置的间隔，默认 PeerTimeout/3。
	KeepAlive         time.Duration
}

func DefaultConfig() Config {
	return Config{
		LocationInterval:  120 * time.Millisecond,
		StepDuration:      240 * time.Millisecond,
		LongJumpThreshold: 12,
		PeerTimeout:       15 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.LocationInterval > 0 {
		d.LocationInterval = c.LocationInterval
	}
	if c.StepDuration > 0 {
		d.StepDuration = c.StepDuration
	}
	if c.LongJumpThreshold > 0 {
		d.LongJumpThreshold = c.LongJumpThreshold
	}
	if c.PeerTimeout > 0 {
		d.PeerTimeout = c.PeerTimeout
	}
	d.KeepAlive = c.KeepAlive
	if d.KeepAlive <= 0 || d.KeepAlive >= d.PeerTimeout {
		d.KeepAlive = d.PeerTimeout / 3
	}
	return d
}

// RoomState 只有 pending（已发 join 未确认，或重连后未知）和 joined 两种；不在表里即未加入。
type RoomState int

const (
	RoomPending RoomState = iota
	RoomJoined
)

type point struct {
	x, y float64
}

type avatar struct {
	userID   int64
	username string
	rooms    map[string]struct{}
	from     point
	to       point
	start    time.Time
	duration time.Duration
	lastSeen time.Time
}

func (a *avatar) at(now time.Time) point {
	if a.duration <= 0 || !now.Before(a.start.Add(a.duration)) {
		return a.to
	}
	if now.Before(a.start) {
		return a.from
	}
	f := float64(now.Sub(a.start)) / float64(a.duration)
	return point{
		x: a.from.x + (a.to.x-a.from.x)*f,
		y: a.from.y + (a.to.y-a.from.y)*f,
	}
}

// Avatar 是某一时刻远端用户的渲染快照。
type Avatar struct {
	UserID   int64
	Username string
	X, Y     float64
	TargetX  int
	TargetY  int
	Moving   bool
	Rooms    []string
}

// Tracker 维护本地加入的房间和远端头像。入站事件都在会话读协程里处理，锁只防 Tick 与调用方并发。
type Tracker struct {
	client conn.Client
	cfg    Config
	log    logx.Logger
	now    func() time.Time

	mu      sync.Mutex
	rooms   map[string]RoomState
	avatars map[int64]*avatar
	limiter *rate.Limiter
	local   *protocol.LocationPayload
	pending bool
	sentAt  time.Time
	subs    []conn.Subscription
}

func NewTracker(client conn.Client, cfg Config, log logx.Logger) *Tracker {
	cfg = cfg.withDefaults()
	t := &Tracker{
		client:  client,
		cfg:     cfg,
		log:     logx.OrNop(log),
		now:     time.Now,
		rooms:   make(map[string]RoomState),
		avatars: make(map[int64]*avatar),
		limiter: rate.NewLimiter(rate.Every(cfg.LocationInterval), 1),
	}
	t.subs = []conn.Subscription{
		client.On(protocol.TypeJoinedRoom, t.onJoined),
		client.On(protocol.TypeLeftRoom, t.onLeft),
		client.On(protocol.TypeRoomMembers, t.onMembers),
		client.On(protocol.TypeMemberJoined, t.onMemberJoined),
		client.On(protocol.TypeMemberLeft, t.onMemberLeft),
		client.On(protocol.TypeLocation, t.onLocation),
		client.On(protocol.TypeMessage, t.onChat),
		client.On(protocol.TypeTyping, t.onTyping),
		client.On(protocol.TypeLivePeerJoined, t.onLivePeer),
		client.On(protocol.TypeLivePeerLeft, t.onLivePeer),
		client.On(protocol.TypePresence, t.onPresence),
		client.On(protocol.EventDisconnected, t.onDisconnected),
		client.On(protocol.EventReconnected, t.onReconnected),
	}
	return t
}

func (t *Tracker) Close() {
	t.mu.Lock()
	subs := t.subs
	t.subs = nil
	t.mu.Unlock()
	for _, s := range subs {
		t.client.Unsubscribe(s)
	}
}

// JoinRoom 发送 join_room，收到 joined_room 后才算加入。已在表里（含 pending）时什么都不做。
func (t *Tracker) JoinRoom(roomID string) error {
	if _, err := protocol.ParseRoom(roomID); err != nil {
		return err
	}
	t.mu.Lock()
	if _, ok := t.rooms[roomID]; ok {
		t.mu.Unlock()
		return nil
	}
	t.rooms[roomID] = RoomPending
	t.mu.Unlock()

	if err := t.client.Send(protocol.TypeJoinRoom, protocol.RoomPayload{RoomID: roomID}); err != nil {
		t.mu.Lock()
		if t.rooms[roomID] == RoomPending {
			delete(t.rooms, roomID)
		}
		t.mu.Unlock()
		return err
	}
	return nil
}

// LeaveRoom 本地立即移除房间和只属于该房间的头像，再通知服务端。
func (t *Tracker) LeaveRoom(roomID string) error {
	t.mu.Lock()
	if _, ok := t.rooms[roomID]; !ok {
		t.mu.Unlock()
		return nil
	}
	delete(t.rooms, roomID)
	t.dropRoomLocked(roomID)
	t.mu.Unlock()
	return t.client.Send(protocol.TypeLeaveRoom, protocol.RoomPayload{RoomID: roomID})
}

func (t *Tracker) RoomState(roomID string) (RoomState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.rooms[roomID]
	return st, ok
}

// JoinedRooms 返回已确认加入的房间，按 id 排序。
func (t *Tracker) JoinedRooms() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.rooms))
	for id, st := range t.rooms {
		if st == RoomJoined {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// UpdateLocalPosition 记录本地位置并按节流间隔上报；被节流的位置留到 Tick 再发，只发最新的。
func (t *Tracker) UpdateLocalPosition(x, y int) error {
	self := t.client.Self()
	t.mu.Lock()
	t.local = &protocol.LocationPayload{UserID: self.UserID, Username: self.Username, X: x, Y: y}
	if !t.limiter.AllowN(t.now(), 1) {
		t.pending = true
		t.mu.Unlock()
		return nil
	}
	t.pending = false
	t.sentAt = t.now()
	loc := *t.local
	rooms := t.joinedLocked()
	t.mu.Unlock()
	return t.sendLocation(loc, rooms)
}

// Tick 由渲染循环周期调用：补发被节流的位置，静止时按 KeepAlive 重发，回收超时的头像。
func (t *Tracker) Tick() {
	now := t.now()
	t.mu.Lock()
	for id, a := range t.avatars {
		if now.Sub(a.lastSeen) > t.cfg.PeerTimeout {
			delete(t.avatars, id)
		}
	}
	if t.local == nil {
		t.mu.Unlock()
		return
	}
	due := t.pending || now.Sub(t.sentAt) >= t.cfg.KeepAlive
	if !due || !t.limiter.AllowN(now, 1) {
		t.mu.Unlock()
		return
	}
	t.pending = false
	t.sentAt = now
	loc := *t.local
	rooms := t.joinedLocked()
	t.mu.Unlock()

	if err := t.sendLocation(loc, rooms); err != nil {
		t.log.Debug("flush location failed", zap.Error(err))
	}
}

func (t *Tracker) Avatar(userID int64) (Avatar, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	a, ok := t.avatars[userID]
	if !ok {
		return Avatar{}, false
	}
	return a.view(t.now()), true
}

// Avatars 返回当前所有远端头像，按 user id 排序。
func (t *Tracker) Avatars() []Avatar {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	out := make([]Avatar, 0, len(t.avatars))
	for _, a := range t.avatars {
		out = append(out, a.view(now))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

func (a *avatar) view(now time.Time) Avatar {
	p := a.at(now)
	rooms := make([]string, 0, len(a.rooms))
	for r := range a.rooms {
		rooms = append(rooms, r)
	}
	sort.Strings(rooms)
	return Avatar{
		UserID:   a.userID,
		Username: a.username,
		X:        p.x,
		Y:        p.y,
		TargetX:  int(a.to.x),
		TargetY:  int(a.to.y),
		Moving:   p != a.to,
		Rooms:    rooms,
	}
}

func (t *Tracker) joinedLocked() []string {
	out := make([]string, 0, len(t.rooms))
	for id, st := range t.rooms {
		if st == RoomJoined {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

func (t *Tracker) sendLocation(loc protocol.LocationPayload, rooms []string) error {
	var errs []error
	for _, r := range rooms {
		loc.RoomID = r
		if err := t.client.Send(protocol.TypeLocation, loc); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t *Tracker) dropRoomLocked(roomID string) {
	for id, a := range t.avatars {
		delete(a.rooms, roomID)
		if len(a.rooms) == 0 {
			delete(t.avatars, id)
		}
	}
}

// place 落点：未知用户直接出现，远距离跳跃直接闪现，其余做一段限时插值。
func (t *Tracker) placeLocked(roomID string, userID int64, username string, x, y int, now time.Time) {
	target := point{x: float64(x), y: float64(y)}
	a, ok := t.avatars[userID]
	if !ok {
		t.avatars[userID] = &avatar{
			userID:   userID,
			username: username,
			rooms:    map[string]struct{}{roomID: {}},
			from:     target,
			to:       target,
			start:    now,
			lastSeen: now,
		}
		return
	}
	if username != "" {
		a.username = username
	}
	a.rooms[roomID] = struct{}{}
	a.lastSeen = now

	cur := a.at(now)
	if chebyshev(cur, target) > float64(t.cfg.LongJumpThreshold) {
		a.from, a.to, a.duration = target, target, 0
		a.start = now
		return
	}
	a.from, a.to = cur, target
	a.start = now
	a.duration = t.cfg.StepDuration
}

// touchLocked 刷新已知用户的存活时间，没有头像的用户不凭空创建。
func (t *Tracker) touchLocked(userID int64, now time.Time) {
	if a, ok := t.avatars[userID]; ok {
		a.lastSeen = now
	}
}

func chebyshev(a, b point) float64 {
	dx := a.x - b.x
	if dx < 0 {
		dx = -dx
	}
	dy := a.y - b.y
	if dy < 0 {
		dy = -dy
	}
	return max(dx, dy)
}

func (t *Tracker) onJoined(env protocol.Envelope) {
	var p protocol.RoomPayload
	if err := env.Bind(&p); err != nil {
		t.log.Warn("bad joined_room", zap.Error(err))
		return
	}
	t.mu.Lock()
	if _, ok := t.rooms[p.RoomID]; !ok {
		// 已经在本地离开，服务端的确认迟到了
		t.mu.Unlock()
		return
	}
	t.rooms[p.RoomID] = RoomJoined
	var loc *protocol.LocationPayload
	if t.local != nil {
		l := *t.local
		loc = &l
	}
	t.mu.Unlock()

	if loc != nil {
		if err := t.sendLocation(*loc, []string{p.RoomID}); err != nil {
			t.log.Debug("announce location failed", zap.Error(err))
		}
	}
}

func (t *Tracker) onLeft(env protocol.Envelope) {
	var p protocol.RoomPayload
	if err := env.Bind(&p); err != nil {
		return
	}
	t.mu.Lock()
	delete(t.rooms, p.RoomID)
	t.dropRoomLocked(p.RoomID)
	t.mu.Unlock()
}

func (t *Tracker) onMembers(env protocol.Envelope) {
	var p protocol.RoomMembersPayload
	if err := env.Bind(&p); err != nil {
		t.log.Warn("bad room_members", zap.Error(err))
		return
	}
	self := t.client.Self().UserID
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.rooms[p.RoomID]; !ok {
		return
	}
	for _, m := range p.Members {
		if m.UserID == self {
			continue
		}
		t.placeLocked(p.RoomID, m.UserID, m.Username, m.X, m.Y, now)
	}
}

// onMemberJoined 在地块房间里把新成员放在该地块上，world 房间没有坐标，只刷新已有头像。
func (t *Tracker) onMemberJoined(env protocol.Envelope) {
	var p protocol.MemberEventPayload
	if err := env.Bind(&p); err != nil {
		t.log.Warn("bad member_joined", zap.Error(err))
		return
	}
	if p.UserID == t.client.Self().UserID {
		return
	}
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	if st, ok := t.rooms[p.RoomID]; !ok || st != RoomJoined {
		return
	}
	if a, ok := t.avatars[p.UserID]; ok {
		a.rooms[p.RoomID] = struct{}{}
		a.lastSeen = now
		if p.Username != "" {
			a.username = p.Username
		}
		return
	}
	key, err := protocol.ParseRoom(p.RoomID)
	if err != nil || !key.IsLand {
		return
	}
	t.placeLocked(p.RoomID, p.UserID, p.Username, key.X, key.Y, now)
}

func (t *Tracker) onChat(env protocol.Envelope) {
	var p protocol.ChatPayload
	if err := env.Bind(&p); err != nil || p.SenderID == 0 {
		return
	}
	t.touch(p.SenderID)
}

func (t *Tracker) onTyping(env protocol.Envelope) {
	var p protocol.TypingPayload
	if err := env.Bind(&p); err != nil {
		return
	}
	t.touch(p.UserID)
}

func (t *Tracker) onLivePeer(env protocol.Envelope) {
	var p protocol.LivePeerEventPayload
	if err := env.Bind(&p); err != nil {
		return
	}
	t.touch(p.UserID)
}

func (t *Tracker) touch(userID int64) {
	now := t.now()
	t.mu.Lock()
	t.touchLocked(userID, now)
	t.mu.Unlock()
}

func (t *Tracker) onMemberLeft(env protocol.Envelope) {
	var p protocol.MemberEventPayload
	if err := env.Bind(&p); err != nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	a, ok := t.avatars[p.UserID]
	if !ok {
		return
	}
	delete(a.rooms, p.RoomID)
	if len(a.rooms) == 0 {
		delete(t.avatars, p.UserID)
	}
}

func (t *Tracker) onLocation(env protocol.Envelope) {
	var p protocol.LocationPayload
	if err := env.Bind(&p); err != nil {
		t.log.Warn("bad player_location", zap.Error(err))
		return
	}
	if p.UserID == t.client.Self().UserID {
		return
	}
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	if st, ok := t.rooms[p.RoomID]; !ok || st != RoomJoined {
		return
	}
	t.placeLocked(p.RoomID, p.UserID, p.Username, p.X, p.Y, now)
}

func (t *Tracker) onPresence(env protocol.Envelope) {
	var p protocol.PresencePayload
	if err := env.Bind(&p); err != nil {
		return
	}
	if p.Status != protocol.StatusOffline {
		return
	}
	t.mu.Lock()
	delete(t.avatars, p.UserID)
	t.mu.Unlock()
}

// 断线后房间成员关系未知，全部回到 pending，头像清空。
func (t *Tracker) onDisconnected(protocol.Envelope) {
	t.mu.Lock()
	for id := range t.rooms {
		t.rooms[id] = RoomPending
	}
	clear(t.avatars)
	t.mu.Unlock()
}

func (t *Tracker) onReconnected(protocol.Envelope) {
	t.mu.Lock()
	rooms := make([]string, 0, len(t.rooms))
	for id := range t.rooms {
		rooms = append(rooms, id)
	}
	t.mu.Unlock()
	sort.Strings(rooms)

	for _, r := range rooms {
		if err := t.client.Send(protocol.TypeJoinRoom, protocol.RoomPayload{RoomID: r}); err != nil {
			logx.ReportErrorWithLoggerContext(context.Background(), t.log, "rejoin room", err, zap.String("room_id", r))
		}
	}
}
