// Package live 负责房间内的连麦：本地推流、按房间维护到每个远端的 WebRTC 连接，信令走会话。
package live

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"go.uber.org/zap"

	"LandVerse/internal/client/conn"
	"LandVerse/internal/protocol"
	"LandVerse/modules/kit/errx"
	"LandVerse/modules/kit/logx"
)

var (
	ErrBadMediaKind     = errx.NewBiz("LIVE_BAD_MEDIA_KIND", "不支持的媒体类型")
	ErrMediaUnavailable = errx.NewBiz("LIVE_MEDIA_UNAVAILABLE", "无法打开摄像头或麦克风")
	ErrSignaling        = errx.NewSys("LIVE_SIGNALING", "连麦协商失败，已停止直播")
)

type LinkState int

const (
	LinkIdle LinkState = iota
	LinkOfferSent
	LinkAnswerPending
	LinkConnected
	LinkClosed
)

func (s LinkState) String() string {
	switch s {
	case LinkOfferSent:
		return "offer-sent"
	case LinkAnswerPending:
		return "answer-pending"
	case LinkConnected:
		return "connected"
	case LinkClosed:
		return "closed"
	default:
		return "idle"
	}
}

type link struct {
	room       string
	remote     int64
	state      LinkState
	pc         PeerConn
	remoteSet  bool
	pendingICE []protocol.ICECandidate
	localReady bool
	localICE   []protocol.ICECandidate
}

type roomLive struct {
	broadcasting bool
	watching     bool
	kind         protocol.MediaKind
	media        LocalMedia
	roster       map[int64]protocol.LivePeer
	links        map[int64]*link
	streams      map[int64][]RemoteStream
}

type outMsg struct {
	typ     string
	payload any
}

// Relay 是本地的连麦状态机。所有入站信令都在会话读协程里处理，PeerConn 回调在其他协程，靠 mu 串行化。
type Relay struct {
	client conn.Client
	media  MediaProvider
	peers  PeerFactory
	notify Notifier
	log    logx.Logger

	mu    sync.Mutex
	rooms map[string]*roomLive
	subs  []conn.Subscription
}

func NewRelay(client conn.Client, media MediaProvider, peers PeerFactory, notify Notifier, log logx.Logger) *Relay {
	if notify == nil {
		notify = NotifierFunc(func(string) {})
	}
	r := &Relay{
		client: client,
		media:  media,
		peers:  peers,
		notify: notify,
		log:    logx.Named(logx.OrNop(log), "live"),
		rooms:  make(map[string]*roomLive),
	}
	r.subs = []conn.Subscription{
		client.On(protocol.TypeLivePeers, r.onPeers),
		client.On(protocol.TypeLivePeerJoined, r.onPeerJoined),
		client.On(protocol.TypeLivePeerLeft, r.onPeerLeft),
		client.On(protocol.TypeLiveOffer, r.onOffer),
		client.On(protocol.TypeLiveAnswer, r.onAnswer),
		client.On(protocol.TypeLiveICE, r.onICE),
		client.On(protocol.TypeLeftRoom, r.onLeftRoom),
		client.On(protocol.TypePresence, r.onPresence),
		client.On(protocol.EventDisconnected, r.onDisconnected),
	}
	return r
}

func (r *Relay) Close() {
	r.mu.Lock()
	subs := r.subs
	r.subs = nil
	rooms := make([]string, 0, len(r.rooms))
	for id := range r.rooms {
		rooms = append(rooms, id)
	}
	r.mu.Unlock()
	for _, s := range subs {
		r.client.Unsubscribe(s)
	}
	for _, id := range rooms {
		r.teardown(id, true)
	}
}

// GoLive 打开本地媒体并宣布开播。媒体或信令失败会提示用户并完整清理该房间的直播状态。
func (r *Relay) GoLive(ctx context.Context, roomID string, kind protocol.MediaKind) error {
	if !kind.Valid() {
		return ErrBadMediaKind.WithData("media_type", string(kind))
	}
	r.mu.Lock()
	if rl := r.rooms[roomID]; rl != nil && rl.broadcasting {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	m, err := r.media.Acquire(ctx, kind)
	if err != nil {
		return r.fail(roomID, ErrMediaUnavailable.WithData("media_type", string(kind)).WithCause(err))
	}

	r.mu.Lock()
	rl := r.roomLocked(roomID)
	// 身份变了，已有连接全部按新的身份重建
	stale := r.detachLinksLocked(rl)
	rl.broadcasting = true
	rl.kind = kind
	rl.media = m
	r.mu.Unlock()
	closePeers(stale)

	if err := r.client.Send(protocol.TypeLiveStart, protocol.LiveStartPayload{RoomID: roomID, MediaType: kind}); err != nil {
		return r.fail(roomID, ErrSignaling.WithCause(err))
	}
	if err := r.client.Send(protocol.TypeLiveStatus, protocol.RoomPayload{RoomID: roomID}); err != nil {
		return r.fail(roomID, ErrSignaling.WithCause(err))
	}
	r.log.Info("live started", zap.String("room_id", roomID), zap.String("media_type", string(kind)))
	return nil
}

// Watch 以观众身份拉取房间的推流名单，之后主动连向每个主播。
func (r *Relay) Watch(roomID string) error {
	r.mu.Lock()
	r.roomLocked(roomID).watching = true
	r.mu.Unlock()
	return r.client.Send(protocol.TypeLiveStatus, protocol.RoomPayload{RoomID: roomID})
}

// StopLive 停止本地轨道、关闭房间内所有连接、在连接可用时发送 live_stop。
func (r *Relay) StopLive(roomID string) {
	r.teardown(roomID, true)
}

func (r *Relay) Broadcasting(roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rl := r.rooms[roomID]
	return rl != nil && rl.broadcasting
}

func (r *Relay) LinkState(roomID string, remote int64) (LinkState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rl := r.rooms[roomID]
	if rl == nil {
		return LinkClosed, false
	}
	l, ok := rl.links[remote]
	if !ok {
		return LinkClosed, false
	}
	return l.state, true
}

// Streams 返回房间内收到的远端媒体，按 user id 分组。
func (r *Relay) Streams(roomID string) map[int64][]RemoteStream {
	r.mu.Lock()
	defer r.mu.Unlock()
	rl := r.rooms[roomID]
	if rl == nil {
		return nil
	}
	out := make(map[int64][]RemoteStream, len(rl.streams))
	for uid, list := range rl.streams {
		out[uid] = append([]RemoteStream(nil), list...)
	}
	return out
}

func (r *Relay) Broadcasters(roomID string) []protocol.LivePeer {
	r.mu.Lock()
	defer r.mu.Unlock()
	rl := r.rooms[roomID]
	if rl == nil {
		return nil
	}
	out := make([]protocol.LivePeer, 0, len(rl.roster))
	for _, p := range rl.roster {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

func (r *Relay) roomLocked(roomID string) *roomLive {
	rl := r.rooms[roomID]
	if rl == nil {
		rl = &roomLive{
			roster:  make(map[int64]protocol.LivePeer),
			links:   make(map[int64]*link),
			streams: make(map[int64][]RemoteStream),
		}
		r.rooms[roomID] = rl
	}
	return rl
}

func (r *Relay) detachLinksLocked(rl *roomLive) []PeerConn {
	pcs := make([]PeerConn, 0, len(rl.links))
	for uid, l := range rl.links {
		l.state = LinkClosed
		if l.pc != nil {
			pcs = append(pcs, l.pc)
		}
		delete(rl.links, uid)
	}
	clear(rl.streams)
	return pcs
}

func (r *Relay) detachLinkLocked(rl *roomLive, remote int64) PeerConn {
	l, ok := rl.links[remote]
	if !ok {
		return nil
	}
	l.state = LinkClosed
	delete(rl.links, remote)
	delete(rl.streams, remote)
	return l.pc
}

func closePeers(pcs []PeerConn) {
	for _, pc := range pcs {
		if pc != nil {
			_ = pc.Close()
		}
	}
}

func (r *Relay) teardown(roomID string, announce bool) {
	r.mu.Lock()
	rl, ok := r.rooms[roomID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.rooms, roomID)
	pcs := r.detachLinksLocked(rl)
	media := rl.media
	wasLive := rl.broadcasting
	r.mu.Unlock()

	closePeers(pcs)
	if media != nil {
		media.Stop()
	}
	if announce && wasLive && r.client.State() == conn.Open {
		if err := r.client.Send(protocol.TypeLiveStop, protocol.RoomPayload{RoomID: roomID}); err != nil {
			r.log.Debug("send live_stop failed", zap.Error(err))
		}
	}
	if wasLive {
		r.log.Info("live stopped", zap.String("room_id", roomID))
	}
}

func (r *Relay) fail(roomID string, err *errx.Error) error {
	logx.ReportErrorWithLoggerContext(context.Background(), r.log, "live failed", err, zap.String("room_id", roomID))
	r.notify.Notify(err.Msg())
	r.teardown(roomID, true)
	return err
}

func (r *Relay) flush(out []outMsg) error {
	for _, m := range out {
		if err := r.client.Send(m.typ, m.payload); err != nil {
			return err
		}
	}
	return nil
}

func signalMsg(typ, roomID string, target int64, sig protocol.Signal) outMsg {
	raw, _ := json.Marshal(sig)
	return outMsg{typ: typ, payload: protocol.SignalPayload{RoomID: roomID, TargetUserID: target, Payload: raw}}
}

// shouldInitiate 观众总是主动连主播；两个主播之间只由 user id 小的一方发 offer。
func (r *Relay) shouldInitiateLocked(rl *roomLive, remote int64) bool {
	if !rl.broadcasting {
		return true
	}
	return r.client.Self().UserID < remote
}

func (r *Relay) newLinkLocked(ctx context.Context, roomID string, rl *roomLive, remote int64, state LinkState) (*link, error) {
	l := &link{room: roomID, remote: remote, state: state}
	pc, err := r.peers.NewPeer(ctx, PeerCallbacks{
		OnICECandidate: func(c protocol.ICECandidate) { r.onLocalICE(l, c) },
		OnTrack:        func(s RemoteStream) { r.onTrack(l, s) },
		OnStateChange:  func(st PeerState) { r.onPeerState(l, st) },
	})
	if err != nil {
		return nil, err
	}
	l.pc = pc
	if rl.media != nil {
		if err := pc.AddLocalMedia(rl.media); err != nil {
			_ = pc.Close()
			return nil, err
		}
	}
	rl.links[remote] = l
	return l, nil
}

// initiateLocked 建出站连接并生成 offer；offer 发出前产生的本地 ICE 先缓存。
func (r *Relay) initiateLocked(ctx context.Context, roomID string, rl *roomLive, remote int64) ([]outMsg, error) {
	l, err := r.newLinkLocked(ctx, roomID, rl, remote, LinkIdle)
	if err != nil {
		return nil, err
	}
	offer, err := l.pc.CreateOffer(ctx)
	if err != nil {
		return nil, err
	}
	l.state = LinkOfferSent
	return append([]outMsg{signalMsg(protocol.TypeLiveOffer, roomID, remote, offer)}, l.readyLocked()...), nil
}

// readyLocked 标记本地描述已发出，返回之前缓存的本地 ICE。
func (l *link) readyLocked() []outMsg {
	l.localReady = true
	out := make([]outMsg, 0, len(l.localICE))
	for _, c := range l.localICE {
		out = append(out, signalMsg(protocol.TypeLiveICE, l.room, l.remote, protocol.Signal{Candidate: &c}))
	}
	l.localICE = nil
	return out
}

func (l *link) applyPendingICE(log logx.Logger) {
	for _, c := range l.pendingICE {
		if err := l.pc.AddICECandidate(c); err != nil {
			log.Debug("add buffered ice failed", zap.Error(err))
		}
	}
	l.pendingICE = nil
}

func (r *Relay) onPeers(env protocol.Envelope) {
	var p protocol.LivePeersPayload
	if err := env.Bind(&p); err != nil {
		r.log.Warn("bad live_peers", zap.Error(err))
		return
	}
	self := r.client.Self().UserID

	r.mu.Lock()
	rl := r.rooms[p.RoomID]
	if rl == nil || (!rl.broadcasting && !rl.watching) {
		r.mu.Unlock()
		return
	}
	rl.roster = make(map[int64]protocol.LivePeer, len(p.Peers))
	for _, peer := range p.Peers {
		if peer.UserID != self {
			rl.roster[peer.UserID] = peer
		}
	}
	ids := make([]int64, 0, len(rl.roster))
	for uid := range rl.roster {
		ids = append(ids, uid)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var out []outMsg
	var failErr error
	for _, uid := range ids {
		if _, linked := rl.links[uid]; linked || !r.shouldInitiateLocked(rl, uid) {
			continue
		}
		msgs, err := r.initiateLocked(context.Background(), p.RoomID, rl, uid)
		if err != nil {
			failErr = err
			break
		}
		out = append(out, msgs...)
	}
	r.mu.Unlock()

	r.finish(p.RoomID, out, failErr)
}

func (r *Relay) finish(roomID string, out []outMsg, err error) {
	if err == nil {
		err = r.flush(out)
	}
	if err != nil {
		_ = r.fail(roomID, ErrSignaling.WithCause(err))
	}
}

func (r *Relay) onPeerJoined(env protocol.Envelope) {
	var p protocol.LivePeerEventPayload
	if err := env.Bind(&p); err != nil {
		return
	}
	if p.UserID == r.client.Self().UserID {
		return
	}

	r.mu.Lock()
	rl := r.rooms[p.RoomID]
	if rl == nil || (!rl.broadcasting && !rl.watching) {
		r.mu.Unlock()
		return
	}
	rl.roster[p.UserID] = protocol.LivePeer{UserID: p.UserID, Username: p.Username, MediaType: p.MediaType}
	// 对方开始推流后旧连接不带它的媒体，重建
	stale := r.detachLinkLocked(rl, p.UserID)
	var out []outMsg
	var err error
	if r.shouldInitiateLocked(rl, p.UserID) {
		out, err = r.initiateLocked(context.Background(), p.RoomID, rl, p.UserID)
	}
	r.mu.Unlock()

	closePeers([]PeerConn{stale})
	r.finish(p.RoomID, out, err)
}

func (r *Relay) onPeerLeft(env protocol.Envelope) {
	var p protocol.LivePeerEventPayload
	if err := env.Bind(&p); err != nil {
		return
	}
	r.mu.Lock()
	rl := r.rooms[p.RoomID]
	if rl == nil {
		r.mu.Unlock()
		return
	}
	delete(rl.roster, p.UserID)
	stale := r.detachLinkLocked(rl, p.UserID)
	r.mu.Unlock()
	closePeers([]PeerConn{stale})
}

// onPresence 在对端离线时清掉它在所有房间里的连接、名单和媒体，不依赖 live_peer_left 是否送达。
func (r *Relay) onPresence(env protocol.Envelope) {
	var p protocol.PresencePayload
	if err := env.Bind(&p); err != nil || p.Status != protocol.StatusOffline {
		return
	}
	if p.UserID == r.client.Self().UserID {
		return
	}
	r.mu.Lock()
	var stale []PeerConn
	for _, rl := range r.rooms {
		delete(rl.roster, p.UserID)
		if pc := r.detachLinkLocked(rl, p.UserID); pc != nil {
			stale = append(stale, pc)
		}
	}
	r.mu.Unlock()
	closePeers(stale)
}

func (r *Relay) bindSignal(env protocol.Envelope) (protocol.SignalPayload, protocol.Signal, bool) {
	var sp protocol.SignalPayload
	if err := env.Bind(&sp); err != nil {
		r.log.Warn("bad signal", zap.String("type", env.Type), zap.Error(err))
		return sp, protocol.Signal{}, false
	}
	if sp.FromUserID == 0 || sp.FromUserID == r.client.Self().UserID {
		return sp, protocol.Signal{}, false
	}
	var sig protocol.Signal
	if err := json.Unmarshal(sp.Payload, &sig); err != nil {
		r.log.Warn("bad signal payload", zap.String("type", env.Type), zap.Error(err))
		return sp, sig, false
	}
	return sp, sig, true
}

// onOffer 未知对端新建入站连接并应答（即使本地没在推流）；已连接的重复 offer 忽略；
// 双方同时发 offer 时 user id 小的一方胜出。
func (r *Relay) onOffer(env protocol.Envelope) {
	sp, sig, ok := r.bindSignal(env)
	if !ok || sig.SDP == "" {
		return
	}
	from := sp.FromUserID
	self := r.client.Self().UserID

	r.mu.Lock()
	rl := r.roomLocked(sp.RoomID)
	var stale PeerConn
	if l, linked := rl.links[from]; linked {
		if l.state != LinkOfferSent || self < from {
			r.mu.Unlock()
			return
		}
		stale = r.detachLinkLocked(rl, from)
	}
	out, err := r.answerLocked(sp.RoomID, rl, from, sig)
	r.mu.Unlock()

	closePeers([]PeerConn{stale})
	r.finish(sp.RoomID, out, err)
}

func (r *Relay) answerLocked(roomID string, rl *roomLive, from int64, offer protocol.Signal) ([]outMsg, error) {
	ctx := context.Background()
	l, err := r.newLinkLocked(ctx, roomID, rl, from, LinkAnswerPending)
	if err != nil {
		return nil, err
	}
	if err := l.pc.SetRemoteDescription(offer); err != nil {
		return nil, err
	}
	l.remoteSet = true
	l.applyPendingICE(r.log)
	answer, err := l.pc.CreateAnswer(ctx)
	if err != nil {
		return nil, err
	}
	l.state = LinkConnected
	return append([]outMsg{signalMsg(protocol.TypeLiveAnswer, roomID, from, answer)}, l.readyLocked()...), nil
}

// onAnswer 只接受处于 offer-sent 的连接，其余（未知对端、重复 answer）都是 no-op。
func (r *Relay) onAnswer(env protocol.Envelope) {
	sp, sig, ok := r.bindSignal(env)
	if !ok {
		return
	}
	r.mu.Lock()
	rl := r.rooms[sp.RoomID]
	if rl == nil {
		r.mu.Unlock()
		return
	}
	l := rl.links[sp.FromUserID]
	if l == nil || l.state != LinkOfferSent {
		r.mu.Unlock()
		return
	}
	err := l.pc.SetRemoteDescription(sig)
	if err == nil {
		l.remoteSet = true
		l.applyPendingICE(r.log)
		l.state = LinkConnected
	}
	r.mu.Unlock()

	if err != nil {
		_ = r.fail(sp.RoomID, ErrSignaling.WithCause(err))
	}
}

// onICE 远端描述设置前到达的候选先缓存在连接上。
func (r *Relay) onICE(env protocol.Envelope) {
	sp, sig, ok := r.bindSignal(env)
	if !ok || sig.Candidate == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rl := r.rooms[sp.RoomID]
	if rl == nil {
		return
	}
	l := rl.links[sp.FromUserID]
	if l == nil {
		return
	}
	if !l.remoteSet {
		l.pendingICE = append(l.pendingICE, *sig.Candidate)
		return
	}
	if err := l.pc.AddICECandidate(*sig.Candidate); err != nil {
		r.log.Debug("add ice failed", zap.Int64("remote", l.remote), zap.Error(err))
	}
}

func (r *Relay) current(l *link) (*roomLive, bool) {
	rl := r.rooms[l.room]
	if rl == nil || rl.links[l.remote] != l {
		return nil, false
	}
	return rl, true
}

func (r *Relay) onLocalICE(l *link, c protocol.ICECandidate) {
	r.mu.Lock()
	if _, ok := r.current(l); !ok {
		r.mu.Unlock()
		return
	}
	if !l.localReady {
		l.localICE = append(l.localICE, c)
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	msg := signalMsg(protocol.TypeLiveICE, l.room, l.remote, protocol.Signal{Candidate: &c})
	if err := r.client.Send(msg.typ, msg.payload); err != nil {
		r.log.Debug("send ice failed", zap.Error(err))
	}
}

func (r *Relay) onTrack(l *link, s RemoteStream) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rl, ok := r.current(l)
	if !ok {
		return
	}
	rl.streams[l.remote] = append(rl.streams[l.remote], s)
}

func (r *Relay) onPeerState(l *link, st PeerState) {
	if st != PeerFailed && st != PeerClosed {
		return
	}
	r.mu.Lock()
	rl, ok := r.current(l)
	var stale PeerConn
	if ok {
		stale = r.detachLinkLocked(rl, l.remote)
	}
	r.mu.Unlock()
	if stale != nil {
		r.log.Info("peer link dropped", zap.String("room_id", l.room), zap.Int64("remote", l.remote))
		_ = stale.Close()
	}
}

func (r *Relay) onLeftRoom(env protocol.Envelope) {
	var p protocol.RoomPayload
	if err := env.Bind(&p); err != nil {
		return
	}
	r.teardown(p.RoomID, true)
}

func (r *Relay) onDisconnected(protocol.Envelope) {
	r.mu.Lock()
	rooms := make([]string, 0, len(r.rooms))
	for id := range r.rooms {
		rooms = append(rooms, id)
	}
	r.mu.Unlock()
	for _, id := range rooms {
		r.teardown(id, false)
	}
}
