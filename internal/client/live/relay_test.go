package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"LandVerse/internal/client/conn"
	"LandVerse/internal/client/conn/conntest"
	"LandVerse/internal/protocol"
)

const room = "land_1_1"

type fakeMedia struct {
	kind    protocol.MediaKind
	stopped int
}

func (m *fakeMedia) Kind() protocol.MediaKind { return m.kind }
func (m *fakeMedia) Stop()                    { m.stopped++ }

type fakeProvider struct {
	err   error
	media []*fakeMedia
}

func (p *fakeProvider) Acquire(_ context.Context, kind protocol.MediaKind) (LocalMedia, error) {
	if p.err != nil {
		return nil, p.err
	}
	m := &fakeMedia{kind: kind}
	p.media = append(p.media, m)
	return m, nil
}

type fakePeer struct {
	id        int
	cb        PeerCallbacks
	media     []LocalMedia
	remote    []protocol.Signal
	ice       []protocol.ICECandidate
	closed    int
	offerErr  error
	answerErr error
}

func (p *fakePeer) AddLocalMedia(m LocalMedia) error {
	p.media = append(p.media, m)
	return nil
}

func (p *fakePeer) CreateOffer(context.Context) (protocol.Signal, error) {
	if p.offerErr != nil {
		return protocol.Signal{}, p.offerErr
	}
	return protocol.Signal{SDPType: "offer", SDP: fmt.Sprintf("offer-%d", p.id)}, nil
}

func (p *fakePeer) CreateAnswer(context.Context) (protocol.Signal, error) {
	if p.answerErr != nil {
		return protocol.Signal{}, p.answerErr
	}
	return protocol.Signal{SDPType: "answer", SDP: fmt.Sprintf("answer-%d", p.id)}, nil
}

func (p *fakePeer) SetRemoteDescription(sig protocol.Signal) error {
	p.remote = append(p.remote, sig)
	return nil
}

func (p *fakePeer) AddICECandidate(c protocol.ICECandidate) error {
	p.ice = append(p.ice, c)
	return nil
}

func (p *fakePeer) Close() error {
	p.closed++
	return nil
}

type fakeFactory struct {
	peers    []*fakePeer
	offerErr error
}

func (f *fakeFactory) NewPeer(_ context.Context, cb PeerCallbacks) (PeerConn, error) {
	p := &fakePeer{id: len(f.peers) + 1, cb: cb, offerErr: f.offerErr}
	f.peers = append(f.peers, p)
	return p, nil
}

type fixture struct {
	relay    *Relay
	bus      *conntest.Bus
	media    *fakeProvider
	factory  *fakeFactory
	notified []string
}

func newFixture(t *testing.T, self int64) *fixture {
	t.Helper()
	f := &fixture{
		bus:     conntest.NewBus(conn.Identity{UserID: self, Username: "me"}),
		media:   &fakeProvider{},
		factory: &fakeFactory{},
	}
	f.relay = NewRelay(f.bus, f.media, f.factory, NotifierFunc(func(msg string) {
		f.notified = append(f.notified, msg)
	}), nil)
	return f
}

func (f *fixture) roster(ids ...int64) {
	peers := make([]protocol.LivePeer, 0, len(ids))
	for _, id := range ids {
		peers = append(peers, protocol.LivePeer{UserID: id, MediaType: protocol.MediaAudio})
	}
	f.bus.Deliver(protocol.TypeLivePeers, protocol.LivePeersPayload{RoomID: room, Peers: peers})
}

func (f *fixture) signal(typ string, from int64, sig protocol.Signal) {
	raw, _ := json.Marshal(sig)
	f.bus.Deliver(typ, protocol.SignalPayload{RoomID: room, FromUserID: from, TargetUserID: 3, Payload: raw})
}

func targets(t *testing.T, sent []conntest.Sent) []int64 {
	t.Helper()
	out := make([]int64, 0, len(sent))
	for _, s := range sent {
		var sp protocol.SignalPayload
		if err := s.Bind(&sp); err != nil {
			t.Fatalf("bind signal: %v", err)
		}
		out = append(out, sp.TargetUserID)
	}
	return out
}

func TestGoLive_两个主播之间只由小id发起(t *testing.T) {
	f := newFixture(t, 3)
	if err := f.relay.GoLive(context.Background(), room, protocol.MediaVideo); err != nil {
		t.Fatalf("go live: %v", err)
	}
	if len(f.bus.SentOf(protocol.TypeLiveStart)) != 1 || len(f.bus.SentOf(protocol.TypeLiveStatus)) != 1 {
		t.Fatalf("期望发送 live_start 和 live_status, sent=%+v", f.bus.Sent())
	}

	f.roster(2, 3, 5)
	got := targets(t, f.bus.SentOf(protocol.TypeLiveOffer))
	if len(got) != 1 || got[0] != 5 {
		t.Fatalf("期望只向 5 发 offer, got=%v", got)
	}
	if st, ok := f.relay.LinkState(room, 5); !ok || st != LinkOfferSent {
		t.Fatalf("期望与 5 处于 offer-sent, got=%v ok=%v", st, ok)
	}
	if _, ok := f.relay.LinkState(room, 2); ok {
		t.Fatalf("期望等待 2 发起")
	}
	if len(f.factory.peers[0].media) != 1 {
		t.Fatalf("期望主播连接带本地媒体")
	}

	// 重复的名单不会重复建连
	f.roster(2, 3, 5)
	if n := len(f.bus.SentOf(protocol.TypeLiveOffer)); n != 1 {
		t.Fatalf("期望已建立的连接不再发 offer, got=%d", n)
	}
}

func TestWatch_观众主动连接所有主播(t *testing.T) {
	f := newFixture(t, 3)
	if err := f.relay.Watch(room); err != nil {
		t.Fatalf("watch: %v", err)
	}
	f.roster(1, 5)
	got := targets(t, f.bus.SentOf(protocol.TypeLiveOffer))
	if len(got) != 2 || got[0] != 1 || got[1] != 5 {
		t.Fatalf("期望向 1 和 5 发 offer, got=%v", got)
	}
}

func TestLivePeers_未观看的房间忽略名单(t *testing.T) {
	f := newFixture(t, 3)
	f.roster(1, 5)
	if len(f.factory.peers) != 0 {
		t.Fatalf("期望未参与直播时不建连")
	}
}

func TestGoLive_媒体失败时提示并完整清理(t *testing.T) {
	f := newFixture(t, 3)
	_ = f.relay.Watch(room)
	f.roster(5)
	f.media.err = errors.New("permission denied")

	err := f.relay.GoLive(context.Background(), room, protocol.MediaAudio)
	if !errors.Is(err, ErrMediaUnavailable) {
		t.Fatalf("期望 ErrMediaUnavailable, got=%v", err)
	}
	if len(f.notified) != 1 {
		t.Fatalf("期望提示用户一次, got=%v", f.notified)
	}
	if f.factory.peers[0].closed != 1 {
		t.Fatalf("期望已有连接被关闭")
	}
	if _, ok := f.relay.LinkState(room, 5); ok {
		t.Fatalf("期望房间直播状态被清空")
	}
	if f.relay.Broadcasting(room) || len(f.bus.SentOf(protocol.TypeLiveStart)) != 0 {
		t.Fatalf("期望没有开播")
	}
	if err := f.relay.GoLive(context.Background(), room, "screen"); !errors.Is(err, ErrBadMediaKind) {
		t.Fatalf("期望非法媒体类型被拒绝, got=%v", err)
	}
}

func TestGoLive_信令失败时清理并停止本地媒体(t *testing.T) {
	f := newFixture(t, 3)
	f.factory.offerErr = errors.New("sdp failure")
	_ = f.relay.GoLive(context.Background(), room, protocol.MediaAudio)
	f.roster(5)

	if len(f.notified) != 1 {
		t.Fatalf("期望协商失败提示用户, got=%v", f.notified)
	}
	if f.media.media[0].stopped != 1 {
		t.Fatalf("期望本地媒体被停止")
	}
	if len(f.bus.SentOf(protocol.TypeLiveStop)) != 1 {
		t.Fatalf("期望发送 live_stop")
	}
	if f.relay.Broadcasting(room) {
		t.Fatalf("期望不再处于直播")
	}
}

func TestOffer_未知对端即使未推流也应答(t *testing.T) {
	f := newFixture(t, 3)
	offer := protocol.Signal{SDPType: "offer", SDP: "remote-offer"}
	f.signal(protocol.TypeLiveOffer, 7, offer)

	answers := f.bus.SentOf(protocol.TypeLiveAnswer)
	if got := targets(t, answers); len(got) != 1 || got[0] != 7 {
		t.Fatalf("期望应答 7, got=%v", got)
	}
	if st, _ := f.relay.LinkState(room, 7); st != LinkConnected {
		t.Fatalf("期望 connected, got=%v", st)
	}
	if p := f.factory.peers[0]; len(p.remote) != 1 || p.remote[0].SDP != "remote-offer" {
		t.Fatalf("期望设置远端描述, got=%+v", p.remote)
	}

	// 重复 offer 忽略
	f.signal(protocol.TypeLiveOffer, 7, offer)
	if len(f.bus.SentOf(protocol.TypeLiveAnswer)) != 1 || len(f.factory.peers) != 1 {
		t.Fatalf("期望重复 offer 被忽略")
	}
}

func TestOffer_双方同时发起时小id胜出(t *testing.T) {
	// 自己是 3，对端 5：自己胜出，忽略对方 offer
	f := newFixture(t, 3)
	_ = f.relay.Watch(room)
	f.roster(5)
	f.signal(protocol.TypeLiveOffer, 5, protocol.Signal{SDPType: "offer", SDP: "x"})
	if len(f.bus.SentOf(protocol.TypeLiveAnswer)) != 0 {
		t.Fatalf("期望 id 小的一方忽略对方 offer")
	}
	if st, _ := f.relay.LinkState(room, 5); st != LinkOfferSent {
		t.Fatalf("期望保持 offer-sent, got=%v", st)
	}

	// 自己是 3，对端 1：让出，关闭自己的 offer 并应答
	g := newFixture(t, 3)
	_ = g.relay.Watch(room)
	g.roster(1)
	g.signal(protocol.TypeLiveOffer, 1, protocol.Signal{SDPType: "offer", SDP: "y"})
	if g.factory.peers[0].closed != 1 {
		t.Fatalf("期望自己发起的连接被关闭")
	}
	if got := targets(t, g.bus.SentOf(protocol.TypeLiveAnswer)); len(got) != 1 || got[0] != 1 {
		t.Fatalf("期望应答 1, got=%v", got)
	}
	if st, _ := g.relay.LinkState(room, 1); st != LinkConnected {
		t.Fatalf("期望 connected, got=%v", st)
	}
}

func TestAnswer_未知对端和重复应答都是no_op(t *testing.T) {
	f := newFixture(t, 3)
	f.signal(protocol.TypeLiveAnswer, 9, protocol.Signal{SDPType: "answer", SDP: "a"})
	if len(f.factory.peers) != 0 {
		t.Fatalf("期望未知对端的 answer 被忽略")
	}

	_ = f.relay.Watch(room)
	f.roster(5)
	f.signal(protocol.TypeLiveAnswer, 5, protocol.Signal{SDPType: "answer", SDP: "a"})
	f.signal(protocol.TypeLiveAnswer, 5, protocol.Signal{SDPType: "answer", SDP: "a"})
	if p := f.factory.peers[0]; len(p.remote) != 1 {
		t.Fatalf("期望只设置一次远端描述, got=%d", len(p.remote))
	}
	if st, _ := f.relay.LinkState(room, 5); st != LinkConnected {
		t.Fatalf("期望 connected, got=%v", st)
	}
}

func TestICE_远端描述前先缓存(t *testing.T) {
	f := newFixture(t, 3)
	cand := protocol.Signal{Candidate: &protocol.ICECandidate{Candidate: "candidate:1"}}
	f.signal(protocol.TypeLiveICE, 5, cand)

	_ = f.relay.Watch(room)
	f.roster(5)
	p := f.factory.peers[0]
	f.signal(protocol.TypeLiveICE, 5, cand)
	if len(p.ice) != 0 {
		t.Fatalf("期望 answer 前的候选被缓存")
	}
	f.signal(protocol.TypeLiveAnswer, 5, protocol.Signal{SDPType: "answer", SDP: "a"})
	if len(p.ice) != 1 {
		t.Fatalf("期望设置远端描述后应用缓存候选, got=%d", len(p.ice))
	}
	f.signal(protocol.TypeLiveICE, 5, cand)
	if len(p.ice) != 2 {
		t.Fatalf("期望之后的候选直接应用, got=%d", len(p.ice))
	}
}

func TestLocalICE_发给对应远端(t *testing.T) {
	f := newFixture(t, 3)
	_ = f.relay.Watch(room)
	f.roster(5)
	f.factory.peers[0].cb.OnICECandidate(protocol.ICECandidate{Candidate: "candidate:local"})

	sent := f.bus.SentOf(protocol.TypeLiveICE)
	if got := targets(t, sent); len(got) != 1 || got[0] != 5 {
		t.Fatalf("期望 live_ice 发给 5, got=%v", got)
	}
	var sp protocol.SignalPayload
	_ = sent[0].Bind(&sp)
	var sig protocol.Signal
	_ = json.Unmarshal(sp.Payload, &sig)
	if sig.Candidate == nil || sig.Candidate.Candidate != "candidate:local" {
		t.Fatalf("期望携带候选, got=%+v", sig)
	}
}

type stream string

func (s stream) ID() string   { return string(s) }
func (s stream) Kind() string { return "audio" }

func TestStopLive_完整清理(t *testing.T) {
	f := newFixture(t, 3)
	_ = f.relay.GoLive(context.Background(), room, protocol.MediaAudio)
	f.roster(5, 8)
	f.signal(protocol.TypeLiveOffer, 1, protocol.Signal{SDPType: "offer", SDP: "o"})
	for _, p := range f.factory.peers {
		p.cb.OnTrack(stream(fmt.Sprintf("s%d", p.id)))
	}
	if n := len(f.relay.Streams(room)); n != 3 {
		t.Fatalf("期望三路远端媒体, got=%d", n)
	}

	f.relay.StopLive(room)
	for _, p := range f.factory.peers {
		if p.closed != 1 {
			t.Fatalf("期望每条连接都被关闭, peer=%d closed=%d", p.id, p.closed)
		}
	}
	if f.media.media[0].stopped != 1 {
		t.Fatalf("期望本地轨道停止")
	}
	if len(f.bus.SentOf(protocol.TypeLiveStop)) != 1 {
		t.Fatalf("期望发送 live_stop")
	}
	if f.relay.Streams(room) != nil {
		t.Fatalf("期望远端媒体被清空")
	}

	// 已关闭连接的迟到回调不会复活状态
	f.factory.peers[0].cb.OnTrack(stream("late"))
	if f.relay.Streams(room) != nil {
		t.Fatalf("期望迟到的 track 被丢弃")
	}
}

func TestTeardown_离房和断线(t *testing.T) {
	f := newFixture(t, 3)
	_ = f.relay.GoLive(context.Background(), room, protocol.MediaAudio)
	f.roster(5)
	f.bus.Deliver(protocol.TypeLeftRoom, protocol.RoomPayload{RoomID: room})
	if f.factory.peers[0].closed != 1 || f.relay.Broadcasting(room) {
		t.Fatalf("期望离房后直播清理")
	}

	g := newFixture(t, 3)
	_ = g.relay.GoLive(context.Background(), room, protocol.MediaAudio)
	g.roster(5)
	g.bus.Drop()
	if g.factory.peers[0].closed != 1 || g.media.media[0].stopped != 1 {
		t.Fatalf("期望断线后直播清理")
	}
	if len(g.bus.SentOf(protocol.TypeLiveStop)) != 0 {
		t.Fatalf("期望断线时不再发送 live_stop")
	}
}

func TestPeerLeft_关闭对应连接(t *testing.T) {
	f := newFixture(t, 3)
	_ = f.relay.Watch(room)
	f.roster(5)
	f.bus.Deliver(protocol.TypeLivePeerLeft, protocol.LivePeerEventPayload{RoomID: room, UserID: 5})
	if _, ok := f.relay.LinkState(room, 5); ok {
		t.Fatalf("期望下播的对端连接被移除")
	}
	if f.factory.peers[0].closed != 1 {
		t.Fatalf("期望连接被关闭")
	}
	if len(f.relay.Broadcasters(room)) != 0 {
		t.Fatalf("期望名单移除")
	}
}

func TestPresence_对端离线时清理所有房间的连接(t *testing.T) {
	f := newFixture(t, 3)
	_ = f.relay.Watch(room)
	f.roster(7)
	other := protocol.LandRoom(8, 8)
	_ = f.relay.Watch(other)
	f.bus.Deliver(protocol.TypeLivePeers, protocol.LivePeersPayload{RoomID: other, Peers: []protocol.LivePeer{{UserID: 7, MediaType: protocol.MediaVideo}}})
	if len(f.factory.peers) != 2 {
		t.Fatalf("期望两个房间各一条连接, got=%d", len(f.factory.peers))
	}

	f.bus.Deliver(protocol.TypePresence, protocol.PresencePayload{UserID: 7, Status: protocol.StatusOffline})
	for _, id := range []string{room, other} {
		if st, ok := f.relay.LinkState(id, 7); ok {
			t.Fatalf("期望 %s 的连接被移除, state=%v", id, st)
		}
		if len(f.relay.Broadcasters(id)) != 0 {
			t.Fatalf("期望 %s 的名单移除", id)
		}
		if len(f.relay.Streams(id)) != 0 {
			t.Fatalf("期望 %s 的远端媒体清空", id)
		}
	}
	for _, p := range f.factory.peers {
		if p.closed != 1 {
			t.Fatalf("期望连接被关闭, peer=%d closed=%d", p.id, p.closed)
		}
	}
}

func TestPresence_应答方的连接在对端离线后关闭(t *testing.T) {
	f := newFixture(t, 3)
	f.signal(protocol.TypeLiveOffer, 7, protocol.Signal{SDPType: "offer", SDP: "o"})
	if st, _ := f.relay.LinkState(room, 7); st != LinkConnected {
		t.Fatalf("期望 connected, got=%v", st)
	}

	f.bus.Deliver(protocol.TypePresence, protocol.PresencePayload{UserID: 7, Status: protocol.StatusOnline})
	if _, ok := f.relay.LinkState(room, 7); !ok {
		t.Fatalf("期望在线状态不影响连接")
	}
	f.bus.Deliver(protocol.TypePresence, protocol.PresencePayload{UserID: 7, Status: protocol.StatusOffline})
	if _, ok := f.relay.LinkState(room, 7); ok {
		t.Fatalf("期望离线后连接移除")
	}
	if f.factory.peers[0].closed != 1 {
		t.Fatalf("期望连接被关闭")
	}
}

func TestPeerJoined_重建到新主播的连接(t *testing.T) {
	f := newFixture(t, 3)
	_ = f.relay.Watch(room)
	f.signal(protocol.TypeLiveOffer, 9, protocol.Signal{SDPType: "offer", SDP: "o"})
	f.bus.Deliver(protocol.TypeLivePeerJoined, protocol.LivePeerEventPayload{RoomID: room, UserID: 9, MediaType: protocol.MediaVideo})

	if f.factory.peers[0].closed != 1 {
		t.Fatalf("期望旧连接关闭")
	}
	if st, _ := f.relay.LinkState(room, 9); st != LinkOfferSent {
		t.Fatalf("期望观众向新主播重新发起, got=%v", st)
	}
}

func TestSignal_忽略自己发出的和无来源的信令(t *testing.T) {
	f := newFixture(t, 3)
	f.signal(protocol.TypeLiveOffer, 3, protocol.Signal{SDPType: "offer", SDP: "o"})
	f.signal(protocol.TypeLiveOffer, 0, protocol.Signal{SDPType: "offer", SDP: "o"})
	if len(f.factory.peers) != 0 {
		t.Fatalf("期望忽略无效信令")
	}
}
