// Package pionpeer 用 pion/webrtc 实现 live.PeerFactory。
package pionpeer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"LandVerse/internal/client/live"
	"LandVerse/internal/protocol"
)

var ErrForeignMedia = errors.New("local media was not created by pionpeer")

// Factory 持有共享的 webrtc.API 和 ICE 配置。
type Factory struct {
	api *webrtc.API
	cfg webrtc.Configuration
}

// NewFactory 传入 STUN/TURN 地址，空表示只用 host 候选。
func NewFactory(iceServers ...string) (*Factory, error) {
	me := &webrtc.MediaEngine{}
	if err := me.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	cfg := webrtc.Configuration{}
	if len(iceServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: iceServers}}
	}
	return &Factory{api: webrtc.NewAPI(webrtc.WithMediaEngine(me)), cfg: cfg}, nil
}

var _ live.PeerFactory = (*Factory)(nil)

func (f *Factory) NewPeer(_ context.Context, cb live.PeerCallbacks) (live.PeerConn, error) {
	pc, err := f.api.NewPeerConnection(f.cfg)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	p := &peer{pc: pc}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		// nil 表示收集结束
		if c == nil || cb.OnICECandidate == nil {
			return
		}
		init := c.ToJSON()
		cb.OnICECandidate(protocol.ICECandidate{
			Candidate:        init.Candidate,
			SDPMid:           init.SDPMid,
			SDPMLineIndex:    init.SDPMLineIndex,
			UsernameFragment: init.UsernameFragment,
		})
	})
	pc.OnTrack(func(tr *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if cb.OnTrack != nil {
			cb.OnTrack(remoteStream{track: tr})
		}
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		if cb.OnStateChange != nil {
			cb.OnStateChange(mapState(s))
		}
	})
	return p, nil
}

func mapState(s webrtc.PeerConnectionState) live.PeerState {
	switch s {
	case webrtc.PeerConnectionStateConnecting:
		return live.PeerConnecting
	case webrtc.PeerConnectionStateConnected:
		return live.PeerConnected
	case webrtc.PeerConnectionStateDisconnected:
		return live.PeerDisconnected
	case webrtc.PeerConnectionStateFailed:
		return live.PeerFailed
	case webrtc.PeerConnectionStateClosed:
		return live.PeerClosed
	default:
		return live.PeerNew
	}
}

type peer struct {
	pc *webrtc.PeerConnection

	mu      sync.Mutex
	senders int
}

func (p *peer) AddLocalMedia(m live.LocalMedia) error {
	src, ok := m.(*Media)
	if !ok {
		return ErrForeignMedia
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range src.tracks {
		if _, err := p.pc.AddTrack(t); err != nil {
			return fmt.Errorf("add track %s: %w", t.ID(), err)
		}
		p.senders++
	}
	return nil
}

// CreateOffer 没有本地轨道时（观众）声明只收音视频。
func (p *peer) CreateOffer(_ context.Context) (protocol.Signal, error) {
	p.mu.Lock()
	recvOnly := p.senders == 0
	p.mu.Unlock()
	if recvOnly {
		for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
			if _, err := p.pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
				Direction: webrtc.RTPTransceiverDirectionRecvonly,
			}); err != nil {
				return protocol.Signal{}, fmt.Errorf("add %s transceiver: %w", kind, err)
			}
		}
	}
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return protocol.Signal{}, fmt.Errorf("create offer: %w", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return protocol.Signal{}, fmt.Errorf("set local offer: %w", err)
	}
	return protocol.Signal{SDPType: offer.Type.String(), SDP: offer.SDP}, nil
}

func (p *peer) CreateAnswer(_ context.Context) (protocol.Signal, error) {
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return protocol.Signal{}, fmt.Errorf("create answer: %w", err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return protocol.Signal{}, fmt.Errorf("set local answer: %w", err)
	}
	return protocol.Signal{SDPType: answer.Type.String(), SDP: answer.SDP}, nil
}

func (p *peer) SetRemoteDescription(sig protocol.Signal) error {
	sd := webrtc.SessionDescription{Type: webrtc.NewSDPType(sig.SDPType), SDP: sig.SDP}
	if err := p.pc.SetRemoteDescription(sd); err != nil {
		return fmt.Errorf("set remote %s: %w", sig.SDPType, err)
	}
	return nil
}

func (p *peer) AddICECandidate(c protocol.ICECandidate) error {
	return p.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	})
}

func (p *peer) Close() error {
	return p.pc.Close()
}

type remoteStream struct {
	track *webrtc.TrackRemote
}

func (s remoteStream) ID() string {
	return s.track.StreamID() + "/" + s.track.ID()
}

func (s remoteStream) Kind() string {
	return s.track.Kind().String()
}
