package pionpeer

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"LandVerse/internal/client/live"
	"LandVerse/internal/protocol"
)

// Media 是一组 pion 本地轨道。无头客户端没有采集设备，写样本由调用方负责。
type Media struct {
	kind   protocol.MediaKind
	tracks []*webrtc.TrackLocalStaticSample

	once    sync.Once
	stopped chan struct{}
}

func (m *Media) Kind() protocol.MediaKind {
	return m.kind
}

// Tracks 返回可写样本的本地轨道。
func (m *Media) Tracks() []*webrtc.TrackLocalStaticSample {
	return m.tracks
}

// Stopped 在 Stop 后关闭，写样本的协程据此退出。
func (m *Media) Stopped() <-chan struct{} {
	return m.stopped
}

func (m *Media) Stop() {
	m.once.Do(func() { close(m.stopped) })
}

// SampleProvider 为无头客户端创建 opus（以及视频时的 VP8）样本轨道。
type SampleProvider struct {
	StreamID string
}

var _ live.MediaProvider = SampleProvider{}

func (p SampleProvider) Acquire(_ context.Context, kind protocol.MediaKind) (live.LocalMedia, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unsupported media kind %q", kind)
	}
	streamID := p.StreamID
	if streamID == "" {
		streamID = "landverse"
	}
	m := &Media{kind: kind, stopped: make(chan struct{})}

	audio, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", streamID)
	if err != nil {
		return nil, fmt.Errorf("audio track: %w", err)
	}
	m.tracks = append(m.tracks, audio)

	if kind == protocol.MediaVideo {
		video, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", streamID)
		if err != nil {
			return nil, fmt.Errorf("video track: %w", err)
		}
		m.tracks = append(m.tracks, video)
	}
	return m, nil
}
