package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v3"

	"github.com/haivivi/rolecoach/pkg/token"
)

// DefaultICEServers is used when WebRTCConfig.ICEServers is empty.
var DefaultICEServers = []webrtc.ICEServer{
	{URLs: []string{"stun:stun.l.google.com:19302"}},
}

// WebRTCConfig configures a WebRTC connector.
type WebRTCConfig struct {
	// Media captures the operator's microphone. Required.
	Media MediaSource

	// Sink receives remote audio. Defaults to a CountingSink.
	Sink AudioSink

	// Exchanger posts the offer. Defaults to NewSDPExchanger().
	Exchanger *SDPExchanger

	// ICEServers defaults to DefaultICEServers.
	ICEServers []webrtc.ICEServer

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// WebRTC negotiates a peer connection carrying the microphone track, the
// remote audio track and the event data channel.
type WebRTC struct {
	cfg WebRTCConfig
}

// NewWebRTC creates a WebRTC connector.
func NewWebRTC(cfg WebRTCConfig) *WebRTC {
	if cfg.Sink == nil {
		cfg.Sink = &CountingSink{}
	}
	if cfg.Exchanger == nil {
		cfg.Exchanger = NewSDPExchanger()
	}
	if len(cfg.ICEServers) == 0 {
		cfg.ICEServers = DefaultICEServers
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &WebRTC{cfg: cfg}
}

// Connect implements Connector.
func (w *WebRTC) Connect(ctx context.Context, cred token.Credential, h Handler) (Link, error) {
	if w.cfg.Media == nil {
		return nil, errors.New("media source is required")
	}
	log := w.cfg.Logger

	mic, err := w.cfg.Media.Capture(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to capture audio: %w", err)
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: w.cfg.ICEServers})
	if err != nil {
		mic.Stop()
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}
	link := &webrtcLink{pc: pc, mic: mic}

	if _, err := pc.AddTrack(mic.Track()); err != nil {
		link.Close()
		return nil, fmt.Errorf("failed to add audio track: %w", err)
	}

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Debug("received remote track", "kind", track.Kind(), "codec", track.Codec().MimeType)
		if track.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		go w.drain(track)
	})

	pc.OnConnectionStateChange(func(st webrtc.PeerConnectionState) {
		log.Debug("peer connection state", "state", st.String())
		if st == webrtc.PeerConnectionStateFailed {
			h.OnFailure(errors.New("peer connection failed"))
		}
	})

	dc, err := pc.CreateDataChannel(DataChannelLabel, nil)
	if err != nil {
		link.Close()
		return nil, fmt.Errorf("failed to create data channel: %w", err)
	}
	link.dc = dc

	dc.OnOpen(func() {
		log.Debug("data channel opened")
		h.OnOpen()
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		h.OnMessage(msg.Data)
	})
	dc.OnClose(func() {
		log.Debug("data channel closed")
		h.OnFailure(errors.New("data channel closed"))
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		link.Close()
		return nil, fmt.Errorf("failed to create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		link.Close()
		return nil, fmt.Errorf("failed to set local description: %w", err)
	}

	select {
	case <-webrtc.GatheringCompletePromise(pc):
	case <-ctx.Done():
		link.Close()
		return nil, ctx.Err()
	}

	answer, err := w.cfg.Exchanger.Exchange(ctx, cred, pc.LocalDescription().SDP)
	if err != nil {
		link.Close()
		return nil, fmt.Errorf("failed to send offer: %w", err)
	}

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answer,
	}); err != nil {
		link.Close()
		return nil, fmt.Errorf("failed to set remote description: %w", err)
	}
	return link, nil
}

// drain forwards remote RTP packets to the sink until the track ends.
func (w *WebRTC) drain(track *webrtc.TrackRemote) {
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				w.cfg.Logger.Debug("remote track ended", "error", err)
			}
			return
		}
		if err := w.cfg.Sink.WriteRTP(pkt); err != nil {
			w.cfg.Logger.Warn("audio sink rejected packet", "error", err)
			return
		}
	}
}

type webrtcLink struct {
	pc  *webrtc.PeerConnection
	dc  *webrtc.DataChannel
	mic MediaTrack

	closeOnce sync.Once
	closeErr  error
}

func (l *webrtcLink) Send(data []byte) error {
	if l.dc == nil || l.dc.ReadyState() != webrtc.DataChannelStateOpen {
		return errors.New("data channel not ready")
	}
	return l.dc.SendText(string(data))
}

// Close stops the microphone, then the channel, then the connection.
func (l *webrtcLink) Close() error {
	l.closeOnce.Do(func() {
		var errs []error
		if l.mic != nil {
			errs = append(errs, l.mic.Stop())
		}
		if l.dc != nil {
			errs = append(errs, l.dc.Close())
		}
		if l.pc != nil {
			errs = append(errs, l.pc.Close())
		}
		l.closeErr = errors.Join(errs...)
	})
	return l.closeErr
}
