package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
)

// ErrTrackStopped is returned when writing to a stopped track.
var ErrTrackStopped = errors.New("transport: track stopped")

// MediaSource captures local audio for a WebRTC session.
type MediaSource interface {
	// Capture acquires a local audio track. A failure here (no device,
	// permission denied) aborts negotiation.
	Capture(ctx context.Context) (MediaTrack, error)
}

// MediaTrack is a captured local track.
type MediaTrack interface {
	// Track returns the track to attach to the peer connection.
	Track() webrtc.TrackLocal

	// Stop ends capture. It is safe to call more than once.
	Stop() error
}

// SampleSource captures Opus tracks that are fed by the caller, for hosts
// without a microphone or for piping pre-recorded audio.
type SampleSource struct {
	mu     sync.Mutex
	tracks []*SampleTrack
}

// NewSampleSource creates a SampleSource.
func NewSampleSource() *SampleSource {
	return &SampleSource{}
}

// Capture creates a new Opus sample track.
func (s *SampleSource) Capture(ctx context.Context) (MediaTrack, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio",
		"rolecoach-mic",
	)
	if err != nil {
		return nil, err
	}
	track := &SampleTrack{track: t}
	s.mu.Lock()
	s.tracks = append(s.tracks, track)
	s.mu.Unlock()
	return track, nil
}

// Latest returns the most recently captured track, or nil.
func (s *SampleSource) Latest() *SampleTrack {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.tracks) == 0 {
		return nil
	}
	return s.tracks[len(s.tracks)-1]
}

// SampleTrack is a local Opus track written sample by sample.
type SampleTrack struct {
	track   *webrtc.TrackLocalStaticSample
	stopped atomic.Bool
}

// Track implements MediaTrack.
func (t *SampleTrack) Track() webrtc.TrackLocal {
	return t.track
}

// WriteSample writes one encoded Opus frame.
func (t *SampleTrack) WriteSample(s media.Sample) error {
	if t.stopped.Load() {
		return ErrTrackStopped
	}
	return t.track.WriteSample(s)
}

// Stop implements MediaTrack.
func (t *SampleTrack) Stop() error {
	t.stopped.Store(true)
	return nil
}

// Stopped reports whether Stop was called.
func (t *SampleTrack) Stopped() bool {
	return t.stopped.Load()
}

// AudioSink consumes the counterparty's audio as RTP packets.
type AudioSink interface {
	WriteRTP(pkt *rtp.Packet) error
}

// CountingSink discards remote audio and counts what it received.
type CountingSink struct {
	packets atomic.Int64
	bytes   atomic.Int64
}

// WriteRTP implements AudioSink.
func (c *CountingSink) WriteRTP(pkt *rtp.Packet) error {
	c.packets.Add(1)
	c.bytes.Add(int64(len(pkt.Payload)))
	return nil
}

// Packets returns the number of packets received.
func (c *CountingSink) Packets() int64 {
	return c.packets.Load()
}

// Bytes returns the total payload size received.
func (c *CountingSink) Bytes() int64 {
	return c.bytes.Load()
}
