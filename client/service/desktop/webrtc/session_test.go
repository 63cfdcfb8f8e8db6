package webrtc

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pion/webrtc/v3"

	"Mirage/client/service/audio"
	"Mirage/client/service/desktop/encoder"
)

func videoSampleFixture() encoder.VideoSample {
	return encoder.VideoSample{
		Data:     []byte{0x10, 0x02, 0x00},
		Duration: time.Second / 24,
		Keyframe: true,
	}
}

func TestDecodeSessionDescription(t *testing.T) {
	desc, err := decodeSessionDescription(map[string]any{
		"type": "offer",
		"sdp":  "v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\ns=-\r\n",
	})
	if err != nil {
		t.Fatalf("decode valid offer: %v", err)
	}
	if desc.Type != webrtc.SDPTypeOffer {
		t.Fatalf("expected offer type, got %s", desc.Type)
	}
	if !strings.HasPrefix(desc.SDP, "v=0") {
		t.Fatalf("unexpected SDP: %q", desc.SDP)
	}
}

func TestDecodeSessionDescriptionRejectsEmptySDP(t *testing.T) {
	if _, err := decodeSessionDescription(map[string]any{"type": "offer", "sdp": "   "}); err == nil {
		t.Fatal("expected error for blank SDP")
	}
	if _, err := decodeSessionDescription(nil); err == nil {
		t.Fatal("expected error for nil payload")
	}
}

func TestSessionMethodsOnNilReceiver(t *testing.T) {
	var s *Session
	if err := s.SendDiffFrame([]byte{1}); !errors.Is(err, ErrDataChannelUnavailable) {
		t.Fatalf("expected ErrDataChannelUnavailable, got %v", err)
	}
	if err := s.SendVideoSample(videoSampleFixture()); !errors.Is(err, ErrVideoTrackUnavailable) {
		t.Fatalf("expected ErrVideoTrackUnavailable, got %v", err)
	}
	if err := s.SendAudioSample(audio.Sample{Data: []byte{0xfc}}); !errors.Is(err, ErrAudioTrackUnavailable) {
		t.Fatalf("expected ErrAudioTrackUnavailable, got %v", err)
	}
	s.Close() // must not panic
}

func TestSnapshotMetricsDuringClose(t *testing.T) {
	session := &Session{stats: newTransportMetrics()}
	session.stats.recordDataBytes(256)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			session.snapshotMetrics()
		}
	}()
	session.Close()
	<-done

	session.stats.recordDataBytes(64)
	stats, active := session.snapshotMetrics()
	if !active {
		t.Fatal("expected activity after recording bytes")
	}
	if stats.State != "closed" {
		t.Fatalf("state = %q, want closed", stats.State)
	}
}

func TestTransportMetricsSnapshot(t *testing.T) {
	m := newTransportMetrics()
	if _, active := m.snapshot("open"); active {
		t.Fatal("fresh metrics should report no activity")
	}
	m.recordDataBytes(128)
	m.recordVideoSample(4096, true)
	m.recordAudioSample(200)
	m.recordAudioSample(180)
	stats, active := m.snapshot("open")
	if !active {
		t.Fatal("expected activity after recording samples")
	}
	if stats.DataBytes != 128 || stats.VideoBytes != 4096 || stats.VideoKeyframes != 1 {
		t.Fatalf("unexpected counters: %+v", stats)
	}
	if stats.AudioBytes != 380 || stats.AudioPackets != 2 {
		t.Fatalf("unexpected audio counters: %+v", stats)
	}
	// Snapshot drains the interval.
	if _, active := m.snapshot("open"); active {
		t.Fatal("second snapshot should be empty")
	}
}
