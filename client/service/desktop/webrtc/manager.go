package webrtc

import (
	"fmt"
	"image"
	"strings"
	"sync"
	"time"

	"github.com/kataras/golog"
	"github.com/pion/webrtc/v3"

	"Mirage/client/config"
	"Mirage/client/service/audio"
	"Mirage/client/service/desktop/encoder"
)

// SignalKind enumerates the WebRTC signal payloads the agent understands.
type SignalKind string

const (
	SignalOffer     SignalKind = "offer"
	SignalAnswer    SignalKind = "answer"
	SignalCandidate SignalKind = "candidate"
)

const metricsReportInterval = 5 * time.Second

var logger = golog.Child("[desktop-webrtc]")

type signalSender func(kind SignalKind, payload map[string]any) error

// Manager orchestrates per-desktop WebRTC sessions and the shared encode
// pipelines feeding them.
type Manager struct {
	mu        sync.Mutex
	sessions  map[string]*Session
	iceConfig webrtc.Configuration
	video     *videoPipeline
	audio     *audio.Pipeline
}

var (
	managerOnce sync.Once
	managerInst *Manager
)

// Instance returns the singleton manager.
func Instance() *Manager {
	managerOnce.Do(func() {
		var video *videoPipeline
		if name := encoder.Instance().PreferredVideoEncoder(); name != "" {
			video = newVideoPipeline(name)
		}
		cfg := config.Current()
		managerInst = &Manager{
			sessions: make(map[string]*Session),
			iceConfig: webrtc.Configuration{
				ICEServers: loadICEServers(cfg),
			},
			video: video,
			audio: audio.NewPipeline(audio.PipelineConfig{
				Bitrate:    int32(cfg.AudioBitrate),
				Complexity: int32(cfg.AudioComplexity),
			}),
		}
		if video != nil {
			video.start(managerInst)
		}
		if err := managerInst.audio.Start(managerInst.broadcastAudioSample); err != nil {
			logger.Warnf("audio pipeline unavailable: %v", err)
			managerInst.audio = nil
		}
		go managerInst.reportMetrics()
	})
	return managerInst
}

// reportMetrics logs per-session transport counters on a fixed cadence.
// Intervals without activity stay quiet.
func (m *Manager) reportMetrics() {
	ticker := time.NewTicker(metricsReportInterval)
	defer ticker.Stop()
	for range ticker.C {
		for _, session := range m.snapshotSessions() {
			stats, active := session.snapshotMetrics()
			if !active {
				continue
			}
			logger.Debugf("webrtc transport desktop=%s state=%s data=%dB drops=%d video=%dB frames=%d key=%d audio=%dB packets=%d",
				session.desktopID, stats.State,
				stats.DataBytes, stats.DataDrops+stats.VideoDrops+stats.AudioDrops,
				stats.VideoBytes, stats.VideoFrames, stats.VideoKeyframes,
				stats.AudioBytes, stats.AudioPackets)
		}
	}
}

// HandleSignal routes signalling messages (offer, candidate) to the correct session.
func (m *Manager) HandleSignal(desktopID, eventID string, kind SignalKind, payload map[string]any, sender signalSender) error {
	if m == nil {
		return fmt.Errorf("webrtc manager not initialized")
	}
	if desktopID == "" {
		return fmt.Errorf("missing desktop id")
	}
	switch kind {
	case SignalOffer:
		return m.handleOffer(desktopID, eventID, payload, sender)
	case SignalCandidate:
		return m.handleCandidate(desktopID, payload)
	default:
		return fmt.Errorf("unsupported WebRTC signal %q", kind)
	}
}

func (m *Manager) handleOffer(desktopID, eventID string, payload map[string]any, sender signalSender) error {
	if sender == nil {
		return fmt.Errorf("missing signal sender")
	}
	session, err := NewSession(desktopID, eventID, m.iceConfig, sender, SessionMedia{
		Video: m.videoEnabled(),
		Audio: m.audioEnabled(),
	})
	if err != nil {
		return err
	}
	if err := session.AcceptOffer(payload); err != nil {
		session.Close()
		return err
	}
	m.mu.Lock()
	if existing, ok := m.sessions[desktopID]; ok && existing != nil {
		existing.Close()
	}
	m.sessions[desktopID] = session
	m.mu.Unlock()
	// A joiner needs an intra frame before deltas make sense.
	if m.video != nil {
		m.video.requestKeyframe()
	}
	logger.Infof("webrtc session established desktop=%s", desktopID)
	return nil
}

func (m *Manager) handleCandidate(desktopID string, payload map[string]any) error {
	m.mu.Lock()
	session := m.sessions[desktopID]
	m.mu.Unlock()
	if session == nil {
		return fmt.Errorf("no active WebRTC session for desktop %s", desktopID)
	}
	return session.AddRemoteCandidate(payload)
}

// CloseSession tears down the session associated with the given desktop.
func (m *Manager) CloseSession(desktopID string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	session := m.sessions[desktopID]
	delete(m.sessions, desktopID)
	m.mu.Unlock()
	if session != nil {
		session.Close()
		logger.Infof("webrtc session closed desktop=%s", desktopID)
	}
}

// CloseAll tears down every active session and stops the pipelines.
func (m *Manager) CloseAll() {
	if m == nil {
		return
	}
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for key, session := range m.sessions {
		if session != nil {
			sessions = append(sessions, session)
		}
		delete(m.sessions, key)
	}
	m.mu.Unlock()
	for _, session := range sessions {
		session.Close()
	}
	if m.video != nil {
		m.video.stop()
	}
	if m.audio != nil {
		m.audio.Stop()
	}
}

// SendDiffBlocks forwards encoded block packets to every session's data
// channel. Implements the desktop streamer's sink.
func (m *Manager) SendDiffBlocks(blocks [][]byte) {
	if m == nil || len(blocks) == 0 {
		return
	}
	for _, session := range m.snapshotSessions() {
		for _, packet := range blocks {
			if err := session.SendDiffFrame(packet); err != nil && err != ErrDataChannelUnavailable {
				logger.Debugf("webrtc diff drop desktop=%s: %v", session.desktopID, err)
				break
			}
		}
	}
}

// PublishFrame pushes a captured RGBA frame into the video pipeline.
// Implements the desktop streamer's sink.
func (m *Manager) PublishFrame(img *image.RGBA, fps int) {
	if m == nil || m.video == nil {
		return
	}
	m.video.submit(img, fps)
}

// PublishAudioFrame pushes a PCM frame into the audio pipeline.
func (m *Manager) PublishAudioFrame(frame audio.Frame) {
	if m == nil || m.audio == nil {
		return
	}
	m.audio.Submit(frame)
}

// Configuration exposes the ICE/TURN configuration used by the manager.
func (m *Manager) Configuration() webrtc.Configuration {
	if m == nil {
		return webrtc.Configuration{}
	}
	return m.iceConfig
}

func (m *Manager) snapshotSessions() []*Session {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		if session != nil {
			sessions = append(sessions, session)
		}
	}
	m.mu.Unlock()
	return sessions
}

func (m *Manager) broadcastVideoSample(sample encoder.VideoSample) {
	if len(sample.Data) == 0 {
		return
	}
	for _, session := range m.snapshotSessions() {
		if err := session.SendVideoSample(sample); err != nil && err != ErrVideoTrackUnavailable {
			logger.Debugf("webrtc video sample drop desktop=%s: %v", session.desktopID, err)
		}
	}
}

func (m *Manager) broadcastAudioSample(sample audio.Sample) {
	if len(sample.Data) == 0 || sample.Silent {
		return
	}
	for _, session := range m.snapshotSessions() {
		if err := session.SendAudioSample(sample); err != nil && err != ErrAudioTrackUnavailable {
			logger.Debugf("webrtc audio sample drop desktop=%s: %v", session.desktopID, err)
		}
	}
}

func (m *Manager) videoEnabled() bool {
	return m != nil && m.video != nil
}

func (m *Manager) audioEnabled() bool {
	return m != nil && m.audio != nil
}

func filterEmpty(values []string) []string {
	result := make([]string, 0, len(values))
	for _, val := range values {
		val = strings.TrimSpace(val)
		if val != "" {
			result = append(result, val)
		}
	}
	return result
}
