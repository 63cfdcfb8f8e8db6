package desktop

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pion/webrtc/v3"
)

var errInvalidSignal = errors.New("invalid WebRTC signal payload")

type webRTCSignalKind string

const (
	signalOffer     webRTCSignalKind = "offer"
	signalAnswer    webRTCSignalKind = "answer"
	signalCandidate webRTCSignalKind = "candidate"
)

// Agent candidates arriving before the browser signalled readiness are held
// back; anything beyond this cap is dropped.
const maxQueuedCandidates = 32

// signalSession tracks how far one desktop session got through the
// offer/answer exchange so late candidates can be ordered correctly.
type signalSession struct {
	offerAt      time.Time
	answerAt     time.Time
	candidateAt  time.Time
	browserReady bool
	agentReady   bool
	expiresAt    time.Time
	pending      []map[string]any
}

type webrtcController struct {
	mu       sync.Mutex
	sessions map[string]*signalSession
	ttl      time.Duration
}

func newWebRTCController(ttl time.Duration) *webrtcController {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &webrtcController{
		sessions: make(map[string]*signalSession),
		ttl:      ttl,
	}
}

// ensure returns the live state for a desktop session, creating it and
// sweeping expired entries as a side effect.
func (c *webrtcController) ensure(desktop string) *signalSession {
	now := time.Now()
	for key, state := range c.sessions {
		if now.After(state.expiresAt) {
			delete(c.sessions, key)
		}
	}
	state, ok := c.sessions[desktop]
	if !ok {
		state = &signalSession{}
		c.sessions[desktop] = state
	}
	state.expiresAt = now.Add(c.ttl)
	return state
}

func (c *webrtcController) recordOffer(desktop string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	state := c.ensure(desktop)
	// A fresh offer restarts the exchange.
	state.offerAt = time.Now()
	state.browserReady = false
	state.agentReady = false
	state.pending = nil
}

func (c *webrtcController) recordAnswer(desktop string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	state := c.ensure(desktop)
	state.answerAt = time.Now()
	state.agentReady = true
}

func (c *webrtcController) recordCandidate(desktop string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensure(desktop).candidateAt = time.Now()
}

// queueAgentCandidate holds an agent candidate back until the browser is
// ready. Returns false when the candidate should be forwarded immediately.
func (c *webrtcController) queueAgentCandidate(desktop string, candidate map[string]any) bool {
	if candidate == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	state := c.ensure(desktop)
	if state.browserReady {
		return false
	}
	if len(state.pending) >= maxQueuedCandidates {
		return true
	}
	state.pending = append(state.pending, candidate)
	return true
}

// markBrowserReady flips the session to ready and drains held candidates.
func (c *webrtcController) markBrowserReady(desktop string) []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	state := c.ensure(desktop)
	state.browserReady = true
	queued := state.pending
	state.pending = nil
	return queued
}

func (c *webrtcController) snapshot(desktop string) signalSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	if state, ok := c.sessions[desktop]; ok {
		snap := *state
		snap.pending = append([]map[string]any(nil), state.pending...)
		return snap
	}
	return signalSession{}
}

func (c *webrtcController) remove(desktop string) {
	if c == nil || desktop == "" {
		return
	}
	c.mu.Lock()
	delete(c.sessions, desktop)
	c.mu.Unlock()
}

// normalizeSignal validates a raw signal payload by round-tripping it through
// pion's canonical types, so only well-formed SDP/candidates reach the peers.
func normalizeSignal(kind webRTCSignalKind, payload map[string]any) (map[string]any, error) {
	switch kind {
	case signalOffer, signalAnswer:
		return normalizeSDP(kind, payload)
	case signalCandidate:
		return normalizeCandidate(payload)
	default:
		return nil, fmt.Errorf("%w: unsupported kind %q", errInvalidSignal, kind)
	}
}

func normalizeSDP(kind webRTCSignalKind, payload map[string]any) (map[string]any, error) {
	if payload == nil {
		return nil, fmt.Errorf("%w: missing SDP payload", errInvalidSignal)
	}
	rawSDP, _ := payload["sdp"].(string)
	if strings.TrimSpace(rawSDP) == "" {
		return nil, fmt.Errorf("%w: empty SDP", errInvalidSignal)
	}
	descType, err := toSDPType(string(kind))
	if err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(webrtc.SessionDescription{
		Type: descType,
		SDP:  rawSDP,
	})
	if err != nil {
		return nil, err
	}
	var normalized webrtc.SessionDescription
	if err := json.Unmarshal(encoded, &normalized); err != nil {
		return nil, err
	}
	return map[string]any{
		"type": normalized.Type.String(),
		"sdp":  normalized.SDP,
	}, nil
}

func normalizeCandidate(payload map[string]any) (map[string]any, error) {
	if payload == nil {
		return nil, fmt.Errorf("%w: missing ICE payload", errInvalidSignal)
	}
	rawCandidate, _ := payload["candidate"].(string)
	if strings.TrimSpace(rawCandidate) == "" {
		return nil, fmt.Errorf("%w: empty ICE candidate", errInvalidSignal)
	}
	init := webrtc.ICECandidateInit{
		Candidate: rawCandidate,
	}
	if mid, ok := payload["sdpMid"].(string); ok && mid != "" {
		init.SDPMid = &mid
	}
	if mle, ok := payload["sdpMLineIndex"].(float64); ok {
		val := uint16(mle)
		init.SDPMLineIndex = &val
	}
	result := map[string]any{
		"candidate": init.Candidate,
	}
	if init.SDPMid != nil {
		result["sdpMid"] = *init.SDPMid
	}
	if init.SDPMLineIndex != nil {
		result["sdpMLineIndex"] = *init.SDPMLineIndex
	}
	return result, nil
}

func toSDPType(kind string) (webrtc.SDPType, error) {
	switch strings.ToLower(kind) {
	case "offer":
		return webrtc.SDPTypeOffer, nil
	case "answer":
		return webrtc.SDPTypeAnswer, nil
	case "pranswer":
		return webrtc.SDPTypePranswer, nil
	case "rollback":
		return webrtc.SDPTypeRollback, nil
	default:
		return webrtc.SDPTypeOffer, fmt.Errorf("%w: unknown SDP type %q", errInvalidSignal, kind)
	}
}

func toSignalKind(kind any) (webRTCSignalKind, error) {
	raw, ok := kind.(string)
	if !ok {
		return "", fmt.Errorf("%w: invalid kind %v", errInvalidSignal, kind)
	}
	switch k := webRTCSignalKind(strings.ToLower(raw)); k {
	case signalOffer, signalAnswer, signalCandidate:
		return k, nil
	default:
		return "", fmt.Errorf("%w: unsupported kind %q", errInvalidSignal, raw)
	}
}

func mapFromAny(value any) (map[string]any, bool) {
	m, ok := value.(map[string]any)
	return m, ok
}
