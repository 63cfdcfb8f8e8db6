package desktop

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestWebRTCControllerStateFlow(t *testing.T) {
	ctrl := newWebRTCController(500 * time.Millisecond)
	desktopID := "desk-123"

	ctrl.recordOffer(desktopID)
	snap := ctrl.snapshot(desktopID)
	if snap.offerAt.IsZero() {
		t.Fatal("expected offer timestamp")
	}
	if snap.agentReady || snap.browserReady {
		t.Fatal("nothing should be ready right after the offer")
	}

	// Agent candidates queue until the browser says it is ready.
	if !ctrl.queueAgentCandidate(desktopID, map[string]any{"candidate": "cand-1"}) {
		t.Fatal("candidate should have been queued")
	}
	ctrl.recordAnswer(desktopID)
	if snap = ctrl.snapshot(desktopID); !snap.agentReady {
		t.Fatal("answer should mark the agent ready")
	}

	queued := ctrl.markBrowserReady(desktopID)
	if len(queued) != 1 || queued[0]["candidate"] != "cand-1" {
		t.Fatalf("expected the queued candidate back, got %v", queued)
	}
	if ctrl.queueAgentCandidate(desktopID, map[string]any{"candidate": "cand-2"}) {
		t.Fatal("candidates should flow directly once the browser is ready")
	}

	// A new offer resets readiness and the queue.
	ctrl.recordOffer(desktopID)
	snap = ctrl.snapshot(desktopID)
	if snap.agentReady || snap.browserReady || len(snap.pending) != 0 {
		t.Fatalf("offer should reset session state: %+v", snap)
	}
}

func TestWebRTCControllerQueueCap(t *testing.T) {
	ctrl := newWebRTCController(time.Minute)
	ctrl.recordOffer("desk-1")
	for i := 0; i < maxQueuedCandidates+5; i++ {
		ctrl.queueAgentCandidate("desk-1", map[string]any{"candidate": fmt.Sprintf("c-%d", i)})
	}
	if queued := ctrl.markBrowserReady("desk-1"); len(queued) != maxQueuedCandidates {
		t.Fatalf("expected queue capped at %d, got %d", maxQueuedCandidates, len(queued))
	}
}

func TestWebRTCControllerExpiry(t *testing.T) {
	ctrl := newWebRTCController(10 * time.Millisecond)
	ctrl.recordOffer("desk-1")
	time.Sleep(30 * time.Millisecond)
	// Touching another session sweeps the expired one.
	ctrl.recordOffer("desk-2")
	if snap := ctrl.snapshot("desk-1"); !snap.offerAt.IsZero() {
		t.Fatal("expired session should have been swept")
	}
}

func TestNormalizeSignal(t *testing.T) {
	payload, err := normalizeSignal(signalOffer, map[string]any{
		"sdp":   "v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\ns=-\r\n",
		"extra": "stripped",
	})
	if err != nil {
		t.Fatalf("normalize offer: %v", err)
	}
	if payload["type"] != "offer" {
		t.Fatalf("expected offer type, got %v", payload["type"])
	}
	if _, ok := payload["extra"]; ok {
		t.Fatal("unknown fields must be stripped")
	}

	if _, err := normalizeSignal(signalOffer, map[string]any{"sdp": " "}); !errors.Is(err, errInvalidSignal) {
		t.Fatalf("expected errInvalidSignal for blank SDP, got %v", err)
	}
	if _, err := normalizeSignal("describe", nil); !errors.Is(err, errInvalidSignal) {
		t.Fatalf("expected errInvalidSignal for unknown kind, got %v", err)
	}
}

func TestNormalizeCandidate(t *testing.T) {
	mid := "0"
	payload, err := normalizeSignal(signalCandidate, map[string]any{
		"candidate":     "candidate:1 1 udp 2122260223 192.0.2.1 54400 typ host",
		"sdpMid":        mid,
		"sdpMLineIndex": float64(0),
	})
	if err != nil {
		t.Fatalf("normalize candidate: %v", err)
	}
	if payload["sdpMid"] != mid {
		t.Fatalf("sdpMid lost: %v", payload)
	}
	if idx, ok := payload["sdpMLineIndex"].(uint16); !ok || idx != 0 {
		t.Fatalf("sdpMLineIndex mangled: %v", payload["sdpMLineIndex"])
	}
	if _, err := normalizeSignal(signalCandidate, map[string]any{"candidate": ""}); !errors.Is(err, errInvalidSignal) {
		t.Fatalf("expected errInvalidSignal for empty candidate, got %v", err)
	}
}

func TestToSignalKind(t *testing.T) {
	kind, err := toSignalKind("OFFER")
	if err != nil || kind != signalOffer {
		t.Fatalf("expected offer, got %v/%v", kind, err)
	}
	if _, err := toSignalKind(42); !errors.Is(err, errInvalidSignal) {
		t.Fatalf("expected errInvalidSignal for non-string kind, got %v", err)
	}
	if _, err := toSignalKind("renegotiate"); !errors.Is(err, errInvalidSignal) {
		t.Fatalf("expected errInvalidSignal for unknown kind, got %v", err)
	}
}
