package webrtc

import (
	"testing"
)

func TestICEServersFromEnvUnset(t *testing.T) {
	t.Setenv("MIRAGE_WEBRTC_ICE", "")
	if servers := iceServersFromEnv(); servers != nil {
		t.Fatalf("expected nil for unset env, got %v", servers)
	}
}

func TestICEServersFromEnvCommaList(t *testing.T) {
	t.Setenv("MIRAGE_WEBRTC_ICE", "stun:stun.example.org:3478, turn:turn.example.org:3478")
	t.Setenv("MIRAGE_WEBRTC_ICE_USERNAME", "mirage")
	t.Setenv("MIRAGE_WEBRTC_ICE_CREDENTIAL", "s3cret")
	servers := iceServersFromEnv()
	if len(servers) != 1 {
		t.Fatalf("expected one server entry, got %d", len(servers))
	}
	if len(servers[0].URLs) != 2 {
		t.Fatalf("expected two URLs, got %v", servers[0].URLs)
	}
	if servers[0].URLs[1] != "turn:turn.example.org:3478" {
		t.Fatalf("whitespace not trimmed: %q", servers[0].URLs[1])
	}
	if servers[0].Username != "mirage" {
		t.Fatalf("username not applied: %q", servers[0].Username)
	}
	if cred, ok := servers[0].Credential.(string); !ok || cred != "s3cret" {
		t.Fatalf("credential not applied: %v", servers[0].Credential)
	}
}

func TestICEServersFromEnvJSON(t *testing.T) {
	t.Setenv("MIRAGE_WEBRTC_ICE", `[{"urls":["stun:stun.example.org"]},{"urls":["turn:turn.example.org"],"username":"u","credential":"p"}]`)
	servers := iceServersFromEnv()
	if len(servers) != 2 {
		t.Fatalf("expected two server entries, got %d", len(servers))
	}
	if servers[1].Username != "u" {
		t.Fatalf("username not parsed: %q", servers[1].Username)
	}
}

func TestICEServersFromEnvBlankEntries(t *testing.T) {
	t.Setenv("MIRAGE_WEBRTC_ICE", " , ,")
	t.Setenv("MIRAGE_WEBRTC_ICE_USERNAME", "")
	t.Setenv("MIRAGE_WEBRTC_ICE_CREDENTIAL", "")
	if servers := iceServersFromEnv(); servers != nil {
		t.Fatalf("expected nil for blank entries, got %v", servers)
	}
}
