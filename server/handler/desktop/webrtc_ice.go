package desktop

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"Mirage/server/config"
)

const defaultCredentialTTL = 10 * time.Minute

var credentialIssuer = newIceCredentialIssuer(config.Config.WebRTC)

// iceCredentialIssuer mints short-lived TURN credentials (TURN REST API
// scheme: username "<expiry>:<session>", credential HMAC-SHA1 over the
// shared secret) from the configured server templates.
type iceCredentialIssuer struct {
	ttl       time.Duration
	relayHint string
	templates []config.WebRTCIceServer
}

// mintedIceServer is one entry of a minted bundle, shaped for the browser's
// RTCPeerConnection configuration and the agent's ICE fetch.
type mintedIceServer struct {
	URLs           []string `json:"urls"`
	Username       string   `json:"username,omitempty"`
	Credential     string   `json:"credential,omitempty"`
	CredentialType string   `json:"credentialType,omitempty"`
}

type mintedIceBundle struct {
	servers   []mintedIceServer
	issuedAt  time.Time
	expiresAt time.Time
	ttl       time.Duration
	relayHint string
}

func newIceCredentialIssuer(cfg *config.WebRTCConfig) *iceCredentialIssuer {
	if cfg == nil || !cfg.Enabled || len(cfg.Servers) == 0 {
		return nil
	}
	issuer := &iceCredentialIssuer{
		ttl:       parseCredentialTTL(cfg.CredentialTTL),
		relayHint: strings.TrimSpace(cfg.RelayHint),
	}
	for _, srv := range cfg.Servers {
		srv.URLs = trimURLs(srv.URLs)
		if len(srv.URLs) == 0 {
			continue
		}
		issuer.templates = append(issuer.templates, srv)
	}
	if len(issuer.templates) == 0 {
		return nil
	}
	return issuer
}

func trimURLs(urls []string) []string {
	result := make([]string, 0, len(urls))
	for _, raw := range urls {
		if trimmed := strings.TrimSpace(raw); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// parseCredentialTTL accepts Go duration strings or bare seconds.
func parseCredentialTTL(raw string) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return defaultCredentialTTL
	}
	if dur, err := time.ParseDuration(raw); err == nil && dur > 0 {
		return dur
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil && secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}
	return defaultCredentialTTL
}

func (i *iceCredentialIssuer) mint(desktopID string) (mintedIceBundle, bool) {
	if i == nil || desktopID == "" {
		return mintedIceBundle{}, false
	}
	issuedAt := time.Now().UTC()
	expiresAt := issuedAt.Add(i.ttl)
	servers := make([]mintedIceServer, 0, len(i.templates))
	for _, tmpl := range i.templates {
		entry := mintedIceServer{
			URLs:           append([]string(nil), tmpl.URLs...),
			Username:       strings.TrimSpace(tmpl.Username),
			Credential:     strings.TrimSpace(tmpl.Credential),
			CredentialType: strings.TrimSpace(tmpl.CredentialType),
		}
		if secret := strings.TrimSpace(tmpl.CredentialSecret); secret != "" {
			entry.Username = fmt.Sprintf("%d:%s", expiresAt.Unix(), desktopID)
			entry.Credential = turnCredentialHMAC(entry.Username, secret)
		}
		servers = append(servers, entry)
	}
	if len(servers) == 0 {
		return mintedIceBundle{}, false
	}
	return mintedIceBundle{
		servers:   servers,
		issuedAt:  issuedAt,
		expiresAt: expiresAt,
		ttl:       i.ttl,
		relayHint: i.relayHint,
	}, true
}

func turnCredentialHMAC(username, secret string) string {
	if username == "" || secret == "" {
		return ""
	}
	h := hmac.New(sha1.New, []byte(secret))
	_, _ = h.Write([]byte(username))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// enrichDesktopWebRTCCaps injects minted ICE servers and token metadata into
// the capability payload forwarded to one viewer.
func enrichDesktopWebRTCCaps(desktopID string, caps map[string]any) map[string]any {
	bundle, ok := credentialIssuer.mint(desktopID)
	if !ok {
		return caps
	}
	if caps == nil {
		caps = make(map[string]any)
	}
	webrtcCaps, _ := mapFromAny(caps["webrtc"])
	if webrtcCaps == nil {
		webrtcCaps = map[string]any{}
		caps["webrtc"] = webrtcCaps
	}
	webrtcCaps["iceServers"] = append([]mintedIceServer(nil), bundle.servers...)
	webrtcCaps["token"] = map[string]any{
		"issuedAt":   bundle.issuedAt.Unix(),
		"expiresAt":  bundle.expiresAt.Unix(),
		"ttlSeconds": int64(bundle.ttl / time.Second),
	}
	if bundle.relayHint != "" {
		webrtcCaps["relayHint"] = bundle.relayHint
	}
	return caps
}
