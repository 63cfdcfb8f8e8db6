package webrtc

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/imroc/req/v3"
	jsoniter "github.com/json-iterator/go"
	"github.com/pion/webrtc/v3"

	"Mirage/client/config"
)

const iceFetchTimeout = 10 * time.Second

// loadICEServers resolves the ICE configuration in precedence order:
// MIRAGE_WEBRTC_ICE* environment variables, then short-lived credentials
// minted by the signaling server, then direct (no relays).
func loadICEServers(cfg config.Config) []webrtc.ICEServer {
	if servers := iceServersFromEnv(); len(servers) > 0 {
		return servers
	}
	if cfg.ServerURL != "" {
		servers, err := fetchMintedICEServers(cfg.ServerURL)
		if err != nil {
			logger.Warnf("minted ICE fetch failed, continuing without relays: %v", err)
			return nil
		}
		return servers
	}
	return nil
}

func iceServersFromEnv() []webrtc.ICEServer {
	raw := strings.TrimSpace(os.Getenv("MIRAGE_WEBRTC_ICE"))
	if raw == "" {
		return nil
	}
	if strings.HasPrefix(raw, "[") {
		var parsed []webrtc.ICEServer
		if err := jsoniter.UnmarshalFromString(raw, &parsed); err != nil {
			logger.Warnf("failed to parse MIRAGE_WEBRTC_ICE JSON: %v", err)
			return nil
		}
		return parsed
	}
	server := webrtc.ICEServer{
		URLs: filterEmpty(strings.Split(raw, ",")),
	}
	if user := strings.TrimSpace(os.Getenv("MIRAGE_WEBRTC_ICE_USERNAME")); user != "" {
		server.Username = user
	}
	if cred := strings.TrimSpace(os.Getenv("MIRAGE_WEBRTC_ICE_CREDENTIAL")); cred != "" {
		server.Credential = cred
	}
	if len(server.URLs) == 0 {
		return nil
	}
	return []webrtc.ICEServer{server}
}

type mintedICEResponse struct {
	Servers []struct {
		URLs           []string `json:"urls"`
		Username       string   `json:"username,omitempty"`
		Credential     string   `json:"credential,omitempty"`
		CredentialType string   `json:"credentialType,omitempty"`
	} `json:"servers"`
	ExpiresAt int64 `json:"expiresAt"`
}

// fetchMintedICEServers asks the signaling server for TURN credentials tied
// to this device's machine ID.
func fetchMintedICEServers(baseURL string) ([]webrtc.ICEServer, error) {
	deviceID, err := machineid.ProtectedID("mirage")
	if err != nil {
		return nil, fmt.Errorf("derive device id: %w", err)
	}
	client := req.C().SetTimeout(iceFetchTimeout)
	var minted mintedICEResponse
	resp, err := client.R().
		SetQueryParam("desktop", deviceID).
		SetResult(&minted).
		Get(strings.TrimRight(baseURL, "/") + "/api/desktop/webrtc/ice")
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("ice endpoint returned %s", resp.Status)
	}
	servers := make([]webrtc.ICEServer, 0, len(minted.Servers))
	for _, srv := range minted.Servers {
		urls := filterEmpty(srv.URLs)
		if len(urls) == 0 {
			continue
		}
		servers = append(servers, webrtc.ICEServer{
			URLs:       urls,
			Username:   srv.Username,
			Credential: srv.Credential,
		})
	}
	logger.Infof("loaded %d minted ICE server(s)", len(servers))
	return servers, nil
}
