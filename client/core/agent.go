// Package core runs the agent side of the signaling link: it keeps a
// websocket to the server, reports capabilities, and routes WebRTC signals
// into the streaming stack.
package core

import (
	"fmt"
	"image"
	"net/url"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/kataras/golog"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"Mirage/client/config"
	"Mirage/client/service/audio"
	"Mirage/client/service/desktop"
	"Mirage/client/service/desktop/capture"
	"Mirage/client/service/desktop/encoder"
	"Mirage/client/service/desktop/webrtc"
)

const (
	reconnectBaseDelay = 3 * time.Second
	reconnectMaxDelay  = time.Minute
	writeTimeout       = 10 * time.Second
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var logger = golog.Child("[core]")

// packet mirrors the server's control envelope.
type packet struct {
	Act     string         `json:"act"`
	Desktop string         `json:"desktop,omitempty"`
	Code    int            `json:"code,omitempty"`
	Msg     string         `json:"msg,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

// Agent owns the server link and the local capture/encode machinery.
type Agent struct {
	deviceID string
	cfg      config.Config

	mu       sync.Mutex
	conn     *websocket.Conn
	source   capture.Source
	streamer *desktop.Streamer
	quit     chan struct{}

	// wmu serializes websocket writes: the capture loop ships binary
	// frames while the read loop answers control packets, and the
	// connection allows only one concurrent writer.
	wmu sync.Mutex
}

// NewAgent prepares the agent from the process configuration.
func NewAgent() (*Agent, error) {
	cfg := config.Current()
	if cfg.ServerURL == "" {
		return nil, fmt.Errorf("core: server URL not configured")
	}
	deviceID, err := machineid.ProtectedID("mirage")
	if err != nil {
		return nil, fmt.Errorf("core: derive device id: %w", err)
	}
	return &Agent{
		deviceID: deviceID,
		cfg:      cfg,
		quit:     make(chan struct{}),
	}, nil
}

// Run connects and serves until Stop is called, reconnecting with backoff.
func (a *Agent) Run() error {
	if err := a.startStreaming(); err != nil {
		return err
	}
	delay := reconnectBaseDelay
	for {
		select {
		case <-a.quit:
			return nil
		default:
		}
		if err := a.serveOnce(); err != nil {
			logger.Warnf("server link lost: %v", err)
		}
		select {
		case <-a.quit:
			return nil
		case <-time.After(delay):
		}
		delay *= 2
		if delay > reconnectMaxDelay {
			delay = reconnectMaxDelay
		}
	}
}

// Stop tears down the link and the capture loop.
func (a *Agent) Stop() {
	a.mu.Lock()
	conn := a.conn
	streamer := a.streamer
	a.conn = nil
	a.streamer = nil
	a.mu.Unlock()
	close(a.quit)
	if conn != nil {
		_ = conn.Close()
	}
	if streamer != nil {
		streamer.Stop()
	}
	webrtc.Instance().CloseAll()
}

func (a *Agent) startStreaming() error {
	source, err := a.openSource()
	if err != nil {
		return err
	}
	streamer, err := desktop.NewStreamer(source, a)
	if err != nil {
		source.Close()
		return err
	}
	if a.cfg.Preset != "" {
		if err := desktop.ApplyPreset(a.cfg.Preset); err != nil {
			logger.Warnf("configured preset rejected: %v", err)
		}
	}
	desktop.SetFPSCap(a.cfg.FPSCap)
	a.mu.Lock()
	a.source = source
	a.streamer = streamer
	a.mu.Unlock()
	streamer.Start()
	go a.audioLoop()
	return nil
}

func (a *Agent) openSource() (capture.Source, error) {
	if a.cfg.MockCapture {
		logger.Info("using mock capture source")
		return capture.NewMockSource(1280, 720), nil
	}
	return capture.NewScreenSource(a.cfg.Display)
}

// audioLoop feeds the test tone into the audio pipeline on the frame cadence.
// Real microphone capture would slot in here behind the same Source interface.
func (a *Agent) audioLoop() {
	source := audio.NewSineSource(440, 0.2)
	defer source.Close()
	ticker := time.NewTicker(audio.FrameDuration)
	defer ticker.Stop()
	manager := webrtc.Instance()
	for {
		select {
		case <-a.quit:
			return
		case <-ticker.C:
			frame, err := source.NextFrame()
			if err != nil {
				return
			}
			manager.PublishAudioFrame(frame)
		}
	}
}

// SendDiffBlocks implements desktop.FrameSink: block packets go to both the
// server relay (binary websocket) and any direct WebRTC data channels.
func (a *Agent) SendDiffBlocks(blocks [][]byte) {
	webrtc.Instance().SendDiffBlocks(blocks)
	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()
	if conn == nil {
		return
	}
	for _, block := range blocks {
		if err := a.writeMessage(conn, websocket.BinaryMessage, block); err != nil {
			logger.Debugf("relay write failed: %v", err)
			return
		}
	}
}

// PublishFrame implements desktop.FrameSink.
func (a *Agent) PublishFrame(img *image.RGBA, fps int) {
	webrtc.Instance().PublishFrame(img, fps)
}

// PublishMetrics implements desktop.MetricsSink: interval stats go to the
// server for viewer-facing aggregation.
func (a *Agent) PublishMetrics(data map[string]any) {
	a.sendPacket(packet{Act: "DESKTOP_METRICS", Data: data})
}

func (a *Agent) serveOnce() error {
	endpoint, err := agentEndpoint(a.cfg.ServerURL, a.deviceID)
	if err != nil {
		return err
	}
	conn, _, err := websocket.DefaultDialer.Dial(endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", endpoint, err)
	}
	a.mu.Lock()
	a.conn = conn
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		if a.conn == conn {
			a.conn = nil
		}
		a.mu.Unlock()
		_ = conn.Close()
	}()
	logger.Infof("connected to %s", endpoint)
	a.sendPacket(packet{Act: "AGENT_HELLO", Data: helloPayload()})
	a.sendPacket(packet{Act: "DESKTOP_CAPS", Data: capsPayload()})
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var pack packet
		if err := json.Unmarshal(data, &pack); err != nil {
			logger.Warnf("malformed server packet: %v", err)
			continue
		}
		a.handlePacket(pack)
	}
}

func (a *Agent) handlePacket(pack packet) {
	switch pack.Act {
	case "DESKTOP_INIT":
		a.sendPacket(packet{Act: "DESKTOP_CAPS", Desktop: pack.Desktop, Data: capsPayload()})
	case "DESKTOP_PING":
		a.sendPacket(packet{Act: "DESKTOP_PONG", Desktop: pack.Desktop})
	case "DESKTOP_SET_QUALITY":
		key, _ := pack.Data["preset"].(string)
		if err := desktop.ApplyPreset(key); err != nil {
			a.sendPacket(packet{Act: "DESKTOP_SET_QUALITY", Desktop: pack.Desktop, Code: 1, Msg: err.Error()})
			return
		}
		a.sendPacket(packet{Act: "DESKTOP_SET_QUALITY", Desktop: pack.Desktop, Data: map[string]any{
			"preset": key,
		}})
	case "DESKTOP_SHOT":
		// Viewers poll this only when streaming stalls; the block relay
		// already carries full frames, so decline rather than duplicate.
		a.sendPacket(packet{Act: "DESKTOP_SHOT", Desktop: pack.Desktop, Code: 1, Msg: "single-shot capture not supported"})
	case "DESKTOP_MONITORS":
		a.sendPacket(packet{Act: "DESKTOP_MONITORS", Desktop: pack.Desktop, Data: monitorsPayload()})
	case "DESKTOP_SET_MONITOR":
		a.setMonitor(pack)
	case "DESKTOP_KILL":
		webrtc.Instance().CloseSession(pack.Desktop)
	case "WEBRTC_SIGNAL":
		a.handleSignal(pack)
	}
}

func (a *Agent) setMonitor(pack packet) {
	index, ok := monitorIndex(pack.Data)
	if !ok {
		a.sendPacket(packet{Act: "DESKTOP_SET_MONITOR", Desktop: pack.Desktop, Code: 1, Msg: "monitor index required"})
		return
	}
	a.mu.Lock()
	source := a.source
	a.mu.Unlock()
	switcher, ok := source.(capture.DisplaySwitcher)
	if !ok {
		a.sendPacket(packet{Act: "DESKTOP_SET_MONITOR", Desktop: pack.Desktop, Code: 1, Msg: "capture source is fixed to one display"})
		return
	}
	if err := switcher.SetDisplay(index); err != nil {
		a.sendPacket(packet{Act: "DESKTOP_SET_MONITOR", Desktop: pack.Desktop, Code: 1, Msg: err.Error()})
		return
	}
	a.sendPacket(packet{Act: "DESKTOP_SET_MONITOR", Desktop: pack.Desktop, Data: map[string]any{
		"monitor": index,
	}})
}

// monitorIndex pulls the display index out of a decoded JSON payload, where
// numbers arrive as float64.
func monitorIndex(data map[string]any) (int, bool) {
	switch v := data["monitor"].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	}
	return 0, false
}

func monitorsPayload() map[string]any {
	monitors := make([]map[string]any, 0)
	for id, bounds := range capture.Displays() {
		monitors = append(monitors, map[string]any{
			"id":     id,
			"left":   bounds.Min.X,
			"top":    bounds.Min.Y,
			"width":  bounds.Dx(),
			"height": bounds.Dy(),
		})
	}
	return map[string]any{"monitors": monitors}
}

func (a *Agent) handleSignal(pack packet) {
	kind, _ := pack.Data["kind"].(string)
	payload, _ := pack.Data["payload"].(map[string]any)
	desktopID := pack.Desktop
	err := webrtc.Instance().HandleSignal(desktopID, desktopID, webrtc.SignalKind(kind), payload,
		func(kind webrtc.SignalKind, payload map[string]any) error {
			a.sendPacket(packet{Act: "WEBRTC_SIGNAL", Desktop: desktopID, Data: map[string]any{
				"kind":    string(kind),
				"payload": payload,
			}})
			return nil
		})
	if err != nil {
		logger.Warnf("webrtc signal failed desktop=%s kind=%s: %v", desktopID, kind, err)
	}
}

func (a *Agent) sendPacket(pack packet) {
	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()
	if conn == nil {
		return
	}
	data, err := json.Marshal(pack)
	if err != nil {
		return
	}
	if err := a.writeMessage(conn, websocket.TextMessage, data); err != nil {
		logger.Debugf("control write failed: %v", err)
	}
}

func (a *Agent) writeMessage(conn *websocket.Conn, messageType int, data []byte) error {
	a.wmu.Lock()
	defer a.wmu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(messageType, data)
}

func helloPayload() map[string]any {
	payload := map[string]any{
		"os":   runtime.GOOS,
		"arch": runtime.GOARCH,
	}
	if info, err := host.Info(); err == nil {
		payload["hostname"] = info.Hostname
		payload["platform"] = info.Platform
		payload["uptime"] = info.Uptime
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		payload["memTotal"] = vm.Total
	}
	return payload
}

func capsPayload() map[string]any {
	encoders := make([]map[string]any, 0)
	for _, capability := range encoder.Instance().Capabilities() {
		encoders = append(encoders, map[string]any{
			"name":     capability.Name,
			"type":     capability.Type,
			"codec":    capability.Codec,
			"disabled": capability.Disabled,
			"reason":   capability.DisabledReason,
		})
	}
	return map[string]any{
		"presets":  desktop.Presets(),
		"preset":   desktop.CurrentPresetKey(),
		"encoders": encoders,
		"webrtc":   map[string]any{"supported": true},
	}
}

// agentEndpoint converts the configured HTTP base URL to the websocket form.
func agentEndpoint(base, deviceID string) (string, error) {
	parsed, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", fmt.Errorf("core: bad server URL: %w", err)
	}
	switch parsed.Scheme {
	case "http", "ws":
		parsed.Scheme = "ws"
	case "https", "wss":
		parsed.Scheme = "wss"
	default:
		return "", fmt.Errorf("core: unsupported scheme %q", parsed.Scheme)
	}
	parsed.Path += "/api/desktop/agent"
	query := parsed.Query()
	query.Set("device", deviceID)
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
