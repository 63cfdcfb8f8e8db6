package desktop

import (
	"crypto/rand"
	"encoding/hex"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/kataras/golog"
)

const (
	maxControlMessageSize = 1 << 20
	writeTimeout          = 10 * time.Second
	sessionTTL            = 5 * time.Minute
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var logger = golog.Child("[desktop-hub]")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Packet is the JSON control envelope exchanged with agents and viewers.
// Encoded frame data travels as raw binary websocket messages instead.
type Packet struct {
	Act     string         `json:"act"`
	Desktop string         `json:"desktop,omitempty"`
	Code    int            `json:"code,omitempty"`
	Msg     string         `json:"msg,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

type agentConn struct {
	deviceID string
	conn     *websocket.Conn

	mu    sync.Mutex
	caps  map[string]any
	hello map[string]any
}

type viewerConn struct {
	desktopID string
	deviceID  string
	conn      *websocket.Conn

	mu sync.Mutex
}

type hub struct {
	mu      sync.Mutex
	agents  map[string]*agentConn
	viewers map[string]*viewerConn
	rtc     *webrtcController
}

var sessions = &hub{
	agents:  make(map[string]*agentConn),
	viewers: make(map[string]*viewerConn),
	rtc:     newWebRTCController(sessionTTL),
}

// InitAgent upgrades the agent websocket. Agents identify themselves with a
// device query parameter derived from their machine ID.
func InitAgent(ctx *gin.Context) {
	deviceID := strings.TrimSpace(ctx.Query("device"))
	if deviceID == "" {
		ctx.AbortWithStatus(http.StatusBadRequest)
		return
	}
	conn, err := upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		logger.Warnf("agent upgrade failed device=%s: %v", deviceID, err)
		return
	}
	agent := &agentConn{deviceID: deviceID, conn: conn}
	sessions.registerAgent(agent)
	logger.Infof("agent connected device=%s addr=%s", deviceID, conn.RemoteAddr())
	go sessions.agentReadLoop(agent)
}

// InitViewer upgrades a browser websocket targeting a connected agent.
func InitViewer(ctx *gin.Context) {
	deviceID := strings.TrimSpace(ctx.Query("device"))
	if deviceID == "" {
		ctx.AbortWithStatus(http.StatusBadRequest)
		return
	}
	if sessions.agent(deviceID) == nil {
		ctx.AbortWithStatus(http.StatusNotFound)
		return
	}
	conn, err := upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		logger.Warnf("viewer upgrade failed device=%s: %v", deviceID, err)
		return
	}
	viewer := &viewerConn{
		desktopID: newSessionID(),
		deviceID:  deviceID,
		conn:      conn,
	}
	sessions.registerViewer(viewer)
	logger.Infof("viewer connected desktop=%s device=%s", viewer.desktopID, deviceID)
	sessions.sendToAgent(deviceID, Packet{Act: "DESKTOP_INIT", Desktop: viewer.desktopID})
	go sessions.viewerReadLoop(viewer)
}

// HandleICE serves short-lived TURN credentials for a desktop session.
func HandleICE(ctx *gin.Context) {
	desktopID := strings.TrimSpace(ctx.Query("desktop"))
	if desktopID == "" {
		ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"msg": "missing desktop"})
		return
	}
	bundle, ok := credentialIssuer.mint(desktopID)
	if !ok {
		ctx.JSON(http.StatusOK, gin.H{"servers": []any{}})
		return
	}
	resp := gin.H{
		"servers":   bundle.servers,
		"expiresAt": bundle.expiresAt.Unix(),
	}
	if bundle.relayHint != "" {
		resp["relayHint"] = bundle.relayHint
	}
	ctx.JSON(http.StatusOK, resp)
}

func newSessionID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return hex.EncodeToString([]byte(time.Now().Format("20060102150405.000000000")))
	}
	return hex.EncodeToString(buf)
}

func (h *hub) registerAgent(agent *agentConn) {
	h.mu.Lock()
	prev := h.agents[agent.deviceID]
	h.agents[agent.deviceID] = agent
	h.mu.Unlock()
	if prev != nil {
		_ = prev.conn.Close()
	}
}

func (h *hub) registerViewer(viewer *viewerConn) {
	h.mu.Lock()
	h.viewers[viewer.desktopID] = viewer
	h.mu.Unlock()
}

func (h *hub) agent(deviceID string) *agentConn {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.agents[deviceID]
}

func (h *hub) viewersOf(deviceID string) []*viewerConn {
	h.mu.Lock()
	defer h.mu.Unlock()
	result := make([]*viewerConn, 0, len(h.viewers))
	for _, viewer := range h.viewers {
		if viewer.deviceID == deviceID {
			result = append(result, viewer)
		}
	}
	return result
}

func (h *hub) viewer(desktopID string) *viewerConn {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.viewers[desktopID]
}

func (h *hub) dropAgent(agent *agentConn) {
	h.mu.Lock()
	if h.agents[agent.deviceID] == agent {
		delete(h.agents, agent.deviceID)
	}
	h.mu.Unlock()
	_ = agent.conn.Close()
	for _, viewer := range h.viewersOf(agent.deviceID) {
		viewer.send(Packet{Act: "QUIT", Msg: "agent disconnected"})
		h.dropViewer(viewer)
	}
}

func (h *hub) dropViewer(viewer *viewerConn) {
	h.mu.Lock()
	if h.viewers[viewer.desktopID] == viewer {
		delete(h.viewers, viewer.desktopID)
	}
	h.mu.Unlock()
	h.rtc.remove(viewer.desktopID)
	_ = viewer.conn.Close()
	h.sendToAgent(viewer.deviceID, Packet{Act: "DESKTOP_KILL", Desktop: viewer.desktopID})
}

func (h *hub) sendToAgent(deviceID string, pack Packet) {
	agent := h.agent(deviceID)
	if agent == nil {
		return
	}
	if err := agent.send(pack); err != nil {
		logger.Warnf("agent write failed device=%s: %v", deviceID, err)
	}
}

func (a *agentConn) send(pack Packet) error {
	data, err := json.Marshal(pack)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	_ = a.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return a.conn.WriteMessage(websocket.TextMessage, data)
}

func (v *viewerConn) send(pack Packet) {
	data, err := json.Marshal(pack)
	if err != nil {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	_ = v.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_ = v.conn.WriteMessage(websocket.TextMessage, data)
}

func (v *viewerConn) sendBinary(data []byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	_ = v.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_ = v.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (h *hub) agentReadLoop(agent *agentConn) {
	defer h.dropAgent(agent)
	agent.conn.SetReadLimit(maxControlMessageSize)
	for {
		msgType, data, err := agent.conn.ReadMessage()
		if err != nil {
			logger.Infof("agent disconnected device=%s: %v", agent.deviceID, err)
			return
		}
		if msgType == websocket.BinaryMessage {
			// Encoded block packets fan out to every viewer unmodified.
			for _, viewer := range h.viewersOf(agent.deviceID) {
				viewer.sendBinary(data)
			}
			continue
		}
		var pack Packet
		if err := json.Unmarshal(data, &pack); err != nil {
			logger.Warnf("malformed agent packet device=%s: %v", agent.deviceID, err)
			continue
		}
		h.handleAgentPacket(agent, pack)
	}
}

func (h *hub) handleAgentPacket(agent *agentConn, pack Packet) {
	switch pack.Act {
	case "AGENT_HELLO":
		agent.mu.Lock()
		agent.hello = pack.Data
		agent.mu.Unlock()
		logger.Infof("agent hello device=%s data=%v", agent.deviceID, pack.Data)
	case "DESKTOP_CAPS":
		agent.mu.Lock()
		agent.caps = pack.Data
		agent.mu.Unlock()
		for _, viewer := range h.viewersOf(agent.deviceID) {
			caps := enrichDesktopWebRTCCaps(viewer.desktopID, cloneAnyMap(pack.Data))
			viewer.send(Packet{Act: "DESKTOP_CAPS", Desktop: viewer.desktopID, Data: caps})
		}
	case "DESKTOP_METRICS":
		derived := summarizeDesktopMetrics(agent.deviceID, pack)
		if derived == nil {
			derived = pack.Data
		}
		for _, viewer := range h.viewersOf(agent.deviceID) {
			viewer.send(Packet{Act: "DESKTOP_METRICS", Desktop: viewer.desktopID, Data: derived})
		}
	case "WEBRTC_SIGNAL":
		h.relayAgentSignal(agent, pack)
	case "DESKTOP_QUIT":
		for _, viewer := range h.viewersOf(agent.deviceID) {
			viewer.send(Packet{Act: "QUIT", Msg: pack.Msg})
			h.dropViewer(viewer)
		}
	default:
		// Status echoes (monitor lists, preset acks) pass through untouched.
		for _, viewer := range h.viewersOf(agent.deviceID) {
			viewer.send(Packet{Act: pack.Act, Desktop: viewer.desktopID, Code: pack.Code, Msg: pack.Msg, Data: pack.Data})
		}
	}
}

func (h *hub) relayAgentSignal(agent *agentConn, pack Packet) {
	viewer := h.viewer(pack.Desktop)
	if viewer == nil || viewer.deviceID != agent.deviceID {
		return
	}
	kind, err := toSignalKind(signalField(pack.Data, "kind"))
	if err != nil {
		logger.Warnf("agent signal rejected desktop=%s: %v", pack.Desktop, err)
		return
	}
	payload, _ := mapFromAny(pack.Data["payload"])
	normalized, err := normalizeSignal(kind, payload)
	if err != nil {
		logger.Warnf("agent signal rejected desktop=%s: %v", pack.Desktop, err)
		return
	}
	switch kind {
	case signalAnswer:
		h.rtc.recordAnswer(pack.Desktop)
	case signalCandidate:
		h.rtc.recordCandidate(pack.Desktop)
		if h.rtc.queueAgentCandidate(pack.Desktop, normalized) {
			return
		}
	}
	viewer.send(Packet{Act: "WEBRTC_SIGNAL", Desktop: pack.Desktop, Data: map[string]any{
		"kind":    string(kind),
		"payload": normalized,
	}})
}

func (h *hub) viewerReadLoop(viewer *viewerConn) {
	defer h.dropViewer(viewer)
	viewer.conn.SetReadLimit(maxControlMessageSize)
	for {
		_, data, err := viewer.conn.ReadMessage()
		if err != nil {
			logger.Infof("viewer disconnected desktop=%s: %v", viewer.desktopID, err)
			return
		}
		var pack Packet
		if err := json.Unmarshal(data, &pack); err != nil {
			viewer.send(Packet{Code: -1, Msg: "malformed packet"})
			continue
		}
		h.handleViewerPacket(viewer, pack)
	}
}

func (h *hub) handleViewerPacket(viewer *viewerConn, pack Packet) {
	switch pack.Act {
	case "DESKTOP_PING", "DESKTOP_SHOT", "DESKTOP_MONITORS":
		h.sendToAgent(viewer.deviceID, Packet{Act: pack.Act, Desktop: viewer.desktopID})
	case "DESKTOP_SET_MONITOR":
		h.sendToAgent(viewer.deviceID, Packet{Act: pack.Act, Desktop: viewer.desktopID, Data: pack.Data})
	case "DESKTOP_SET_QUALITY":
		preset, _ := signalField(pack.Data, "preset").(string)
		if preset == "" {
			viewer.send(Packet{Act: "WARN", Msg: "missing preset"})
			return
		}
		h.sendToAgent(viewer.deviceID, Packet{Act: pack.Act, Desktop: viewer.desktopID, Data: map[string]any{
			"preset": preset,
		}})
	case "WEBRTC_SIGNAL":
		h.relayViewerSignal(viewer, pack)
	case "WEBRTC_READY":
		for _, candidate := range h.rtc.markBrowserReady(viewer.desktopID) {
			viewer.send(Packet{Act: "WEBRTC_SIGNAL", Desktop: viewer.desktopID, Data: map[string]any{
				"kind":    string(signalCandidate),
				"payload": candidate,
			}})
		}
	case "DESKTOP_KILL":
		h.sendToAgent(viewer.deviceID, Packet{Act: "DESKTOP_KILL", Desktop: viewer.desktopID})
	default:
		viewer.send(Packet{Act: "WARN", Msg: "unsupported act"})
	}
}

func (h *hub) relayViewerSignal(viewer *viewerConn, pack Packet) {
	kind, err := toSignalKind(signalField(pack.Data, "kind"))
	if err != nil {
		viewer.send(Packet{Act: "WARN", Msg: err.Error()})
		return
	}
	payload, _ := mapFromAny(pack.Data["payload"])
	normalized, err := normalizeSignal(kind, payload)
	if err != nil {
		viewer.send(Packet{Act: "WARN", Msg: err.Error()})
		return
	}
	switch kind {
	case signalOffer:
		h.rtc.recordOffer(viewer.desktopID)
	case signalCandidate:
		h.rtc.recordCandidate(viewer.desktopID)
	}
	h.sendToAgent(viewer.deviceID, Packet{Act: "WEBRTC_SIGNAL", Desktop: viewer.desktopID, Data: map[string]any{
		"kind":    string(kind),
		"payload": normalized,
	}})
}

// CloseSessionsByDevice tears down every viewer attached to the device.
func CloseSessionsByDevice(deviceID string) {
	for _, viewer := range sessions.viewersOf(deviceID) {
		viewer.send(Packet{Act: "QUIT", Msg: "session closed"})
		sessions.dropViewer(viewer)
	}
}

func signalField(data map[string]any, key string) any {
	if data == nil {
		return nil
	}
	return data[key]
}

func cloneAnyMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func summarizeDesktopMetrics(deviceID string, pack Packet) map[string]any {
	if pack.Data == nil {
		return nil
	}
	frames, okFrames := metricFloat(pack.Data["frames"])
	bytesVal, okBytes := metricFloat(pack.Data["bytes"])
	intervalMs, okInterval := metricFloat(pack.Data["intervalMs"])
	if !(okFrames && okBytes && okInterval) || intervalMs <= 0 {
		return nil
	}
	intervalSeconds := intervalMs / 1000
	fps := frames / intervalSeconds
	bandwidth := bytesVal / intervalSeconds
	blocks, _ := metricFloat(pack.Data["blocks"])
	queueDrops, _ := metricFloat(pack.Data["queueDrops"])
	encoderErrors, _ := metricFloat(pack.Data["encoderErrors"])
	avgBlocks := 0.0
	if frames > 0 && blocks > 0 {
		avgBlocks = blocks / frames
	}
	logger.Infof("desktop metrics device=%s fps=%.2f bandwidth=%.0fB/s drops=%d errors=%d",
		deviceID, fps, bandwidth, int(queueDrops), int(encoderErrors))
	result := map[string]any{
		"fps":                  math.Round(fps*100) / 100,
		"bandwidthBytesPerSec": math.Round(bandwidth*100) / 100,
		"frames":               int(frames),
		"blocks":               int(blocks),
		"queueDrops":           int(queueDrops),
		"encoderErrors":        int(encoderErrors),
		"avgBlocksPerFrame":    math.Round(avgBlocks*100) / 100,
		"intervalMs":           intervalMs,
	}
	if lastError, ok := pack.Data["lastError"].(string); ok && lastError != "" {
		result["lastError"] = lastError
	}
	return result
}

func metricFloat(val any) (float64, bool) {
	switch v := val.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	default:
		return 0, false
	}
}
