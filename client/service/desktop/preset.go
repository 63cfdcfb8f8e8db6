package desktop

import (
	"fmt"
	"sort"
	"sync"
)

// capturePreset ties a JPEG quality and FPS cap to a named profile the
// viewer can switch between at runtime.
type capturePreset struct {
	Key         string
	Label       string
	JPEGQuality int
	FPS         int
}

var presetCatalog = map[string]capturePreset{
	"smooth":   {Key: "smooth", Label: "Smooth (lower quality)", JPEGQuality: 50, FPS: 30},
	"balanced": {Key: "balanced", Label: "Balanced", JPEGQuality: 70, FPS: 24},
	"sharp":    {Key: "sharp", Label: "Sharp (lower FPS)", JPEGQuality: 90, FPS: 15},
}

const defaultPresetKey = "balanced"

var presetState = struct {
	sync.Mutex
	current capturePreset
	fpsCap  int
}{current: presetCatalog[defaultPresetKey]}

// snapshotCapturePreset returns the active profile with the configured FPS
// cap already applied.
func snapshotCapturePreset() capturePreset {
	presetState.Lock()
	defer presetState.Unlock()
	preset := presetState.current
	if presetState.fpsCap > 0 && preset.FPS > presetState.fpsCap {
		preset.FPS = presetState.fpsCap
	}
	return preset
}

// SetFPSCap limits the effective capture rate across all presets.
// Zero removes the limit.
func SetFPSCap(limit int) {
	if limit < 0 {
		limit = 0
	}
	presetState.Lock()
	presetState.fpsCap = limit
	presetState.Unlock()
}

func applyCapturePreset(key string) (capturePreset, error) {
	preset, ok := presetCatalog[key]
	if !ok {
		return capturePreset{}, fmt.Errorf("desktop: unknown capture preset %q", key)
	}
	presetState.Lock()
	presetState.current = preset
	presetState.Unlock()
	return preset, nil
}

// ApplyPreset switches the active capture profile by key.
func ApplyPreset(key string) error {
	_, err := applyCapturePreset(key)
	return err
}

// Presets describes the available capture profiles for capability reports.
func Presets() []map[string]any {
	presets := listCapturePresets()
	result := make([]map[string]any, 0, len(presets))
	for _, preset := range presets {
		result = append(result, map[string]any{
			"key":     preset.Key,
			"label":   preset.Label,
			"quality": preset.JPEGQuality,
			"fps":     preset.FPS,
		})
	}
	return result
}

// CurrentPresetKey names the active capture profile.
func CurrentPresetKey() string {
	return snapshotCapturePreset().Key
}

func listCapturePresets() []capturePreset {
	keys := make([]string, 0, len(presetCatalog))
	for key := range presetCatalog {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	result := make([]capturePreset, 0, len(keys))
	for _, key := range keys {
		result = append(result, presetCatalog[key])
	}
	return result
}
