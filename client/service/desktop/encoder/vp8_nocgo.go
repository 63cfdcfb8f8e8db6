//go:build !cgo

package encoder

// Without cgo there is no libvpx; surface the capability as disabled so the
// server can still report why video streaming is off.
func registerVP8Encoder(m *Manager) {
	m.addCapability(Capability{
		Name:           "vp8-software",
		Type:           "software-vp8",
		Codec:          "vp8",
		Disabled:       true,
		DisabledReason: "built without cgo, libvpx unavailable",
	})
}
