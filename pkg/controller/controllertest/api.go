package controllertest

import "github.com/pion/webrtc/v3"

// LoopbackAPI returns a WebRTC API with the default codecs that also
// gathers loopback candidates, so both peers can meet on one host.
func LoopbackAPI() (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}
	se := webrtc.SettingEngine{}
	se.SetIncludeLoopbackCandidate(true)
	return webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithSettingEngine(se)), nil
}
