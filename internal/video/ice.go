// Package video brokers the STUN/TURN configuration the external
// peer-connection layer dials with. Media transport never passes through
// this backend; clients get ICE servers here and the roster from the
// presence endpoints, and negotiate directly.
package video

import (
	"strings"

	"github.com/pion/webrtc/v3"

	"github.com/vitalink-health/telehealth/config"
)

// BuildICEServers groups the configured URLs into ICE server entries:
// STUN URLs share one credential-less entry, TURN URLs share the
// configured long-term credential.
func BuildICEServers(cfg config.WebRTCConfig) []webrtc.ICEServer {
	var stun, turn []string
	for _, u := range cfg.ICEUrls {
		if strings.HasPrefix(u, "turn:") || strings.HasPrefix(u, "turns:") {
			turn = append(turn, u)
			continue
		}
		stun = append(stun, u)
	}
	var servers []webrtc.ICEServer
	if len(stun) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: stun})
	}
	if len(turn) > 0 {
		servers = append(servers, webrtc.ICEServer{
			URLs:           turn,
			Username:       cfg.TURNUsername,
			Credential:     cfg.TURNCredential,
			CredentialType: webrtc.ICECredentialTypePassword,
		})
	}
	return servers
}
