package api

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/mdp/qrterminal/v3"
)

// RelayURL derives the relay WebSocket URL from the server's public base URL,
// switching http(s) to ws(s).
func RelayURL(publicURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(publicURL))
	if err != nil {
		return "", fmt.Errorf("invalid relay public URL %q: %w", publicURL, err)
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("invalid relay public URL %q: scheme must be http, https, ws or wss", publicURL)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid relay public URL %q: missing host", publicURL)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	if !strings.HasSuffix(u.Path, PathRelayWS) {
		u.Path += PathRelayWS
	}
	return u.String(), nil
}

// PrintRelayQR writes the relay URL and a QR code of it to w so a gateway phone can
// pair by scanning.
func PrintRelayQR(w io.Writer, publicURL string) (string, error) {
	wsURL, err := RelayURL(publicURL)
	if err != nil {
		return "", err
	}
	fmt.Fprintf(w, "Scan to connect an SMS relay: %s\n", wsURL)
	qrterminal.GenerateHalfBlock(wsURL, qrterminal.L, w)
	return wsURL, nil
}
