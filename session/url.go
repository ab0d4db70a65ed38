package session

import (
	"fmt"
	"net/url"
	"strings"
)

// SocketPath is the gateway relay endpoint on the backend
const SocketPath = "/api/chat/ws"

// SocketURL derives the duplex socket URL from the configured base URL by
// rewriting http to ws and https to wss and appending SocketPath.
func SocketURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid base URL: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid base URL: missing host")
	}

	u.Path = strings.TrimSuffix(u.Path, "/") + SocketPath
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}
