package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// DiscoverWebSocketURL fetches the browser-level WebSocket debugger URL from
// the endpoint's /json/version document.
func DiscoverWebSocketURL(ctx context.Context, httpBase string, timeout time.Duration) (string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(httpBase, "/")+"/json/version", nil)
	if err != nil {
		return "", newError(CodeDiscoveryFailed, "build version request", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", newError(CodeDiscoveryFailed, "debug endpoint unreachable", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", newError(CodeDiscoveryFailed, fmt.Sprintf("/json/version: HTTP %d", resp.StatusCode), nil)
	}

	var info struct {
		Browser              string `json:"Browser"`
		WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", newError(CodeDiscoveryFailed, "decode /json/version", err)
	}
	if info.WebSocketDebuggerURL == "" {
		return "", newError(CodeDiscoveryFailed, "empty webSocketDebuggerUrl", nil)
	}
	return info.WebSocketDebuggerURL, nil
}
