package cdp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/target"
)

// Network buffer sizes requested when capture is enabled on a session.
const (
	NetworkMaxTotalBufferSize    = 10_000_000
	NetworkMaxResourceBufferSize = 5_000_000
)

// SetAutoAttach asks the browser to auto-attach new targets as flat sessions.
func (c *Conn) SetAutoAttach(ctx context.Context) error {
	params := target.SetAutoAttach(true, false).WithFlatten(true)
	_, err := c.Send(ctx, "", target.CommandSetAutoAttach, params)
	return err
}

// SetDiscoverTargets enables Target.targetInfoChanged and friends.
func (c *Conn) SetDiscoverTargets(ctx context.Context) error {
	_, err := c.Send(ctx, "", target.CommandSetDiscoverTargets, target.SetDiscoverTargets(true))
	return err
}

// GetTargets lists all targets currently known to the browser.
func (c *Conn) GetTargets(ctx context.Context) ([]*target.Info, error) {
	raw, err := c.Send(ctx, "", target.CommandGetTargets, target.GetTargets())
	if err != nil {
		return nil, err
	}
	var res target.GetTargetsReturns
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, newError(CodeProtocol, "unmarshal getTargets", err)
	}
	return res.TargetInfos, nil
}

// AttachToTarget attaches a flat session to the given target.
func (c *Conn) AttachToTarget(ctx context.Context, targetID target.ID) (target.SessionID, error) {
	raw, err := c.Send(ctx, "", target.CommandAttachToTarget, target.AttachToTarget(targetID).WithFlatten(true))
	if err != nil {
		return "", err
	}
	var res target.AttachToTargetReturns
	if err := json.Unmarshal(raw, &res); err != nil {
		return "", newError(CodeProtocol, "unmarshal attachToTarget", err)
	}
	if res.SessionID == "" {
		return "", newError(CodeProtocol, "attachToTarget returned no session", nil)
	}
	return res.SessionID, nil
}

// EnableNetwork turns on Network domain events for one session.
func (c *Conn) EnableNetwork(ctx context.Context, sessionID target.SessionID) error {
	params := network.Enable().
		WithMaxTotalBufferSize(NetworkMaxTotalBufferSize).
		WithMaxResourceBufferSize(NetworkMaxResourceBufferSize)
	_, err := c.Send(ctx, sessionID, network.CommandEnable, params)
	return err
}

// ResponseBody is the raw result of Network.getResponseBody.
type ResponseBody struct {
	Body          string
	Base64Encoded bool
}

// Bytes returns the body bytes, decoding base64 when flagged.
func (b ResponseBody) Bytes() ([]byte, error) {
	if !b.Base64Encoded {
		return []byte(b.Body), nil
	}
	out, err := base64.StdEncoding.DecodeString(b.Body)
	if err != nil {
		return nil, fmt.Errorf("cdp: decode base64 body: %w", err)
	}
	return out, nil
}

// GetResponseBody fetches a finished request's body from the session that
// observed it.
func (c *Conn) GetResponseBody(ctx context.Context, sessionID target.SessionID, requestID network.RequestID) (ResponseBody, error) {
	raw, err := c.Send(ctx, sessionID, network.CommandGetResponseBody, network.GetResponseBody(requestID))
	if err != nil {
		return ResponseBody{}, err
	}
	var res network.GetResponseBodyReturns
	if err := json.Unmarshal(raw, &res); err != nil {
		return ResponseBody{}, newError(CodeProtocol, "unmarshal getResponseBody", err)
	}
	return ResponseBody{Body: res.Body, Base64Encoded: res.Base64encoded}, nil
}
