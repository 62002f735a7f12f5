package authbridge

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SessionServerURL is the real Mojang-style session server join endpoint
// the proxy forwards a rewritten request to.
const SessionServerURL = "https://sessionserver.mojang.com/session/minecraft/join"

// Client forwards a join request to the real session server with the
// serverId rewritten to the proxy-computed sessionId hash, implementing
// handshake.SessionJoiner.
type Client struct {
	HTTP *http.Client
	URL  string
}

// NewClient builds a Client with a bounded-timeout HTTP client; callers may
// substitute a different URL for testing.
func NewClient() *Client {
	return &Client{
		HTTP: &http.Client{Timeout: 10 * time.Second},
		URL:  SessionServerURL,
	}
}

// Join implements handshake.SessionJoiner.
func (c *Client) Join(accessToken, selectedProfile, sessionID string) error {
	body := fmt.Sprintf(`{"accessToken":%q,"selectedProfile":%q,"serverId":%q}`,
		accessToken, selectedProfile, sessionID)
	req, err := http.NewRequest(http.MethodPost, c.URL, bytes.NewReader([]byte(body)))
	if err != nil {
		return fmt.Errorf("authbridge: build join request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("User-Agent", "Java/1.6.0_27")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("authbridge: join request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("authbridge: session server rejected join (status %d): %s", resp.StatusCode, msg)
	}
	return nil
}
