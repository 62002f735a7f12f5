// Package authbridge implements the C5 auth bridge: a loopback HTTP
// endpoint that stands in for Mojang's session server so the patched
// launcher can hand the proxy the join request it would otherwise have
// sent directly over HTTPS, and an outbound client that forwards a
// rewritten version of that request to the real session server. The HTTP
// plumbing (net/http.Server wrapped by rs/cors) is grounded directly on the
// teacher's own rpc/http.go NewHTTPServer, which wraps its JSON-RPC handler
// the same way.
package authbridge

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
)

const maxJoinBodyBytes = 16 * 1024

// IdentityFunc receives the three fields scraped from a join request.
type IdentityFunc func(accessToken, selectedProfile, serverID string)

// JoinHandler answers POST /session/minecraft/join (SPEC_FULL.md §4.5): it
// reads exactly Content-Length bytes of body, extracts accessToken,
// selectedProfile and serverId by naive key search (no JSON unmarshal; the
// real launcher's body shape is not our concern, only these three values
// are), invokes onJoin, and replies 204 No Content.
func JoinHandler(onJoin IdentityFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if r.ContentLength < 0 || r.ContentLength > maxJoinBodyBytes {
			http.Error(w, "bad content length", http.StatusBadRequest)
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, r.ContentLength))
		if err != nil {
			http.Error(w, "short body", http.StatusBadRequest)
			return
		}
		accessToken, _ := extractJSONString(body, "accessToken")
		selectedProfile, _ := extractJSONString(body, "selectedProfile")
		serverID, _ := extractJSONString(body, "serverId")
		onJoin(accessToken, selectedProfile, serverID)
		w.WriteHeader(http.StatusNoContent)
	}
}

// extractJSONString finds `"key"` in body and returns the contents of the
// following quoted string value, by naive byte scanning rather than a full
// JSON parse. This mirrors the original implementation's tolerance for
// whatever extra fields a given launcher version's join payload carries.
func extractJSONString(body []byte, key string) (string, bool) {
	needle := []byte(fmt.Sprintf(`"%s"`, key))
	idx := bytes.Index(body, needle)
	if idx < 0 {
		return "", false
	}
	rest := body[idx+len(needle):]
	colon := bytes.IndexByte(rest, ':')
	if colon < 0 {
		return "", false
	}
	rest = rest[colon+1:]
	start := bytes.IndexByte(rest, '"')
	if start < 0 {
		return "", false
	}
	rest = rest[start+1:]
	end := bytes.IndexByte(rest, '"')
	if end < 0 {
		return "", false
	}
	return string(rest[:end]), true
}
