package authbridge

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestJoinHandlerExtractsFields(t *testing.T) {
	var gotAccess, gotProfile, gotServer string
	h := JoinHandler(func(accessToken, selectedProfile, serverID string) {
		gotAccess, gotProfile, gotServer = accessToken, selectedProfile, serverID
	})

	body := `{"accessToken":"tok-1","selectedProfile":"prof-1","serverId":"-25c65c11a194b4f2cdaa40106a9fe76f5027f8f7"}`
	req := httptest.NewRequest(http.MethodPost, "/session/minecraft/join", strings.NewReader(body))
	req.ContentLength = int64(len(body))
	rec := httptest.NewRecorder()

	h(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if gotAccess != "tok-1" || gotProfile != "prof-1" || gotServer != "-25c65c11a194b4f2cdaa40106a9fe76f5027f8f7" {
		t.Fatalf("extracted fields = %q %q %q", gotAccess, gotProfile, gotServer)
	}
}

func TestJoinHandlerRejectsWrongMethod(t *testing.T) {
	h := JoinHandler(func(string, string, string) {})
	req := httptest.NewRequest(http.MethodGet, "/session/minecraft/join", nil)
	rec := httptest.NewRecorder()
	h(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

func TestExtractJSONStringMissingKey(t *testing.T) {
	_, ok := extractJSONString([]byte(`{"other":"value"}`), "accessToken")
	if ok {
		t.Fatalf("expected missing key to report false")
	}
}
