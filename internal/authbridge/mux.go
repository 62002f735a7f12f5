package authbridge

import (
	"net/http"

	"github.com/rs/cors"
)

// NewMux assembles the loopback listener's HTTP routing (SPEC_FULL.md
// §4.5): the join endpoint plus whatever metrics and inspector handlers the
// caller has wired in (either may be nil when disabled via --no-metrics /
// --no-inspector). The whole mux is wrapped in a permissive CORS policy,
// the same shape the teacher's NewHTTPServer applies to its JSON-RPC
// handler in rpc/http.go — harmless here too, since the only caller is the
// patched launcher on localhost.
func NewMux(onJoin IdentityFunc, metrics, inspect http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/session/minecraft/join", JoinHandler(onJoin))
	if metrics != nil {
		mux.Handle("/metrics", metrics)
	}
	if inspect != nil {
		mux.Handle("/inspect", inspect)
	}

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
	})
	return c.Handler(mux)
}
