// Package supervisor implements C8: it owns both listeners, the accept
// loop, the SIGINT handler, and the lifecycle of every optional
// collaborator (capture file, metrics registry, host-key cache, inspector
// hub), wiring them into a pump.Pump for each session in turn. Only one
// session is ever live at a time (SPEC_FULL.md §1 Non-goals); accepting a
// new client while one is active waits for the previous session to tear
// down first.
package supervisor

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/lacrosse-labs/mcproxy/internal/authbridge"
	"github.com/lacrosse-labs/mcproxy/internal/capture"
	"github.com/lacrosse-labs/mcproxy/internal/config"
	"github.com/lacrosse-labs/mcproxy/internal/handshake"
	"github.com/lacrosse-labs/mcproxy/internal/hostkeys"
	"github.com/lacrosse-labs/mcproxy/internal/inspector"
	"github.com/lacrosse-labs/mcproxy/internal/metrics"
	"github.com/lacrosse-labs/mcproxy/internal/proto"
	"github.com/lacrosse-labs/mcproxy/internal/pump"
	"github.com/lacrosse-labs/mcproxy/internal/rlog"
	"github.com/lacrosse-labs/mcproxy/internal/session"
	"github.com/lacrosse-labs/mcproxy/internal/stats"
)

// Options configures a Supervisor run, gathered from C10/C11 (CLI flags
// merged with the optional config file).
type Options struct {
	UpstreamHost  string
	ListenPort    int
	WebserverPort int
	CaptureDir    string
	MetricsAddr   string
	NoMetrics     bool
	NoInspector   bool
}

// Supervisor drives the whole process lifetime: one accept loop, handing
// each accepted client off to a fresh session and pump in turn.
type Supervisor struct {
	opts Options
	log  rlog.Logger

	hostKeys *hostkeys.Store
	metrics  *metrics.Registry
	inspect  *inspector.Hub

	interrupted atomic.Bool

	identityMu pendingIdentity
}

// pendingIdentity holds the most recent join-request identity scraped by
// the auth bridge, consumed by the next session's handshake.
type pendingIdentity struct {
	accessToken     string
	selectedProfile string
}

// New builds a Supervisor. logger may be nil.
func New(opts Options, logger rlog.Logger) (*Supervisor, error) {
	if logger == nil {
		logger = rlog.Root()
	}
	// A bare upstream host gets the protocol's default port.
	if _, _, err := net.SplitHostPort(opts.UpstreamHost); err != nil {
		opts.UpstreamHost = net.JoinHostPort(opts.UpstreamHost, "25565")
	}
	s := &Supervisor{opts: opts, log: logger}

	hkDir := filepath.Join(opts.CaptureDir, "hostkeys")
	hk, err := hostkeys.Open(hkDir)
	if err != nil {
		return nil, fmt.Errorf("supervisor: open host-key cache: %w", err)
	}
	s.hostKeys = hk

	if !opts.NoMetrics {
		s.metrics = metrics.New()
	}
	if !opts.NoInspector {
		s.inspect = inspector.NewHub(logger)
	}
	return s, nil
}

// Run starts the loopback HTTP listener and the proxy accept loop, and
// blocks until SIGINT or a fatal initialization error.
func (s *Supervisor) Run() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGINT)
	go func() {
		<-sigCh
		s.log.Info("SIGINT received, ending the current session and shutting down")
		s.interrupted.Store(true)
	}()

	webLn, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", s.opts.WebserverPort))
	if err != nil {
		return fmt.Errorf("supervisor: webserver listen: %w", err)
	}
	defer webLn.Close()

	mux := authbridge.NewMux(s.onJoin, s.metricsHandler(), s.inspectHandler())
	webServer := &http.Server{Handler: mux}
	go func() {
		if err := webServer.Serve(webLn); err != nil && err != http.ErrServerClosed {
			s.log.Error("webserver exited", "err", err)
		}
	}()
	defer webServer.Close()

	proxyLn, err := net.Listen("tcp", fmt.Sprintf(":%d", s.opts.ListenPort))
	if err != nil {
		return fmt.Errorf("supervisor: proxy listen: %w", err)
	}
	defer proxyLn.Close()

	for !s.interrupted.Load() {
		if tcpLn, ok := proxyLn.(*net.TCPListener); ok {
			tcpLn.SetDeadline(time.Now().Add(1 * time.Second))
		}
		client, err := proxyLn.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return fmt.Errorf("supervisor: accept: %w", err)
		}
		s.handleClient(client)
	}
	s.log.Info("shutting down")
	return nil
}

func (s *Supervisor) onJoin(accessToken, selectedProfile, serverID string) {
	s.identityMu = pendingIdentity{accessToken: accessToken, selectedProfile: selectedProfile}
	_ = serverID // the real serverId is re-derived from the EncryptionRequest exchange, not trusted from the launcher
}

func (s *Supervisor) metricsHandler() http.Handler {
	if s.metrics == nil {
		return nil
	}
	return s.metrics.Handler()
}

func (s *Supervisor) inspectHandler() http.Handler {
	if s.inspect == nil {
		return nil
	}
	return s.inspect.Handler()
}

func (s *Supervisor) handleClient(client net.Conn) {
	server, err := net.Dial("tcp", s.opts.UpstreamHost)
	if err != nil {
		s.log.Error("upstream dial failed", "host", s.opts.UpstreamHost, "err", err)
		client.Close()
		return
	}

	sess := session.New(client, server, s.opts.UpstreamHost)
	sess.Identity.AccessToken = s.identityMu.accessToken
	sess.Identity.SelectedProfile = s.identityMu.selectedProfile

	if s.metrics != nil {
		s.metrics.SessionStarted()
	}

	hm := handshake.New(s.hostKeys, authbridge.NewClient(), s.log)
	summary := stats.NewSummary(sess.StartedAt)

	capWriter, err := capture.Open(s.opts.CaptureDir, sess.StartedAt)
	if err != nil {
		s.log.Warn("capture file unavailable", "err", err)
		capWriter = nil
	}

	pm := pump.New(sess, hm, nil, s.log)
	pm.Capture = &recordingSink{w: capWriter, onFrame: summary.RecordFrame}
	pm.Tail = s.inspect
	pm.Metrics = s.metrics
	pm.SigInt = s.interrupted.Load

	s.log.Info("session started", "upstream", s.opts.UpstreamHost)
	if err := pm.Run(); err != nil {
		s.log.Error("session ended with error", "err", err)
	}
	if capWriter != nil {
		capWriter.Close()
	}
	if s.metrics != nil {
		s.metrics.SessionEnded()
	}

	summary.Ended = time.Now()
	summary.FinalPhase = proto.Phase(sess.Phase)
	summary.EncryptionEverOn = sess.EncryptionActive || summary.EncryptionEverOn
	stats.Print(os.Stdout, summary)
}

// recordingSink adapts an optional *capture.Writer to pump.Recorder while
// also feeding the session summary's per-direction counters.
type recordingSink struct {
	w       *capture.Writer
	onFrame func(dir proto.Direction, n int)
}

func (r *recordingSink) WriteFrame(dir proto.Direction, at time.Time, payload []byte) error {
	if r.onFrame != nil {
		r.onFrame(dir, len(payload))
	}
	if r.w == nil {
		return nil
	}
	return r.w.WriteFrame(dir, at, payload)
}

// Close releases the host-key cache; called once at process shutdown.
func (s *Supervisor) Close() error {
	if s.hostKeys != nil {
		return s.hostKeys.Close()
	}
	return nil
}
