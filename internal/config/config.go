// Package config implements the C11 optional TOML configuration file,
// mirroring the teacher's own cmd/geth config.toml loader: naoina/toml
// unmarshaled into a plain struct, with missing keys simply left at their
// zero value so CLI flags and compiled-in defaults can fill the gaps.
package config

import (
	"fmt"
	"os"

	"github.com/naoina/toml"
)

// File is the shape of an optional --config TOML file. Every field is
// optional; an absent file or an absent key falls back to CLI flags and
// then to compiled-in defaults (SPEC_FULL.md §4.11).
type File struct {
	UpstreamHost  string `toml:"upstream_host"`
	ListenPort    int    `toml:"listen_port"`
	WebserverPort int    `toml:"webserver_port"`
	CaptureDir    string `toml:"capture_dir"`
	MetricsAddr   string `toml:"metrics_addr"`
}

// Load parses path as a TOML File. A malformed file is a fatal
// initialization error per SPEC_FULL.md §4.11; a missing path is not an
// error and returns a zero File.
func Load(path string) (File, error) {
	var f File
	if path == "" {
		return f, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return f, nil
	}
	if err != nil {
		return f, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return f, nil
}

// Defaults holds the compiled-in fallback values (SPEC_FULL.md §6).
var Defaults = File{
	ListenPort:    25565,
	WebserverPort: 8080,
	CaptureDir:    "saved",
	MetricsAddr:   "127.0.0.1:8080",
}

// Merge returns f with every non-zero field of flags overriding it, then
// fills any field still zero from Defaults — flags take precedence over the
// config file, which takes precedence over built-in defaults.
func Merge(f, flags File) File {
	out := f
	if flags.UpstreamHost != "" {
		out.UpstreamHost = flags.UpstreamHost
	}
	if flags.ListenPort != 0 {
		out.ListenPort = flags.ListenPort
	}
	if flags.WebserverPort != 0 {
		out.WebserverPort = flags.WebserverPort
	}
	if flags.CaptureDir != "" {
		out.CaptureDir = flags.CaptureDir
	}
	if flags.MetricsAddr != "" {
		out.MetricsAddr = flags.MetricsAddr
	}
	if out.ListenPort == 0 {
		out.ListenPort = Defaults.ListenPort
	}
	if out.WebserverPort == 0 {
		out.WebserverPort = Defaults.WebserverPort
	}
	if out.CaptureDir == "" {
		out.CaptureDir = Defaults.CaptureDir
	}
	if out.MetricsAddr == "" {
		out.MetricsAddr = Defaults.MetricsAddr
	}
	return out
}
