// Package config implements the bootstrap configuration value type and
// the minimal key=value config-file reader behind the readconfig command.
// The file format itself is out of scope; this reader exists only so
// `readconfig`/`start` have something concrete to parse, in the spirit of
// dittofs's cmd/*/commands config loading.
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// DefaultPrefixDir is the chroot root used when no prefix is configured.
const DefaultPrefixDir = "/var/agentd"

// DefaultServiceUser and DefaultServiceGroup name the unprivileged account
// each forked service drops into, following the OpenBSD convention of a
// dedicated underscore-prefixed system account per daemon.
const (
	DefaultServiceUser  = "_agentd"
	DefaultServiceGroup = "_agentd"
)

// Bootstrap is the read-only value created before privilege drop and held
// for the lifetime of the process.
type Bootstrap struct {
	Foreground     bool
	BinaryPath     string
	PrefixDir      string
	Command        string
	PrivateCommand string
	ConfigFile     string
}

// New returns a zero-value Bootstrap; callers populate it via the Set*
// setters before reading it, matching the source's
// bootstrap_config_set_* sequence.
func New() *Bootstrap { return &Bootstrap{} }

func (b *Bootstrap) SetForeground(v bool) *Bootstrap       { b.Foreground = v; return b }
func (b *Bootstrap) SetBinary(path string) *Bootstrap      { b.BinaryPath = path; return b }
func (b *Bootstrap) SetPrefixDir(dir string) *Bootstrap    { b.PrefixDir = dir; return b }
func (b *Bootstrap) SetCommand(cmd string) *Bootstrap      { b.Command = cmd; return b }
func (b *Bootstrap) SetPrivateCommand(s string) *Bootstrap { b.PrivateCommand = s; return b }
func (b *Bootstrap) SetConfigFile(path string) *Bootstrap  { b.ConfigFile = path; return b }

// ResolvePrefixDir defaults PrefixDir when unset, the Go analogue of
// bootstrap_config_resolve_prefix_dir.c.
func (b *Bootstrap) ResolvePrefixDir(defaultPrefix string) {
	if b.PrefixDir == "" {
		b.PrefixDir = defaultPrefix
	}
}

// PidFilePath returns the persisted supervisor PID file path under the
// resolved prefix directory.
func (b *Bootstrap) PidFilePath() string {
	return filepath.Join(b.PrefixDir, "var", "pid", "agentd.pid")
}

// Settings is a parsed key=value config file. Values are strings; callers
// convert as needed.
type Settings map[string]string

// ReadFile parses a minimal "key = value" config file, skipping blank
// lines and lines beginning with '#'.
func ReadFile(path string) (Settings, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	out, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return out, nil
}

// Parse reads a minimal "key = value" config stream, skipping blank lines
// and lines beginning with '#'. It is the form readconfig uses against the
// inherited config-in descriptor, which has no path to open by name.
func Parse(r io.Reader) (Settings, error) {
	out := make(Settings)
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("line %d: missing '='", lineNo)
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	return out, nil
}
