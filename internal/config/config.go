// Package config loads the backend configuration file: a JSON document
// naming every backend MCP server this process should connect to at
// startup.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"

	"github.com/shuaige121/tool-gating-mcp/internal/apperr"
	"github.com/shuaige121/tool-gating-mcp/internal/session"
)

// backendNamePattern matches the id grammar's reserved "<backend>_<native>"
// separator: a backend name may not itself contain an underscore, or a
// registered tool id would become ambiguous to split.
var backendNamePattern = regexp.MustCompile(`^[A-Za-z0-9-]+$`)

// ServerConfig is one backend's launch specification as it appears in the
// config file.
type ServerConfig struct {
	Command string            `json:"command"`
	Args    []string          `json:"args"`
	Env     map[string]string `json:"env"`
}

// BackendsFile is the top-level shape of the backend config file.
type BackendsFile struct {
	Servers map[string]ServerConfig `json:"servers"`
}

// Load reads and validates path, returning a config_error on any I/O,
// parse, or validation failure (startup-fatal, per the error handling
// design).
func Load(path string) (*BackendsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.NewConfigError(fmt.Sprintf("failed to read backend config %q", path), err)
	}

	var file BackendsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, apperr.NewConfigError(fmt.Sprintf("failed to parse backend config %q", path), err)
	}

	if err := Validate(&file); err != nil {
		return nil, apperr.NewConfigError(fmt.Sprintf("invalid backend config %q", path), err)
	}

	return &file, nil
}

// Validate enforces the per-server rules: the backend name must match the
// id grammar (letters, digits, hyphens — no underscore, which is reserved
// as the "<backend>_<native>" separator); command must be non-empty; args
// defaults to an empty slice rather than nil so downstream exec.Command
// calls never see a nil slice.
func Validate(file *BackendsFile) error {
	for name, server := range file.Servers {
		if !backendNamePattern.MatchString(name) {
			return fmt.Errorf("server %q: backend name must match %s (rename at config time)", name, backendNamePattern.String())
		}
		if server.Command == "" {
			return fmt.Errorf("server %q: command is required", name)
		}
		if server.Args == nil {
			server.Args = []string{}
			file.Servers[name] = server
		}
	}
	return nil
}

// ToBackendSpecs converts a loaded config file into the launch specs the
// Proxy's Startup expects.
func (f *BackendsFile) ToBackendSpecs() map[string]session.BackendSpec {
	specs := make(map[string]session.BackendSpec, len(f.Servers))
	for name, server := range f.Servers {
		specs[name] = session.BackendSpec{
			Command: server.Command,
			Args:    server.Args,
			Env:     server.Env,
		}
	}
	return specs
}
