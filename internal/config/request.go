package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"reposync.dev/reposync/internal/access"
)

// Request describes one repository to synchronize
//
//	url: ssh://git@example.com/team/app.git
//	branch: main
//	directory: /var/builds/app
//	cache: /var/cache/app
//	shallow: true
//	timeout: 5m
//	auth:
//	  type: ssh-keypair
//	  ssh-key-file: ~/.ssh/id_ed25519
type Request struct {
	URL        string        `yaml:"url"`
	Branch     string        `yaml:"branch,omitempty"`
	Directory  string        `yaml:"directory,omitempty"`
	Cache      string        `yaml:"cache,omitempty"`
	Shallow    bool          `yaml:"shallow,omitempty"`
	Submodules bool          `yaml:"submodules,omitempty"`
	Verbose    bool          `yaml:"verbose,omitempty"`
	Timeout    time.Duration `yaml:"timeout,omitempty"`
	Auth       Auth          `yaml:"auth,omitempty"`
}

// Auth holds the credentials of a request
type Auth struct {
	Type       string `yaml:"type,omitempty"`
	Username   string `yaml:"username,omitempty"`
	Password   string `yaml:"password,omitempty"`
	SSHKey     string `yaml:"ssh-key,omitempty"`
	SSHKeyFile string `yaml:"ssh-key-file,omitempty"`
	Passphrase string `yaml:"passphrase,omitempty"`
}

// ReadRequest decodes a request file. Unknown keys are rejected.
func ReadRequest(path string) (*Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read request file: %w", err)
	}
	req, err := ParseRequest(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse request file %s: %w", path, err)
	}
	return req, nil
}

// ParseRequest decodes a YAML request document
func ParseRequest(data []byte) (*Request, error) {
	var req Request
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

// AccessData converts the request into the engine's access record. A zero
// request timeout falls back to the settings.
func (r *Request) AccessData(settings Settings) (*access.Data, error) {
	if strings.TrimSpace(r.URL) == "" {
		return nil, fmt.Errorf("repository url is required")
	}

	authType, err := access.ParseAuthType(r.Auth.Type)
	if err != nil {
		return nil, err
	}

	key := r.Auth.SSHKey
	if key == "" && r.Auth.SSHKeyFile != "" {
		raw, err := os.ReadFile(expandHome(r.Auth.SSHKeyFile))
		if err != nil {
			return nil, fmt.Errorf("failed to read ssh key: %w", err)
		}
		key = string(raw)
	}
	if authType == access.AuthSSHKeypair && key == "" {
		return nil, fmt.Errorf("auth type %s requires ssh-key or ssh-key-file", authType)
	}

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = settings.CommandTimeout
	}

	return &access.Data{
		RepositoryURL:    strings.TrimSpace(r.URL),
		Branch:           strings.TrimSpace(r.Branch),
		AuthType:         authType,
		Username:         r.Auth.Username,
		Password:         r.Auth.Password,
		SSHKey:           key,
		SSHPassphrase:    r.Auth.Passphrase,
		CommandTimeout:   timeout,
		UseShallowClones: r.Shallow,
		UseSubmodules:    r.Submodules,
		VerboseLogs:      r.Verbose,
	}, nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
