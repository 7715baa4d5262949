package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cowrite/cowrite/server"
)

// FileConfig is the optional YAML configuration declaring static users and
// document ACLs. Without one the server runs open: any non-empty token is
// accepted as an identity and every document admits everyone.
type FileConfig struct {
	Users     []UserConfig     `yaml:"users"`
	Documents []DocumentConfig `yaml:"documents"`
}

type UserConfig struct {
	Token    string `yaml:"token"`
	ID       string `yaml:"id"`
	Username string `yaml:"username"`
}

type DocumentConfig struct {
	ID            string   `yaml:"id"`
	Owner         string   `yaml:"owner"`
	Public        bool     `yaml:"public"`
	Collaborators []string `yaml:"collaborators"`
}

// loadConfig reads and parses the configuration file.
func loadConfig(path string) (*FileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}

	var cfg FileConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	return &cfg, nil
}

// collaborators builds the auth/ACL collaborators from the file config.
func (c *FileConfig) collaborators() (server.Authenticator, server.AccessController) {
	auth := server.StaticAuthenticator{}
	for _, u := range c.Users {
		auth[u.Token] = server.Identity{UserID: u.ID, Username: u.Username}
	}

	acl := server.StaticAccessController{Documents: map[string]server.DocumentACL{}}
	for _, d := range c.Documents {
		acl.Documents[d.ID] = server.DocumentACL{
			Owner:         d.Owner,
			Public:        d.Public,
			Collaborators: d.Collaborators,
		}
	}
	return auth, acl
}
