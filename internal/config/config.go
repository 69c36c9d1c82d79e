// Package config defines the necessary types to configure the application.
// An example config file config.yaml is provided in the repository.
package config

import (
	"github.com/openkcm/common-sdk/pkg/commoncfg"
)

type Config struct {
	commoncfg.BaseConfig `mapstructure:",squash" yaml:",inline"`

	Provider        Provider        `yaml:"provider"`
	HostedUI        HostedUI        `yaml:"hostedUI"`
	CredentialStore CredentialStore `yaml:"credentialStore"`

	Database Database `yaml:"database"`
	ValKey   ValKey   `yaml:"valkey"`
	Migrate  Migrate  `yaml:"migrate"`
	Hub      Hub      `yaml:"hub"`
}

// Provider configures the challenge-response endpoint of the identity
// provider.
type Provider struct {
	Endpoint string              `yaml:"endpoint"`
	ClientID commoncfg.SourceRef `yaml:"clientID"`
}

// HostedUI configures the browser-delegated sign-in flow.
type HostedUI struct {
	Domain             string              `yaml:"domain"`
	ClientID           commoncfg.SourceRef `yaml:"clientID"`
	Scopes             []string            `yaml:"scopes"`
	SignInRedirectURI  string              `yaml:"signInRedirectURI" default:"http://localhost:8765/callback"`
	SignOutRedirectURI string              `yaml:"signOutRedirectURI"`
	IdentityProvider   string              `yaml:"identityProvider"`
	DisablePKCE        bool                `yaml:"disablePKCE"`
}

// Credential store backends.
const (
	CredentialStoreMemory = "memory"
	CredentialStoreValKey = "valkey"
	CredentialStoreSQL    = "sql"
)

type CredentialStore struct {
	Backend string `yaml:"backend" default:"memory"`
	Prefix  string `yaml:"prefix" default:"signin"`
}

type Database struct {
	Name     string              `yaml:"name"`
	Port     string              `yaml:"port"`
	Host     commoncfg.SourceRef `yaml:"host"`
	User     commoncfg.SourceRef `yaml:"user"`
	Password commoncfg.SourceRef `yaml:"password"`
	SSLMode  string              `yaml:"sslMode"`
}

type ValKey struct {
	Host      commoncfg.SourceRef `yaml:"host"`
	User      commoncfg.SourceRef `yaml:"user"`
	Password  commoncfg.SourceRef `yaml:"password"`
	SecretRef commoncfg.SecretRef `yaml:"secretRef"`
	Prefix    string              `yaml:"prefix"`
}

type Hub struct {
	Buffer int `yaml:"buffer" default:"64"`
}

type Migrate struct {
	Source string `yaml:"source" default:"file://./sql"`
}
