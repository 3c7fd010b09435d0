package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// OAuthClientConfig is the Google "installed app" client used to authorise the Gmail sender
type OAuthClientConfig struct {
	Installed OAuthInstalled `json:"installed" validate:"required"`
}

// OAuthInstalled represents the installed section of OAuth config
type OAuthInstalled struct {
	ClientID                string   `json:"client_id" validate:"required"`
	ProjectID               string   `json:"project_id" validate:"required"`
	AuthURI                 string   `json:"auth_uri" validate:"required,url"`
	TokenURI                string   `json:"token_uri" validate:"required,url"`
	AuthProviderX509CertURL string   `json:"auth_provider_x509_cert_url" validate:"required,url"`
	ClientSecret            string   `json:"client_secret" validate:"required"`
	RedirectURIs            []string `json:"redirect_uris" validate:"required,min=1,dive,uri"`
}

// LoadMailClient loads the OAuth client for the given environment from
// mailClient.<env>.json in the current directory or the home directory
func LoadMailClient(env string) (*OAuthClientConfig, error) {
	name := "mailClient.json"
	if env != "" {
		name = "mailClient." + env + ".json"
	}

	path := name
	if _, err := os.Stat(path); err != nil {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, name)
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("mail client file %s not found in current directory or home directory", name)
		}
	}

	return LoadMailClientFromPath(path)
}

// LoadMailClientFromPath loads and validates the OAuth client configuration from a specific path
func LoadMailClientFromPath(path string) (*OAuthClientConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mail client file: %w", err)
	}

	var oauthCfg OAuthClientConfig
	if err := json.Unmarshal(data, &oauthCfg); err != nil {
		return nil, fmt.Errorf("failed to parse mail client file: %w", err)
	}

	if err := validate.Struct(&oauthCfg); err != nil {
		return nil, fmt.Errorf("mail client validation failed: %w", err)
	}

	return &oauthCfg, nil
}
