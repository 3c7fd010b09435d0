package utils

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/voreskerne/frivillig/internal/config"
)

const (
	AuthPort       = 3000
	authTimeout    = 5 * time.Minute
	callbackPath   = "/oauth/callback"
	tokenDirName   = ".frivillig/tokens"
	tokenFilePerms = 0600 // Read/write for owner only
	tokenDirPerms  = 0700 // Read/write/execute for owner only
	tokenInfoURL   = "https://oauth2.googleapis.com/tokeninfo"
)

// ScopeGmailSend is the only Google scope the application needs
const ScopeGmailSend = "https://www.googleapis.com/auth/gmail.send"

// ErrNoStoredToken is returned when the mail sender has not been authorised yet
var ErrNoStoredToken = errors.New("no stored mail token, run authorizeMail first")

// GetOAuthConfig creates an OAuth2 config for sending mail from the OAuth client configuration
func GetOAuthConfig(oauthCfg *config.OAuthClientConfig) (*oauth2.Config, error) {
	oauthConfigJSON, err := json.Marshal(oauthCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal oauth config: %w", err)
	}

	googleConfig, err := google.ConfigFromJSON(oauthConfigJSON, ScopeGmailSend)
	if err != nil {
		return nil, fmt.Errorf("failed to create google config: %w", err)
	}

	// Override redirect URI to use our local server
	googleConfig.RedirectURL = fmt.Sprintf("http://localhost:%d%s", AuthPort, callbackPath)

	return googleConfig, nil
}

// TokenStore persists the mail sender's OAuth token for one environment
type TokenStore struct {
	Dir string
	Env string
}

// DefaultTokenStore keeps tokens under ~/.frivillig/tokens
func DefaultTokenStore(env string) (*TokenStore, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	return &TokenStore{Dir: filepath.Join(homeDir, tokenDirName), Env: env}, nil
}

func (s *TokenStore) path() string {
	return filepath.Join(s.Dir, fmt.Sprintf("token-%s.json", s.Env))
}

// Load returns nil without error when no token has been stored yet
func (s *TokenStore) Load() (*oauth2.Token, error) {
	data, err := os.ReadFile(s.path())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}
	return &token, nil
}

// Save writes the token with owner-only permissions
func (s *TokenStore) Save(token *oauth2.Token) error {
	if err := os.MkdirAll(s.Dir, tokenDirPerms); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	if err := os.WriteFile(s.path(), data, tokenFilePerms); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}

// Delete removes the stored token. A missing file is not an error.
func (s *TokenStore) Delete() error {
	if err := os.Remove(s.path()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete token file: %w", err)
	}
	return nil
}

// StoredTokenSource returns a token source for a long-running process. It
// starts from the stored token, refreshes it as needed and writes refreshed
// tokens back so restarts keep working. It never starts an interactive flow.
func StoredTokenSource(ctx context.Context, oauthConfig *oauth2.Config, store *TokenStore, logger *zap.Logger) (oauth2.TokenSource, error) {
	token, err := store.Load()
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, ErrNoStoredToken
	}

	return &persistingSource{
		base:   oauthConfig.TokenSource(ctx, token),
		store:  store,
		last:   token.AccessToken,
		logger: logger,
	}, nil
}

// persistingSource saves every new access token it sees
type persistingSource struct {
	base   oauth2.TokenSource
	store  *TokenStore
	logger *zap.Logger

	mu   sync.Mutex
	last string
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	token, err := p.base.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh mail token: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if token.AccessToken != p.last {
		p.last = token.AccessToken
		if err := p.store.Save(token); err != nil {
			// The token is still usable in memory
			p.logger.Warn("Failed to save refreshed mail token", zap.Error(err))
		} else {
			p.logger.Info("Mail token refreshed")
		}
	}
	return token, nil
}

// Authorize runs the interactive consent flow and stores the resulting token.
// A stored token that is still valid, or can be refreshed, is reused.
func Authorize(ctx context.Context, oauthConfig *oauth2.Config, store *TokenStore, logger *zap.Logger) (*oauth2.Token, error) {
	existing, err := store.Load()
	if err != nil {
		logger.Warn("Ignoring unreadable token file", zap.Error(err))
	}

	if existing != nil {
		token, err := oauthConfig.TokenSource(ctx, existing).Token()
		if err == nil {
			if err := validateTokenScopes(ctx, token); err == nil {
				if token.AccessToken != existing.AccessToken {
					if err := store.Save(token); err != nil {
						return nil, err
					}
				}
				logger.Info("Stored mail token is valid", zap.String("env", store.Env))
				return token, nil
			}
			logger.Warn("Stored mail token is missing the send scope, starting over", zap.Error(err))
		} else {
			logger.Warn("Stored mail token could not be refreshed, starting over", zap.Error(err))
		}
		if err := store.Delete(); err != nil {
			return nil, err
		}
	}

	authURL := oauthConfig.AuthCodeURL("state", oauth2.AccessTypeOffline)
	fmt.Printf("\nVisit this URL to authorize sending mail:\n%s\n\n", authURL)

	code, err := listenForAuthCallback(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get authorization code: %w", err)
	}

	token, err := oauthConfig.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code for token: %w", err)
	}

	if err := validateTokenScopes(ctx, token); err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}

	if err := store.Save(token); err != nil {
		return nil, err
	}

	logger.Info("Mail sender authorised", zap.String("env", store.Env))
	return token, nil
}

// validateTokenScopes checks the token carries the send scope using Google's tokeninfo endpoint
func validateTokenScopes(ctx context.Context, token *oauth2.Token) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tokenInfoURL+"?access_token="+token.AccessToken, nil)
	if err != nil {
		return fmt.Errorf("failed to create tokeninfo request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call tokeninfo endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("tokeninfo request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var tokenInfo struct {
		Scope string `json:"scope"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenInfo); err != nil {
		return fmt.Errorf("failed to decode tokeninfo response: %w", err)
	}

	if !slices.Contains(strings.Fields(tokenInfo.Scope), ScopeGmailSend) {
		return fmt.Errorf("token is missing scope %s", ScopeGmailSend)
	}
	return nil
}

// listenForAuthCallback starts a local HTTP server and waits for the OAuth callback
func listenForAuthCallback(ctx context.Context) (string, error) {
	codeChan := make(chan string, 1)
	errChan := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			errChan <- fmt.Errorf("no authorization code received")
			http.Error(w, "Authorization failed", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><h1>Authorization successful!</h1><p>You can close this window.</p></body></html>`)
		codeChan <- code
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", AuthPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	timeoutCtx, cancel := context.WithTimeout(ctx, authTimeout)
	defer cancel()

	var code string
	var authErr error

	select {
	case code = <-codeChan:
	case authErr = <-errChan:
	case <-timeoutCtx.Done():
		authErr = fmt.Errorf("authorization timeout after %v", authTimeout)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)

	return code, authErr
}
