package tidal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	ioutils "github.com/handiism/tidal-downloader/internal/io"
	"github.com/handiism/tidal-downloader/internal/model"
)

// TokenLifetime is how long a cached token is trusted.
const TokenLifetime = time.Hour

// tokenFile is the on-disk token cache.
type tokenFile struct {
	Token       string  `json:"token"`
	LastUpdated float64 `json:"last_updated"`
}

// TokenManager caches the bearer token in a JSON file.
type TokenManager struct {
	path string
	now  func() time.Time
}

// NewTokenManager creates a TokenManager backed by path.
func NewTokenManager(path string) *TokenManager {
	return &TokenManager{path: path, now: time.Now}
}

// Load returns the cached token. It returns model.ErrNoCredential when the
// file is missing, empty or older than TokenLifetime.
func (tm *TokenManager) Load() (string, error) {
	data, err := os.ReadFile(tm.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", model.ErrNoCredential
		}
		return "", err
	}

	var tf tokenFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return "", fmt.Errorf("parse token file %s: %w", tm.path, err)
	}
	if strings.TrimSpace(tf.Token) == "" {
		return "", model.ErrNoCredential
	}

	updated := time.Unix(0, int64(tf.LastUpdated*float64(time.Second)))
	if tm.now().Sub(updated) > TokenLifetime {
		return "", fmt.Errorf("%w: cached token expired", model.ErrNoCredential)
	}
	return tf.Token, nil
}

// Save stores token with the current time.
func (tm *TokenManager) Save(ctx context.Context, token string) error {
	now := tm.now()
	data, err := json.MarshalIndent(tokenFile{
		Token:       strings.TrimPrefix(strings.TrimSpace(token), "Bearer "),
		LastUpdated: float64(now.UnixNano()) / float64(time.Second),
	}, "", "  ")
	if err != nil {
		return err
	}
	return ioutils.WriteFileAtomic(ctx, tm.path, data)
}

// Credential is what a request needs to talk to the API.
type Credential struct {
	Token       string
	CountryCode string
}

// SessionConfig configures a Session.
type SessionConfig struct {
	// Token, when set, takes precedence over the token file and is saved
	// to it.
	Token string

	// TokenFile is the path of the token cache. Empty disables caching.
	TokenFile string

	CountryCode string
}

// Session hands out the current credential and forgets it when the API
// rejects it.
type Session struct {
	mu          sync.Mutex
	tokens      *TokenManager
	token       string
	rejected    string
	countryCode string
}

// NewSession creates a Session. A token given in cfg is written to the
// token file.
func NewSession(ctx context.Context, cfg SessionConfig) (*Session, error) {
	s := &Session{countryCode: strings.ToUpper(strings.TrimSpace(cfg.CountryCode))}
	if s.countryCode == "" {
		s.countryCode = "US"
	}
	if cfg.TokenFile != "" {
		s.tokens = NewTokenManager(cfg.TokenFile)
	}

	if token := strings.TrimPrefix(strings.TrimSpace(cfg.Token), "Bearer "); token != "" {
		s.token = token
		if s.tokens != nil {
			if err := s.tokens.Save(ctx, token); err != nil {
				return nil, fmt.Errorf("save token: %w", err)
			}
		}
	}
	return s, nil
}

// Credential returns the current credential, loading the token file when
// no token is held.
func (s *Session) Credential(ctx context.Context) (Credential, error) {
	if err := ctx.Err(); err != nil {
		return Credential{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token == "" && s.tokens != nil {
		token, err := s.tokens.Load()
		if err != nil {
			return Credential{}, err
		}
		if token == s.rejected {
			return Credential{}, model.ErrAuthExpired
		}
		s.token = token
	}
	if s.token == "" {
		return Credential{}, model.ErrNoCredential
	}
	return Credential{Token: s.token, CountryCode: s.countryCode}, nil
}

// Invalidate drops the held token after the API rejected it. The same
// token is not picked up again from the token file.
func (s *Session) Invalidate() {
	s.mu.Lock()
	if s.token != "" {
		s.rejected = s.token
	}
	s.token = ""
	s.mu.Unlock()
}
