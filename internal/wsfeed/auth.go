package wsfeed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pquerna/otp/totp"
)

// SessionConfig holds the credentials needed to authenticate against a
// venue that gates its private trade/account WebSocket behind a login
// endpoint with TOTP two-factor auth, grounded on the teacher's
// cmd/mdengine pre-market login flow (totp.GenerateCode + session POST).
type SessionConfig struct {
	LoginURL   string `yaml:"login_url"`
	APIKey     string `yaml:"api_key"`
	ClientID   string `yaml:"client_id"`
	Password   string `yaml:"password"`
	TOTPSecret string `yaml:"totp_secret"`
}

// Session holds the tokens returned by a successful login, to be attached
// as WebSocket subscribe-message auth fields.
type Session struct {
	AuthToken string
	FeedToken string
}

// Login generates the current TOTP code and exchanges credentials for a
// session. The public market-data trade stream most perpetual venues
// expose needs no auth at all; Login exists for the private/account feeds
// (fills, position updates) that do.
func Login(cfg SessionConfig) (Session, error) {
	code, err := totp.GenerateCode(cfg.TOTPSecret, time.Now())
	if err != nil {
		return Session{}, fmt.Errorf("totp generate: %w", err)
	}

	body, err := json.Marshal(map[string]string{
		"api_key":   cfg.APIKey,
		"client_id": cfg.ClientID,
		"password":  cfg.Password,
		"totp":      code,
	})
	if err != nil {
		return Session{}, fmt.Errorf("marshal login request: %w", err)
	}

	resp, err := http.Post(cfg.LoginURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return Session{}, fmt.Errorf("login request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Session{}, fmt.Errorf("login failed: status %d", resp.StatusCode)
	}

	var out struct {
		AuthToken string `json:"auth_token"`
		FeedToken string `json:"feed_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Session{}, fmt.Errorf("decode login response: %w", err)
	}
	if out.AuthToken == "" || out.FeedToken == "" {
		return Session{}, fmt.Errorf("login response missing tokens")
	}

	return Session{AuthToken: out.AuthToken, FeedToken: out.FeedToken}, nil
}
