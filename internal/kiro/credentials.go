package kiro

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
)

// Credentials is the stored credential blob for one upstream account.
type Credentials struct {
	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
	ClientID     string `json:"clientId,omitempty"`
	ClientSecret string `json:"clientSecret,omitempty"`
	Region       string `json:"region,omitempty"`
	ProfileArn   string `json:"profileArn,omitempty"`
	ExpiresIn    int64  `json:"expiresIn,omitempty"`
	RefreshedAt  int64  `json:"refreshedAt,omitempty"`
	ExpiresAt    string `json:"expiresAt,omitempty"`
}

// ParseCredentials decodes a credential JSON blob, accepting both camelCase
// and snake_case field names.
func ParseCredentials(raw string) (*Credentials, error) {
	var c Credentials
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, fmt.Errorf("invalid credentials JSON: %w", err)
	}
	// snake_case fallbacks
	var alt struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`
		ProfileArn   string `json:"profile_arn"`
	}
	_ = json.Unmarshal([]byte(raw), &alt)
	if c.AccessToken == "" {
		c.AccessToken = alt.AccessToken
	}
	if c.RefreshToken == "" {
		c.RefreshToken = alt.RefreshToken
	}
	if c.ClientID == "" {
		c.ClientID = alt.ClientID
	}
	if c.ClientSecret == "" {
		c.ClientSecret = alt.ClientSecret
	}
	if c.ProfileArn == "" {
		c.ProfileArn = alt.ProfileArn
	}
	if c.Region == "" {
		c.Region = DefaultRegion
	}
	return &c, nil
}

// Marshal serializes the credentials back to their stored form.
func (c *Credentials) Marshal() string {
	b, _ := json.Marshal(c)
	return string(b)
}

func (c *Credentials) canRefresh() bool {
	return c.RefreshToken != "" && c.ClientID != "" && c.ClientSecret != ""
}

// Expired reports whether the access token is past (or within 60 seconds of)
// its expiry. Credentials without refresh bookkeeping count as expired.
func (c *Credentials) Expired(now time.Time) bool {
	refreshedAt := c.RefreshedAt
	expiresIn := c.ExpiresIn
	if expiresIn == 0 {
		expiresIn = 3600
	}

	if refreshedAt == 0 && c.ExpiresAt != "" {
		if t, err := time.Parse(time.RFC3339, c.ExpiresAt); err == nil {
			refreshedAt = t.Unix() - expiresIn
		}
	}
	if refreshedAt == 0 {
		return true
	}
	return now.Unix() >= refreshedAt+expiresIn-60
}

type refreshResult struct {
	AccessToken string
	ExpiresIn   int64
	RefreshedAt int64
}

func (c *Credentials) apply(r *refreshResult) {
	c.AccessToken = r.AccessToken
	c.ExpiresIn = r.ExpiresIn
	c.RefreshedAt = r.RefreshedAt
}

// refreshToken exchanges the refresh token at the regional OIDC endpoint.
func refreshToken(ctx context.Context, client *http.Client, c *Credentials) (*refreshResult, error) {
	ssoURL := fmt.Sprintf("https://oidc.%s.amazonaws.com/token", c.Region)
	payload, _ := json.Marshal(map[string]string{
		"clientId":     c.ClientID,
		"clientSecret": c.ClientSecret,
		"refreshToken": c.RefreshToken,
		"grantType":    "refresh_token",
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ssoURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token refresh: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		log.WithField("status", resp.StatusCode).Error("Token refresh failed")
		return nil, fmt.Errorf("token refresh failed (%d)", resp.StatusCode)
	}

	var data struct {
		AccessToken string `json:"accessToken"`
		ExpiresIn   int64  `json:"expiresIn"`
	}
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("token refresh decode: %w", err)
	}
	if data.AccessToken == "" {
		return nil, fmt.Errorf("token refresh response missing accessToken")
	}
	expiresIn := data.ExpiresIn
	if expiresIn == 0 {
		expiresIn = 3600
	}
	return &refreshResult{
		AccessToken: data.AccessToken,
		ExpiresIn:   expiresIn,
		RefreshedAt: time.Now().UTC().Unix(),
	}, nil
}
