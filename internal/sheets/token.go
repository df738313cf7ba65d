package sheets

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const (
	// tokenEarlyExpiry is subtracted from the reported lifetime so a token
	// is never used within a minute of expiring.
	tokenEarlyExpiry = time.Minute

	scopeSpreadsheets = "https://www.googleapis.com/auth/spreadsheets"
)

// accessToken returns a cached bearer token, exchanging a fresh signed
// assertion when the cache is empty or about to expire.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	assertion, err := c.signAssertion()
	if err != nil {
		return "", fmt.Errorf("failed to sign token assertion: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Token)
	defer cancel()

	form := url.Values{
		"grant_type": {"urn:ietf:params:oauth:grant-type:jwt-bearer"},
		"assertion":  {assertion},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", classifyErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", classifyStatus(resp.StatusCode,
			fmt.Sprintf("token request failed: %s", strings.TrimSpace(string(body))))
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if payload.AccessToken == "" {
		return "", &APIError{Kind: KindAuth, Message: "token response carried no access_token"}
	}

	c.token = payload.AccessToken
	c.tokenExpiry = time.Now().
		Add(time.Duration(payload.ExpiresIn) * time.Second).
		Add(-tokenEarlyExpiry)

	return c.token, nil
}

// signAssertion builds the RS256 service-account assertion for the token
// exchange.
func (c *Client) signAssertion() (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":   c.clientEmail,
		"scope": scopeSpreadsheets,
		"aud":   c.tokenURL,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(c.privateKey)
}

// invalidateToken drops the cached token so the next call re-authenticates.
func (c *Client) invalidateToken() {
	c.tokenMu.Lock()
	c.token = ""
	c.tokenExpiry = time.Time{}
	c.tokenMu.Unlock()
}
