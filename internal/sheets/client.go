// Package sheets is the remote spreadsheet client for attendance mirroring.
//
// Each department owns one sheet tab: row 1 is a header ("職員名" followed by
// one "M/D" column per day of month), data rows are one per employee, and a
// day cell accumulates newline-joined "HH:MM <type>" entries. Punches are
// written with a read-modify-write against the day cell; an entry of the
// same type is replaced in place so a re-punch is idempotent per type per
// day.
//
// Authentication is a service-account credential: an RS256-signed assertion
// exchanged for a short-lived bearer token, cached until shortly before
// expiry. Remote failures carry a Kind so the sync orchestrator can decide
// between retrying and giving up.
package sheets

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const (
	defaultAPIBase  = "https://sheets.googleapis.com/v4/spreadsheets"
	defaultTokenURL = "https://oauth2.googleapis.com/token"
)

// Timeouts sets per-operation deadlines. Writes get a longer budget than
// reads because the append path can create a row first.
type Timeouts struct {
	Read  time.Duration
	Write time.Duration
	Meta  time.Duration
	Token time.Duration
}

// DefaultTimeouts returns the standard per-call budgets.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Read:  5 * time.Second,
		Write: 8 * time.Second,
		Meta:  5 * time.Second,
		Token: 10 * time.Second,
	}
}

// Config carries the credential pair supplied by the settings screen.
type Config struct {
	// ServiceAccountKey is the service-account JSON text, containing at
	// least private_key and client_email.
	ServiceAccountKey string

	// SpreadsheetID identifies the target spreadsheet.
	SpreadsheetID string
}

// Client talks to the spreadsheet service for one spreadsheet.
type Client struct {
	spreadsheetID string
	clientEmail   string
	privateKey    *rsa.PrivateKey

	apiBase  string
	tokenURL string

	httpClient *http.Client
	timeouts   Timeouts
	logger     *log.Logger

	tokenMu     sync.Mutex
	token       string
	tokenExpiry time.Time
}

// Option adjusts a Client at construction time. Used by tests to point the
// client at a local fake service.
type Option func(*Client)

// WithEndpoints overrides the API base and token exchange URLs.
func WithEndpoints(apiBase, tokenURL string) Option {
	return func(c *Client) {
		c.apiBase = apiBase
		c.tokenURL = tokenURL
	}
}

// WithTimeouts overrides the per-operation deadlines.
func WithTimeouts(t Timeouts) Option {
	return func(c *Client) { c.timeouts = t }
}

// New validates the credential and returns a ready client.
//
// Validation is fail-fast: a missing or malformed key errors here, at
// settings-save time, not at first punch time.
func New(cfg Config, logger *log.Logger, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.ServiceAccountKey) == "" {
		return nil, fmt.Errorf("service account key is required")
	}
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, fmt.Errorf("spreadsheet id is required")
	}

	var key struct {
		PrivateKey  string `json:"private_key"`
		ClientEmail string `json:"client_email"`
	}
	if err := json.Unmarshal([]byte(cfg.ServiceAccountKey), &key); err != nil {
		return nil, fmt.Errorf("invalid service account key JSON: %w", err)
	}
	if key.PrivateKey == "" || key.ClientEmail == "" {
		return nil, fmt.Errorf("service account key must contain private_key and client_email")
	}

	pem := strings.ReplaceAll(key.PrivateKey, `\n`, "\n")
	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(pem))
	if err != nil {
		return nil, fmt.Errorf("invalid service account private key: %w", err)
	}

	if logger == nil {
		logger = log.New(os.Stderr, "[sheets] ", log.LstdFlags)
	}

	c := &Client{
		spreadsheetID: cfg.SpreadsheetID,
		clientEmail:   key.ClientEmail,
		privateKey:    privateKey,
		apiBase:       defaultAPIBase,
		tokenURL:      defaultTokenURL,
		httpClient:    &http.Client{},
		timeouts:      DefaultTimeouts(),
		logger:        logger,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// TestConnection performs a full authenticate + metadata-read round trip.
// Any reachable-but-rejected condition returns false rather than an error.
func (c *Client) TestConnection(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Meta)
	defer cancel()

	token, err := c.accessToken(ctx)
	if err != nil {
		c.logger.Printf("Connection test failed to authenticate: %v", err)
		return false
	}

	u := fmt.Sprintf("%s/%s?fields=properties.title", c.apiBase, c.spreadsheetID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Printf("Connection test failed: %v", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Printf("Connection test rejected: HTTP %d", resp.StatusCode)
		return false
	}

	var payload struct {
		Properties struct {
			Title string `json:"title"`
		} `json:"properties"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return false
	}
	return payload.Properties.Title != ""
}

// RecordAttendance writes one punch into the department's sheet.
//
// The read-modify-write against the day cell is not transactional; the
// single-kiosk-per-sheet assumption keeps concurrent writers out in
// practice.
func (c *Client) RecordAttendance(ctx context.Context, departmentName, employeeName, typeName string, ts time.Time) error {
	employeeName = strings.TrimSpace(employeeName)
	if employeeName == "" {
		return fmt.Errorf("employee name is required")
	}

	row, err := c.findEmployeeRow(ctx, departmentName, employeeName)
	if err != nil {
		return err
	}
	if row == 0 {
		// Self-healing: the spreadsheet need not be pre-populated.
		row, err = c.appendEmployeeRow(ctx, departmentName, employeeName)
		if err != nil {
			return err
		}
	}

	cell := fmt.Sprintf("%s!%s%d", departmentName, ColumnLetter(ts.Day()+1), row)

	existing, err := c.readCell(ctx, cell)
	if err != nil {
		return err
	}

	entry := fmt.Sprintf("%s %s", ts.Format("15:04"), typeName)
	updated := mergeCellEntry(existing, entry, typeName)

	if err := c.writeCell(ctx, cell, updated); err != nil {
		return err
	}

	c.logger.Printf("Recorded %s for %s/%s at %s",
		typeName, departmentName, employeeName, ts.Format("15:04"))
	return nil
}

// EnsureDepartmentSheet creates the department's tab if missing and writes
// the header row plus one row per employee for the given month.
func (c *Client) EnsureDepartmentSheet(ctx context.Context, departmentName string, employees []string, month time.Time) error {
	exists, err := c.sheetExists(ctx, departmentName)
	if err != nil {
		return err
	}
	if !exists {
		if err := c.addSheet(ctx, departmentName); err != nil {
			return err
		}
	}

	header := []string{"職員名"}
	days := daysInMonth(month)
	for d := 1; d <= days; d++ {
		header = append(header, fmt.Sprintf("%d/%d", int(month.Month()), d))
	}

	values := [][]string{header}
	for _, name := range employees {
		values = append(values, []string{name})
	}

	rng := fmt.Sprintf("%s!A1:%s%d", departmentName, ColumnLetter(len(header)), len(values))
	return c.writeRange(ctx, rng, values)
}

// findEmployeeRow scans column A for an exact (trimmed) name match. Returns
// the 1-based row number, or 0 when the employee has no row yet.
func (c *Client) findEmployeeRow(ctx context.Context, departmentName, employeeName string) (int, error) {
	values, err := c.readRange(ctx, fmt.Sprintf("%s!A:A", departmentName))
	if err != nil {
		return 0, err
	}

	for i, rowVals := range values {
		if i == 0 {
			continue // header row
		}
		if len(rowVals) > 0 && strings.TrimSpace(rowVals[0]) == employeeName {
			return i + 1, nil
		}
	}
	return 0, nil
}

// appendEmployeeRow appends a row containing only the employee name and
// returns its row number.
func (c *Client) appendEmployeeRow(ctx context.Context, departmentName, employeeName string) (int, error) {
	values, err := c.readRange(ctx, fmt.Sprintf("%s!A:A", departmentName))
	if err != nil {
		return 0, err
	}

	row := len(values) + 1
	if row < 2 {
		// Row 1 is the header slot; a bare sheet must not put a name there.
		row = 2
	}
	if err := c.writeCell(ctx, fmt.Sprintf("%s!A%d", departmentName, row), employeeName); err != nil {
		return 0, err
	}

	c.logger.Printf("Added employee row for %s in %s", employeeName, departmentName)
	return row, nil
}

// readRange fetches a rectangular region as strings.
func (c *Client) readRange(ctx context.Context, rng string) ([][]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Read)
	defer cancel()

	u := fmt.Sprintf("%s/%s/values/%s", c.apiBase, c.spreadsheetID, url.PathEscape(rng))
	body, err := c.doJSON(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Values [][]string `json:"values"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode range response: %w", err)
	}
	return payload.Values, nil
}

// readCell returns the single cell's value, empty when the cell is blank.
func (c *Client) readCell(ctx context.Context, cell string) (string, error) {
	values, err := c.readRange(ctx, cell)
	if err != nil {
		return "", err
	}
	if len(values) == 0 || len(values[0]) == 0 {
		return "", nil
	}
	return values[0][0], nil
}

// writeCell updates a single cell.
func (c *Client) writeCell(ctx context.Context, cell, value string) error {
	return c.writeRange(ctx, cell, [][]string{{value}})
}

// writeRange updates a rectangular region with USER_ENTERED semantics.
func (c *Client) writeRange(ctx context.Context, rng string, values [][]string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Write)
	defer cancel()

	u := fmt.Sprintf("%s/%s/values/%s?valueInputOption=USER_ENTERED",
		c.apiBase, c.spreadsheetID, url.PathEscape(rng))

	payload := map[string]any{"values": values}
	if _, err := c.doJSON(ctx, http.MethodPut, u, payload); err != nil {
		return err
	}
	return nil
}

// sheetExists checks the spreadsheet metadata for a tab with the given title.
func (c *Client) sheetExists(ctx context.Context, title string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Meta)
	defer cancel()

	u := fmt.Sprintf("%s/%s?fields=sheets.properties.title", c.apiBase, c.spreadsheetID)
	body, err := c.doJSON(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, err
	}

	var payload struct {
		Sheets []struct {
			Properties struct {
				Title string `json:"title"`
			} `json:"properties"`
		} `json:"sheets"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return false, fmt.Errorf("failed to decode metadata response: %w", err)
	}

	for _, sh := range payload.Sheets {
		if sh.Properties.Title == title {
			return true, nil
		}
	}
	return false, nil
}

// addSheet creates a new tab.
func (c *Client) addSheet(ctx context.Context, title string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Write)
	defer cancel()

	u := fmt.Sprintf("%s/%s:batchUpdate", c.apiBase, c.spreadsheetID)
	payload := map[string]any{
		"requests": []map[string]any{
			{"addSheet": map[string]any{
				"properties": map[string]any{"title": title},
			}},
		},
	}
	if _, err := c.doJSON(ctx, http.MethodPost, u, payload); err != nil {
		return err
	}

	c.logger.Printf("Created sheet %q", title)
	return nil
}

// doJSON performs an authenticated request and returns the response body.
// Non-2xx statuses come back as classified APIErrors; a 401 additionally
// drops the cached token.
func (c *Client) doJSON(ctx context.Context, method, u string, payload any) ([]byte, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyErr(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, classifyErr(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if resp.StatusCode == http.StatusUnauthorized {
			c.invalidateToken()
		}
		return nil, classifyStatus(resp.StatusCode, apiErrorMessage(body))
	}

	return body, nil
}

// apiErrorMessage extracts the service's error message when present.
func apiErrorMessage(body []byte) string {
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error.Message != "" {
		return payload.Error.Message
	}
	return strings.TrimSpace(string(body))
}

func daysInMonth(t time.Time) int {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return first.AddDate(0, 1, -1).Day()
}
