// Package plex talks to the Plex Media Server HTTP API.
package plex

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const tokenParam = "X-Plex-Token"


// StatusError is returned when Plex answers with a non-200 status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("plex API error: %d - %s", e.StatusCode, e.Body)
}

// Client issues requests against Plex servers. Every request is bounded by
// the client timeout.
type Client struct {
	http   *http.Client
	logger *slog.Logger
}

// NewClient creates a client whose requests time out after timeout.
func NewClient(timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		http:   &http.Client{Timeout: timeout},
		logger: logger.With("component", "plex"),
	}
}

// Section is a library section as listed by /library/sections.
type Section struct {
	Key       string     `xml:"key,attr" json:"key"`
	Title     string     `xml:"title,attr" json:"title"`
	Type      string     `xml:"type,attr" json:"type"`
	Locations []Location `xml:"Location" json:"locations"`
}

// Location is a root folder of a section.
type Location struct {
	ID   string `xml:"id,attr" json:"id"`
	Path string `xml:"path,attr" json:"path"`
}

// Identity is the /identity response.
type Identity struct {
	MachineIdentifier string `xml:"machineIdentifier,attr"`
	Version           string `xml:"version,attr"`
}

// QuotePath percent-encodes p for use inside a query value, leaving '/'
// intact. Commas are encoded, so a comma-joined list stays unambiguous.
func QuotePath(p string) string {
	segments := strings.Split(p, "/")
	for i, seg := range segments {
		segments[i] = strings.ReplaceAll(url.QueryEscape(seg), "+", "%20")
	}
	return strings.Join(segments, "/")
}

// RefreshURL builds the partial scan URL for a section. The path value is
// the comma-joined list of individually quoted paths; it is query-encoded
// once more on top, so Plex can split on commas before unquoting each path.
func RefreshURL(baseURL, token, sectionID string, paths []string) string {
	quoted := make([]string, len(paths))
	for i, p := range paths {
		quoted[i] = QuotePath(p)
	}
	params := url.Values{}
	params.Set("path", strings.Join(quoted, ","))
	params.Set(tokenParam, token)
	return fmt.Sprintf("%s/library/sections/%s/refresh?%s",
		strings.TrimRight(baseURL, "/"),
		url.PathEscape(sectionID),
		params.Encode(),
	)
}

// RefreshSection asks Plex to rescan paths in a section. Any status other
// than 200 is returned as a *StatusError carrying the response body.
func (c *Client) RefreshSection(ctx context.Context, baseURL, token, sectionID string, paths []string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, RefreshURL(baseURL, token, sectionID, paths), nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Sections lists the library sections of a server.
func (c *Client) Sections(ctx context.Context, baseURL, token string) ([]Section, error) {
	var container struct {
		Directories []Section `xml:"Directory"`
	}
	if err := c.getXML(ctx, baseURL, "/library/sections", token, &container); err != nil {
		return nil, err
	}
	return container.Directories, nil
}

// Identity probes a server. It doubles as a connection test.
func (c *Client) Identity(ctx context.Context, baseURL, token string) (*Identity, error) {
	var id Identity
	if err := c.getXML(ctx, baseURL, "/identity", token, &id); err != nil {
		return nil, err
	}
	return &id, nil
}

func (c *Client) getXML(ctx context.Context, baseURL, path, token string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/xml")
	if token != "" {
		req.Header.Set(tokenParam, token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	if err := xml.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	c.logger.Debug("Plex request succeeded", "path", path)
	return nil
}
