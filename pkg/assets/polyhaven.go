// Package assets implements the optional asset integrations: the Poly Haven
// library and Hyper3D Rodin model generation.
package assets

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	DefaultPolyHavenURL = "https://api.polyhaven.com"
	defaultHTTPTimeout  = 15 * time.Second
	defaultCacheTTL     = 10 * time.Minute
	userAgent           = "hostbridge"
)

// Poly Haven asset types.
var assetTypes = []string{"hdris", "textures", "models", "all"}

func validAssetType(t string) error {
	for _, v := range assetTypes {
		if t == v {
			return nil
		}
	}
	return fmt.Errorf("Invalid asset type: %s. Must be one of: %s", t, strings.Join(assetTypes, ", "))
}

// APIError represents a non-200 API response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, msg)
}

// Asset is the subset of Poly Haven asset metadata the host uses.
type Asset struct {
	Name          string   `json:"name"`
	Type          int      `json:"type"`
	Categories    []string `json:"categories"`
	Tags          []string `json:"tags,omitempty"`
	DownloadCount int      `json:"download_count"`
}

type cacheEntry struct {
	at   time.Time
	data []byte
}

// PolyHaven is a small Poly Haven API client. Responses are cached for a
// while because handlers run on the host loop.
type PolyHaven struct {
	baseURL string
	client  *http.Client
	ttl     time.Duration

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewPolyHaven creates a client. An empty baseURL selects the public API.
func NewPolyHaven(baseURL string, client *http.Client) *PolyHaven {
	if baseURL == "" {
		baseURL = DefaultPolyHavenURL
	}
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &PolyHaven{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		ttl:     defaultCacheTTL,
		cache:   make(map[string]cacheEntry),
	}
}

func (p *PolyHaven) get(ctx context.Context, path string, query url.Values, v any) error {
	u := p.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	p.mu.Lock()
	entry, ok := p.cache[u]
	p.mu.Unlock()
	if ok && time.Since(entry.at) < p.ttl {
		return json.Unmarshal(entry.data, v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("connection error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Message: string(body)}
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	p.mu.Lock()
	p.cache[u] = cacheEntry{at: time.Now(), data: body}
	p.mu.Unlock()
	return nil
}

// Categories returns category names with their asset counts.
func (p *PolyHaven) Categories(ctx context.Context, assetType string) (map[string]int, error) {
	if err := validAssetType(assetType); err != nil {
		return nil, err
	}
	var out map[string]int
	if err := p.get(ctx, "/categories/"+url.PathEscape(assetType), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Search lists assets of assetType, optionally filtered by categories.
func (p *PolyHaven) Search(ctx context.Context, assetType string, categories []string) (map[string]Asset, error) {
	if err := validAssetType(assetType); err != nil {
		return nil, err
	}
	q := url.Values{}
	if assetType != "all" {
		q.Set("type", assetType)
	}
	if len(categories) > 0 {
		q.Set("categories", strings.Join(categories, ","))
	}
	var out map[string]Asset
	if err := p.get(ctx, "/assets", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Resolutions lists the resolutions offered for an asset, sorted.
func (p *PolyHaven) Resolutions(ctx context.Context, assetID string) ([]string, error) {
	var files map[string]json.RawMessage
	if err := p.get(ctx, "/files/"+url.PathEscape(assetID), nil, &files); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	for _, raw := range files {
		var byRes map[string]json.RawMessage
		if json.Unmarshal(raw, &byRes) != nil {
			continue
		}
		for res := range byRes {
			if isResolution(res) {
				seen[res] = true
			}
		}
	}
	out := make([]string, 0, len(seen))
	for res := range seen {
		out = append(out, res)
	}
	sort.Strings(out)
	return out, nil
}

// isResolution matches keys like "1k" or "16k".
func isResolution(s string) bool {
	if len(s) < 2 || s[len(s)-1] != 'k' {
		return false
	}
	for _, r := range s[:len(s)-1] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
