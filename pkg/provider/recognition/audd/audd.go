// Package audd provides a recognition provider backed by the AudD music
// recognition API (https://audd.io).
//
// Each Identify call uploads the payload as multipart form data with
// include_alternatives enabled, so a single request can yield several
// candidates: the primary result followed by the alternatives in the order
// AudD ranks them.
//
// Example usage:
//
//	p, err := audd.New(apiToken)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	candidates, err := p.Identify(ctx, wavPayload)
package audd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/MrWong99/tunetrace/pkg/provider/recognition"
	"github.com/MrWong99/tunetrace/pkg/track"
)

const (
	// DefaultBaseURL is AudD's public endpoint.
	DefaultBaseURL = "https://api.audd.io/"

	providerName = "audd"

	// maxResponseBytes bounds how much of a response body is read.
	maxResponseBytes = 4 << 20
)

// AudD error codes that will keep failing until an operator acts:
// 900 invalid token, 901 no token / request limit reached, 902 token limit
// reached for the day.
var permanentCodes = map[int]bool{900: true, 901: true, 902: true}

// Ensure Provider implements recognition.Provider at compile time.
var _ recognition.Provider = (*Provider)(nil)

// Option is a functional option for Provider.
type Option func(*Provider)

// WithBaseURL overrides the API endpoint (used by tests).
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		p.baseURL = url
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// WithFilename sets the filename announced in the multipart upload. AudD
// sniffs the format from content, but some proxies need an extension.
func WithFilename(name string) Option {
	return func(p *Provider) {
		p.filename = name
	}
}

// Provider implements recognition.Provider against AudD.
type Provider struct {
	apiToken   string
	baseURL    string
	filename   string
	httpClient *http.Client
}

// New creates a Provider. apiToken must not be empty.
func New(apiToken string, opts ...Option) (*Provider, error) {
	if apiToken == "" {
		return nil, errors.New("audd: api token must not be empty")
	}
	p := &Provider{
		apiToken:   apiToken,
		baseURL:    DefaultBaseURL,
		filename:   "segment.wav",
		httpClient: &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Name returns "audd".
func (p *Provider) Name() string { return providerName }

// ---- response types ----

type response struct {
	Status       string  `json:"status"`
	Result       *song   `json:"result"`
	Alternatives []song  `json:"alternatives"`
	Error        *apiErr `json:"error"`
}

type apiErr struct {
	Code    int    `json:"error_code"`
	Message string `json:"error_message"`
}

type song struct {
	Artist      string  `json:"artist"`
	Title       string  `json:"title"`
	Album       string  `json:"album"`
	ReleaseDate string  `json:"release_date"`
	SongLink    string  `json:"song_link"`
	Score       float64 `json:"score"`
	Spotify     *struct {
		ExternalURLs struct {
			Spotify string `json:"spotify"`
		} `json:"external_urls"`
	} `json:"spotify"`
	AppleMusic *struct {
		URL string `json:"url"`
	} `json:"apple_music"`
}

func (s song) candidate() track.Candidate {
	c := track.Candidate{
		Title:       strings.TrimSpace(s.Title),
		Artist:      strings.TrimSpace(s.Artist),
		Album:       s.Album,
		ReleaseDate: s.ReleaseDate,
		Confidence:  s.Score,
	}
	links := make(map[string]string)
	if s.SongLink != "" {
		links[track.LinkSongLink] = s.SongLink
	}
	if s.Spotify != nil && s.Spotify.ExternalURLs.Spotify != "" {
		links[track.LinkSpotify] = s.Spotify.ExternalURLs.Spotify
	}
	if s.AppleMusic != nil && s.AppleMusic.URL != "" {
		links[track.LinkAppleMusic] = s.AppleMusic.URL
	}
	if len(links) > 0 {
		c.Links = links
	}
	return c
}

// Identify uploads payload to AudD and returns the primary result followed by
// its alternatives.
func (p *Provider) Identify(ctx context.Context, payload []byte) ([]track.Candidate, error) {
	body, contentType, err := p.buildForm(payload)
	if err != nil {
		return nil, recognition.Transientf(providerName, 0, "build request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, body)
	if err != nil {
		return nil, recognition.Transientf(providerName, 0, "build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, recognition.Transientf(providerName, 0, "request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, recognition.Transientf(providerName, 0, "read body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, recognition.Permanentf(providerName, resp.StatusCode, "http status %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, recognition.Transientf(providerName, resp.StatusCode, "http status %d", resp.StatusCode)
	}

	var r response
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, recognition.Transientf(providerName, 0, "decode response: %w", err)
	}

	if r.Status != "success" {
		if r.Error == nil {
			return nil, recognition.Transientf(providerName, 0, "unexpected status %q", r.Status)
		}
		if permanentCodes[r.Error.Code] {
			return nil, recognition.Permanentf(providerName, r.Error.Code, "%s", r.Error.Message)
		}
		return nil, recognition.Transientf(providerName, r.Error.Code, "%s", r.Error.Message)
	}

	out := make([]track.Candidate, 0, 1+len(r.Alternatives))
	if r.Result != nil {
		out = append(out, r.Result.candidate())
	}
	for _, alt := range r.Alternatives {
		out = append(out, alt.candidate())
	}
	return out, nil
}

func (p *Provider) buildForm(payload []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := [][2]string{
		{"api_token", p.apiToken},
		{"return", "apple_music,spotify"},
		{"include_alternatives", "true"},
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", f[0], err)
		}
	}

	fw, err := w.CreateFormFile("file", p.filename)
	if err != nil {
		return nil, "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := fw.Write(payload); err != nil {
		return nil, "", fmt.Errorf("write file part: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}
