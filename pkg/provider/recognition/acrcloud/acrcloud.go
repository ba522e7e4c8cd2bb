// Package acrcloud provides a recognition provider backed by the ACRCloud
// identification API (https://www.acrcloud.com).
//
// Requests are signed with HMAC-SHA1 over the canonical string
//
//	POST\n/v1/identify\n{access_key}\naudio\n1\n{timestamp}
//
// and uploaded as multipart form data to https://{host}/v1/identify.
package acrcloud

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/tunetrace/pkg/provider/recognition"
	"github.com/MrWong99/tunetrace/pkg/track"
)

const (
	providerName = "acrcloud"

	endpointPath      = "/v1/identify"
	dataType          = "audio"
	signatureVersion  = "1"
	defaultMaxResults = 5

	maxResponseBytes = 4 << 20

	codeSuccess  = 0
	codeNoResult = 1001
)

// ACRCloud status codes that indicate a configuration or account problem:
// 3001 missing/invalid access key, 3003 limit exceeded, 3014 invalid
// signature, 3015 trial expired.
var permanentCodes = map[int]bool{3001: true, 3003: true, 3014: true, 3015: true}

// Ensure Provider implements recognition.Provider at compile time.
var _ recognition.Provider = (*Provider)(nil)

// Option is a functional option for Provider.
type Option func(*Provider)

// WithMaxResults caps the number of candidates returned per request.
func WithMaxResults(n int) Option {
	return func(p *Provider) {
		p.maxResults = n
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// WithClock overrides the timestamp source (used by tests).
func WithClock(now func() time.Time) Option {
	return func(p *Provider) {
		p.now = now
	}
}

// Provider implements recognition.Provider against ACRCloud.
type Provider struct {
	baseURL    string
	accessKey  string
	secret     string
	maxResults int
	httpClient *http.Client
	now        func() time.Time
}

// New creates a Provider.
//
// host is either a bare ACRCloud host ("identify-eu-west-1.acrcloud.com"),
// in which case https is assumed, or a full base URL.
func New(host, accessKey, secret string, opts ...Option) (*Provider, error) {
	if host == "" {
		return nil, errors.New("acrcloud: host must not be empty")
	}
	if accessKey == "" || secret == "" {
		return nil, errors.New("acrcloud: access key and secret must not be empty")
	}
	base := host
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}
	p := &Provider{
		baseURL:    strings.TrimRight(base, "/"),
		accessKey:  accessKey,
		secret:     secret,
		maxResults: defaultMaxResults,
		httpClient: &http.Client{},
		now:        time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	if p.maxResults <= 0 {
		return nil, fmt.Errorf("acrcloud: max results must be positive, got %d", p.maxResults)
	}
	return p, nil
}

// Name returns "acrcloud".
func (p *Provider) Name() string { return providerName }

// Sign returns the base64 HMAC-SHA1 signature for timestamp.
func Sign(accessKey, secret, timestamp string) string {
	msg := strings.Join([]string{http.MethodPost, endpointPath, accessKey, dataType, signatureVersion, timestamp}, "\n")
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write([]byte(msg))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// ---- response types ----

type response struct {
	Status struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	} `json:"status"`
	Metadata struct {
		Music []music `json:"music"`
	} `json:"metadata"`
}

type music struct {
	Title   string `json:"title"`
	Artists []struct {
		Name string `json:"name"`
	} `json:"artists"`
	Album struct {
		Name string `json:"name"`
	} `json:"album"`
	ReleaseDate      string  `json:"release_date"`
	Score            float64 `json:"score"`
	ExternalMetadata struct {
		Spotify struct {
			Track struct {
				ID string `json:"id"`
			} `json:"track"`
		} `json:"spotify"`
		YouTube struct {
			Vid string `json:"vid"`
		} `json:"youtube"`
	} `json:"external_metadata"`
}

func (m music) candidate() track.Candidate {
	names := make([]string, 0, len(m.Artists))
	for _, a := range m.Artists {
		if n := strings.TrimSpace(a.Name); n != "" {
			names = append(names, n)
		}
	}
	c := track.Candidate{
		Title:       strings.TrimSpace(m.Title),
		Artist:      strings.Join(names, ", "),
		Album:       m.Album.Name,
		ReleaseDate: m.ReleaseDate,
		Confidence:  m.Score,
	}
	links := make(map[string]string)
	if id := m.ExternalMetadata.Spotify.Track.ID; id != "" {
		links[track.LinkSpotify] = "https://open.spotify.com/track/" + id
	}
	if vid := m.ExternalMetadata.YouTube.Vid; vid != "" {
		links[track.LinkYouTube] = "https://youtu.be/" + vid
	}
	if len(links) > 0 {
		c.Links = links
	}
	return c
}

// Identify uploads payload and returns up to maxResults candidates.
func (p *Provider) Identify(ctx context.Context, payload []byte) ([]track.Candidate, error) {
	body, contentType, err := p.buildForm(payload)
	if err != nil {
		return nil, recognition.Transientf(providerName, 0, "build request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+endpointPath, body)
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
	if resp.StatusCode != http.StatusOK {
		return nil, recognition.Transientf(providerName, resp.StatusCode, "http status %d", resp.StatusCode)
	}

	var r response
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, recognition.Transientf(providerName, 0, "decode response: %w", err)
	}

	switch code := r.Status.Code; {
	case code == codeSuccess:
	case code == codeNoResult:
		return []track.Candidate{}, nil
	case permanentCodes[code]:
		return nil, recognition.Permanentf(providerName, code, "%s", r.Status.Msg)
	default:
		return nil, recognition.Transientf(providerName, code, "%s", r.Status.Msg)
	}

	items := r.Metadata.Music
	if len(items) > p.maxResults {
		items = items[:p.maxResults]
	}
	out := make([]track.Candidate, 0, len(items))
	for _, m := range items {
		out = append(out, m.candidate())
	}
	return out, nil
}

func (p *Provider) buildForm(payload []byte) (io.Reader, string, error) {
	ts := strconv.FormatInt(p.now().Unix(), 10)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := [][2]string{
		{"access_key", p.accessKey},
		{"data_type", dataType},
		{"signature_version", signatureVersion},
		{"signature", Sign(p.accessKey, p.secret, ts)},
		{"sample_bytes", strconv.Itoa(len(payload))},
		{"timestamp", ts},
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", f[0], err)
		}
	}

	fw, err := w.CreateFormFile("sample", "sample")
	if err != nil {
		return nil, "", fmt.Errorf("create sample part: %w", err)
	}
	if _, err := fw.Write(payload); err != nil {
		return nil, "", fmt.Errorf("write sample part: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}
