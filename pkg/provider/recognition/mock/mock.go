// Package mock provides a test double for recognition.Provider.
//
// Responses are keyed by payload so that tests driving the aggregator with
// several segments can script each one independently:
//
//	p := &mock.Provider{
//	    Responses: map[string]mock.Response{
//	        "0-30000":     {Candidates: []track.Candidate{{Title: "X", Artist: "A"}}},
//	        "30000-60000": {Err: recognition.Transientf("mock", 0, "timeout")},
//	    },
//	}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/tunetrace/pkg/provider/recognition"
	"github.com/MrWong99/tunetrace/pkg/track"
)

// Response is one scripted reply.
type Response struct {
	Candidates []track.Candidate
	Err        error
}

// Provider is a mock implementation of recognition.Provider.
type Provider struct {
	mu sync.Mutex

	// ProviderName is returned by Name. Defaults to "mock".
	ProviderName string

	// Responses maps a payload (as string) to its scripted reply.
	Responses map[string]Response

	// Default is returned for payloads not present in Responses.
	Default Response

	// Block, when set, makes Identify wait until ctx is done or Block is
	// closed before replying.
	Block chan struct{}

	// Calls records every payload passed to Identify, in call order.
	Calls []string

	inflight    int
	maxInflight int
}

// Identify records the call and returns the scripted Response.
func (p *Provider) Identify(ctx context.Context, payload []byte) ([]track.Candidate, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, string(payload))
	p.inflight++
	if p.inflight > p.maxInflight {
		p.maxInflight = p.inflight
	}
	resp, ok := p.Responses[string(payload)]
	if !ok {
		resp = p.Default
	}
	block := p.Block
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.inflight--
		p.mu.Unlock()
	}()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, recognition.Transientf(p.Name(), 0, "identify: %w", ctx.Err())
		}
	}
	if resp.Err != nil {
		return nil, resp.Err
	}
	return track.CloneAll(resp.Candidates), nil
}

// Name returns ProviderName or "mock".
func (p *Provider) Name() string {
	if p.ProviderName != "" {
		return p.ProviderName
	}
	return "mock"
}

// CallCount returns the number of Identify calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// MaxInflight returns the highest number of concurrent Identify calls
// observed. Thread-safe.
func (p *Provider) MaxInflight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxInflight
}

// Ensure Provider implements recognition.Provider at compile time.
var _ recognition.Provider = (*Provider)(nil)
