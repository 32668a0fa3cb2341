package membership

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"library-circulation/pkg/circuitbreaker"
)

// StaticProvider answers membership checks from a fixed map. Used in tests
// and in deployments without a membership service, where Default decides
// unknown users.
type StaticProvider struct {
	Active  map[string]bool
	Default bool
}

func (p *StaticProvider) IsActive(username string) (bool, error) {
	if active, ok := p.Active[username]; ok {
		return active, nil
	}
	return p.Default, nil
}

// HTTPProvider asks an external membership service whether a user is
// active. Calls run through a circuit breaker; while the breaker is open
// the last known answer for the user is served, so a membership outage
// degrades to stale reads instead of blocking circulation.
type HTTPProvider struct {
	baseURL string
	client  *http.Client
	breaker *circuitbreaker.CircuitBreaker

	mu    sync.Mutex
	known map[string]bool
}

func NewHTTPProvider(baseURL string) *HTTPProvider {
	return &HTTPProvider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		breaker: circuitbreaker.New(5, 30*time.Second),
		known:   make(map[string]bool),
	}
}

func (p *HTTPProvider) IsActive(username string) (bool, error) {
	var active bool
	err := p.breaker.Execute(
		func() error {
			result, err := p.fetch(username)
			if err != nil {
				return err
			}
			active = result
			p.remember(username, result)
			return nil
		},
		func() error {
			cached, ok := p.lastKnown(username)
			if !ok {
				return fmt.Errorf("membership service unavailable and no cached status for %s", username)
			}
			active = cached
			return nil
		},
	)
	if err != nil {
		return false, err
	}
	return active, nil
}

func (p *HTTPProvider) fetch(username string) (bool, error) {
	url := fmt.Sprintf("%s/api/v1/membership/%s", p.baseURL, username)
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return false, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("membership service returned status %d", resp.StatusCode)
	}

	var body struct {
		Active bool `json:"active"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, err
	}
	return body.Active, nil
}

func (p *HTTPProvider) remember(username string, active bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.known[username] = active
}

func (p *HTTPProvider) lastKnown(username string) (bool, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	active, ok := p.known[username]
	return active, ok
}
