package membership

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStaticProvider(t *testing.T) {
	p := &StaticProvider{
		Active:  map[string]bool{"alice": true, "bob": false},
		Default: true,
	}

	active, err := p.IsActive("alice")
	assert.NoError(t, err)
	assert.True(t, active)

	active, err = p.IsActive("bob")
	assert.NoError(t, err)
	assert.False(t, active)

	active, err = p.IsActive("unknown")
	assert.NoError(t, err)
	assert.True(t, active)
}

func TestHTTPProviderFetchesStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/membership/alice":
			w.Write([]byte(`{"active": true}`))
		case "/api/v1/membership/bob":
			w.Write([]byte(`{"active": false}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	p := NewHTTPProvider(server.URL)

	active, err := p.IsActive("alice")
	assert.NoError(t, err)
	assert.True(t, active)

	active, err = p.IsActive("bob")
	assert.NoError(t, err)
	assert.False(t, active)

	// unknown members are not active
	active, err = p.IsActive("ghost")
	assert.NoError(t, err)
	assert.False(t, active)
}

func TestHTTPProviderServesCachedStatusWhileOpen(t *testing.T) {
	healthy := true
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"active": true}`))
	}))
	defer server.Close()

	p := NewHTTPProvider(server.URL)

	active, err := p.IsActive("alice")
	assert.NoError(t, err)
	assert.True(t, active)

	healthy = false
	// fail until the breaker trips open
	sawError := false
	for i := 0; i < 10; i++ {
		if _, err := p.IsActive("alice"); err != nil {
			sawError = true
		}
	}
	assert.True(t, sawError)

	// breaker is open now, the cached answer is served without error
	active, err = p.IsActive("alice")
	assert.NoError(t, err)
	assert.True(t, active)
}

func TestHTTPProviderNoCacheNoAnswer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	p := NewHTTPProvider(server.URL)

	for i := 0; i < 10; i++ {
		p.IsActive("alice")
	}
	_, err := p.IsActive("alice")
	assert.Error(t, err)
}
