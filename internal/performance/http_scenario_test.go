package performance_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/volley/internal/performance"
)

func newHTTPScenario(t *testing.T, baseURL string, reqs []performance.Request) performance.Scenario {
	t.Helper()
	compiled, err := performance.CompileRequests(reqs)
	require.NoError(t, err)

	s, err := performance.HTTPScenarioFactory(compiled)(&performance.VUEnv{
		VUID:    3,
		Client:  &http.Client{Timeout: 5 * time.Second},
		BaseURL: baseURL,
		Vars:    map[string]string{"token": "secret"},
	})
	require.NoError(t, err)
	return s
}

func TestHTTPScenario_Invoke(t *testing.T) {
	var gotPath, gotAuth, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.RequestURI()
		gotAuth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("Hostname: whoami-pod-1\nIP: 10.0.0.1\nRemoteAddr: 1.2.3.4"))
	}))
	defer server.Close()

	s := newHTTPScenario(t, server.URL, []performance.Request{{
		Name:    "home",
		Method:  http.MethodPost,
		URL:     "{{baseUrl}}/vu/{{vu}}/iter/{{iteration}}",
		Headers: map[string]string{"Authorization": "Bearer {{token}}"},
		Body:    `{"vu":{{vu}}}`,
		Checks: []performance.Check{
			{Name: "status is 200", Type: performance.CheckStatus, Value: "200"},
			{Name: "body contains address/pod", Type: performance.CheckBody, Condition: "matches", Value: "(?i)address|pod"},
		},
	}})

	o := s.Invoke(performance.WithIteration(context.Background(), 4))

	require.NoError(t, o.Err)
	require.Len(t, o.Requests, 1)
	assert.True(t, o.Success())
	assert.Equal(t, "/vu/3/iter/4", gotPath)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, `{"vu":3}`, gotBody)
	assert.Equal(t, 200, o.Requests[0].Status)
	assert.Positive(t, o.Requests[0].Bytes)
	require.Len(t, o.Checks, 2)
	assert.True(t, o.Checks[0].Passed)
	assert.True(t, o.Checks[1].Passed)
}

func TestHTTPScenario_ServerErrorIsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	s := newHTTPScenario(t, server.URL, []performance.Request{{
		URL:    "{{baseUrl}}",
		Checks: []performance.Check{{Type: performance.CheckStatus, Value: "200"}},
	}})

	o := s.Invoke(context.Background())

	assert.False(t, o.Success())
	require.Len(t, o.Requests, 1)
	assert.True(t, o.Requests[0].Failed)
	assert.Equal(t, 500, o.Requests[0].Status)
	assert.Equal(t, "GET {{baseUrl}}", o.Requests[0].Name)
	assert.False(t, o.Checks[0].Passed)
}

func TestHTTPScenario_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	s := newHTTPScenario(t, url, []performance.Request{{
		URL:    "{{baseUrl}}",
		Checks: []performance.Check{{Type: performance.CheckStatus, Value: "200"}},
	}})

	o := s.Invoke(context.Background())

	require.Len(t, o.Requests, 1)
	assert.True(t, o.Requests[0].Failed)
	assert.Error(t, o.Requests[0].Err)
	assert.Equal(t, 0, o.Requests[0].Status)
	assert.False(t, o.Checks[0].Passed)

	// The transport error belongs to the request, not the iteration.
	assert.NoError(t, o.Err)
	assert.False(t, o.Success())
}

func TestHTTPScenario_RequestTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	s := newHTTPScenario(t, server.URL, []performance.Request{{
		URL:     "{{baseUrl}}",
		Timeout: 50 * time.Millisecond,
	}})

	start := time.Now()
	o := s.Invoke(context.Background())

	assert.Less(t, time.Since(start), time.Second)
	require.Len(t, o.Requests, 1)
	assert.True(t, o.Requests[0].Failed)
}

func TestHTTPScenario_CancelledContext(t *testing.T) {
	s := newHTTPScenario(t, "http://127.0.0.1:0", []performance.Request{{URL: "{{baseUrl}}"}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := s.Invoke(ctx)
	assert.ErrorIs(t, o.Err, context.Canceled)
	assert.Empty(t, o.Requests)
}

func TestCompileRequests_InvalidCheck(t *testing.T) {
	_, err := performance.CompileRequests([]performance.Request{{
		URL:    "http://example.com",
		Checks: []performance.Check{{Type: performance.CheckBody, Condition: "matches", Value: "("}},
	}})
	assert.Error(t, err)
}

func TestHTTPScenarioFactory_RequiresClient(t *testing.T) {
	_, err := performance.HTTPScenarioFactory(nil)(&performance.VUEnv{VUID: 1})
	assert.Error(t, err)
}
