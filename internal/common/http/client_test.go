package http

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostJSON_HeadersAndBody(t *testing.T) {
	var got *http.Request
	var body string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))
	defer server.Close()

	c := NewClient(0,
		WithHeader("Authorization", "Bearer k"),
		WithHeader("X-Empty", ""),
	)
	status, resp, err := c.PostJSON(context.Background(), server.URL, map[string]int{"a": 1}, map[string]string{"X-Title": "t"})

	require.NoError(t, err)
	assert.Equal(t, http.StatusTeapot, status)
	assert.Equal(t, "short and stout", string(resp))
	assert.Equal(t, `{"a":1}`, body)
	assert.Equal(t, "Bearer k", got.Header.Get("Authorization"))
	assert.Equal(t, "t", got.Header.Get("X-Title"))
	assert.Equal(t, "application/json", got.Header.Get("Content-Type"))
	_, present := got.Header["X-Empty"]
	assert.False(t, present)
}

func TestPostJSON_PerRequestHeaderWins(t *testing.T) {
	var title string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		title = r.Header.Get("X-Title")
	}))
	defer server.Close()

	c := NewClient(0, WithHeader("X-Title", "default"))
	_, _, err := c.PostJSON(context.Background(), server.URL, struct{}{}, map[string]string{"X-Title": "override"})
	require.NoError(t, err)
	assert.Equal(t, "override", title)
}

func TestPostJSON_MaxBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 100)))
	}))
	defer server.Close()

	_, resp, err := NewClient(0, WithMaxBody(10)).PostJSON(context.Background(), server.URL, nil, nil)
	require.NoError(t, err)
	assert.Len(t, resp, 10)
}

func TestPostJSON_MarshalError(t *testing.T) {
	_, _, err := NewClient(0).PostJSON(context.Background(), "http://127.0.0.1:0", make(chan int), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "marshal request")
}
