package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListReturnsFiles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sync/files", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-API-Key"))

		json.NewEncoder(w).Encode(listResponse{
			Files: []RemoteFile{{Filename: "home", Path: "home.html", Checksum: "abc"}},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key", nil, nil)

	files, err := c.List(context.Background())
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "home.html", files[0].Path)
}

func TestDownloadDoesNotEncodeSlashes(t *testing.T) {
	var gotPath string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode(DownloadResult{Content: "<html/>", Checksum: "x"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key", nil, nil)

	_, err := c.Download(context.Background(), "blog/post")
	require.NoError(t, err)
	assert.Equal(t, "/sync/download/blog/post", gotPath)
}

func TestUploadSendsExpectedBody(t *testing.T) {
	var gotReq uploadRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key", nil, nil)

	now := time.Now().UTC().Truncate(time.Second)
	err := c.Upload(context.Background(), "home", "<html/>", now)
	require.NoError(t, err)
	assert.Equal(t, "home", gotReq.Filename)
	assert.Equal(t, "<html/>", gotReq.Content)
}

func TestStatusReturnsServerTime(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(StatusResult{ServerTime: now})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key", nil, nil)

	result, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, result.ServerTime.Equal(now))
}

func TestNonRetryable4xxReturnsTerminalError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(errorBody{Message: "bad input"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key", nil, nil)

	_, err := c.List(context.Background())
	require.Error(t, err)

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "bad input", apiErr.Message)
}

func TestRetriesOn503ThenSucceeds(t *testing.T) {
	attempts := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)

			return
		}

		json.NewEncoder(w).Encode(listResponse{})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key", nil, nil)
	c.sleepFunc = func(ctx context.Context, d time.Duration) error { return nil }

	_, err := c.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestConflictCarriesSuggestionsInDetails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]any{
			"message": "name taken",
			"details": map[string]any{"suggestions": []string{"home-2", "home-3"}},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key", nil, nil)

	err := c.Upload(context.Background(), "home", "<html/>", time.Now())
	require.Error(t, err)

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.NotNil(t, apiErr.Details["suggestions"])
}
