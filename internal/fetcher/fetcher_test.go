// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "rigrun-agent/1.0", r.Header.Get("User-Agent"))
		fmt.Fprint(w, "hello body")
	}))
	defer srv.Close()

	body, err := New(nil).Get(context.Background(), srv.URL, time.Second*5)
	require.NoError(t, err)
	assert.Equal(t, "hello body", body)
}

func TestGet_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such page", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := New(nil).Get(context.Background(), srv.URL, 5*time.Second)
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.Code)
	assert.Equal(t, "no such page", statusErr.Body)
	assert.Contains(t, err.Error(), "404")
}

func TestGet_FollowsRedirectsUpToCap(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/hop/", func(w http.ResponseWriter, r *http.Request) {
		n, _ := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/hop/"))
		if n == 0 {
			fmt.Fprint(w, "arrived")
			return
		}
		http.Redirect(w, r, "/hop/"+strconv.Itoa(n-1), http.StatusFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := New(&Config{MaxRedirects: 5})

	body, err := f.Get(context.Background(), srv.URL+"/hop/5", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "arrived", body)

	_, err = f.Get(context.Background(), srv.URL+"/hop/6", 5*time.Second)
	assert.ErrorIs(t, err, ErrTooManyRedirects)
}

func TestGet_RedirectLoopFailsClosed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, r.URL.Path, http.StatusFound)
	}))
	defer srv.Close()

	_, err := New(nil).Get(context.Background(), srv.URL+"/loop", 5*time.Second)
	assert.ErrorIs(t, err, ErrTooManyRedirects)
}

func TestGet_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	start := time.Now()
	_, err := New(nil).Get(context.Background(), srv.URL, 200*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestGet_BodyTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, strings.Repeat("x", 100))
	}))
	defer srv.Close()

	_, err := New(&Config{MaxBodyBytes: 10}).Get(context.Background(), srv.URL, 5*time.Second)
	assert.ErrorIs(t, err, ErrBodyTooLarge)
}

func TestGet_InvalidURLs(t *testing.T) {
	f := New(nil)

	_, err := f.Get(context.Background(), "", time.Second)
	assert.ErrorIs(t, err, ErrInvalidURL)

	_, err = f.Get(context.Background(), "file:///etc/passwd", time.Second)
	assert.ErrorIs(t, err, ErrInvalidScheme)

	_, err = f.Get(context.Background(), "http://", time.Second)
	assert.ErrorIs(t, err, ErrInvalidURL)
}

func TestGet_BlockPrivate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "internal")
	}))
	defer srv.Close()

	_, err := New(&Config{BlockPrivate: true}).Get(context.Background(), srv.URL, 5*time.Second)
	assert.ErrorIs(t, err, ErrBlockedAddress)
}

func TestIsBlockedIP(t *testing.T) {
	tests := []struct {
		ip      string
		blocked bool
	}{
		{"127.0.0.1", true},
		{"10.1.2.3", true},
		{"192.168.1.1", true},
		{"169.254.169.254", true},
		{"100.64.0.1", true},
		{"::1", true},
		{"fe80::1", true},
		{"8.8.8.8", false},
		{"2606:4700:4700::1111", false},
	}

	for _, tt := range tests {
		if got := isBlockedIP(net.ParseIP(tt.ip)); got != tt.blocked {
			t.Errorf("isBlockedIP(%s) = %v, want %v", tt.ip, got, tt.blocked)
		}
	}
}
