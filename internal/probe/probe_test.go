package probe

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uptimeguard/monitorcore/internal/model"
)

func TestProbeHTTPUpOnSuccessfulHead(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := NewEngine()
	target := &model.Target{Kind: model.KindWebsite, Address: srv.URL}
	result := e.Probe(context.Background(), target, 0, 1000)

	assert.Equal(t, model.StatusUp, result.Status)
	assert.Empty(t, result.Error)
}

func TestProbeHTTPTreats401AsUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	e := NewEngine()
	target := &model.Target{Kind: model.KindAPI, Address: srv.URL}
	result := e.Probe(context.Background(), target, 0, 1000)

	assert.Equal(t, model.StatusUp, result.Status)
}

func TestProbeHTTPDownOn500(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	e := NewEngine()
	target := &model.Target{Kind: model.KindWebsite, Address: srv.URL}
	result := e.Probe(context.Background(), target, 0, 1000)

	assert.Equal(t, model.StatusDown, result.Status)
	assert.NotEmpty(t, result.Error)
}

func TestProbeSlowResponseKeepsStatusUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := NewEngine()
	target := &model.Target{Kind: model.KindWebsite, Address: srv.URL}
	result := e.Probe(context.Background(), target, 0, -1)

	assert.Equal(t, model.StatusUp, result.Status)
	assert.True(t, strings.HasPrefix(result.Error, slowResponsePrefix))
}

func TestProbeTCPUpOnOpenPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	e := NewEngine()
	target := &model.Target{Kind: model.KindTCP, Address: ln.Addr().String()}
	result := e.Probe(context.Background(), target, 0, 1000)

	assert.Equal(t, model.StatusUp, result.Status)
}

func TestProbeTCPDownOnClosedPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	e := NewEngine()
	target := &model.Target{Kind: model.KindTCP, Address: addr}
	result := e.Probe(context.Background(), target, 0, 1000)

	assert.Equal(t, model.StatusDown, result.Status)
	assert.NotEmpty(t, result.Error)
}

func TestAttemptsForScalesWithFailureRate(t *testing.T) {
	assert.Equal(t, baseAttempts, attemptsFor(0))
	assert.Equal(t, baseAttempts, attemptsFor(0.5))
	assert.Equal(t, highFailureAttempts, attemptsFor(0.51))
}
