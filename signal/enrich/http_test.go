package enrich

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianhq/meridian/errors"
)

func newLocalSynthesizer(t *testing.T, handler http.HandlerFunc) (*HTTPSynthesizer, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	// httptest binds to 127.0.0.1, so private addresses must be allowed
	synth, err := NewHTTPSynthesizer(srv.URL, true, nil)
	require.NoError(t, err)
	return synth, srv
}

func TestHTTPSynthesizerPostsEntity(t *testing.T) {
	var got synthesisRequest
	synth, _ := newLocalSynthesizer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	})

	require.NoError(t, synth.Synthesize(context.Background(), "acct_1"))
	assert.Equal(t, "acct_1", got.EntityID)
	assert.False(t, got.RequestedAt.IsZero())
}

func TestHTTPSynthesizerServerErrorIsUnavailable(t *testing.T) {
	synth, _ := newLocalSynthesizer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	err := synth.Synthesize(context.Background(), "acct_1")
	assert.True(t, errors.IsSynthesisUnavailable(err))
}

func TestHTTPSynthesizerClientErrorFailsHard(t *testing.T) {
	synth, _ := newLocalSynthesizer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	err := synth.Synthesize(context.Background(), "acct_1")
	require.Error(t, err)
	assert.False(t, errors.IsSynthesisUnavailable(err))
}

func TestHTTPSynthesizerUnreachableIsUnavailable(t *testing.T) {
	synth, srv := newLocalSynthesizer(t, func(w http.ResponseWriter, r *http.Request) {})
	srv.Close()

	err := synth.Synthesize(context.Background(), "acct_1")
	assert.True(t, errors.IsSynthesisUnavailable(err))
}

func TestNewHTTPSynthesizerRejectsPrivateURLByDefault(t *testing.T) {
	_, err := NewHTTPSynthesizer("http://127.0.0.1:9999/enrich", false, nil)
	require.Error(t, err)
}
