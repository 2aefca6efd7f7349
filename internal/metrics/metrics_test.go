package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionHooks(t *testing.T) {
	m := New()
	hooks := m.SessionHooks()

	hooks.Fragment()
	hooks.Fragment()
	hooks.SessionCount(3)
	hooks.ResponseFinished(nil, 2*time.Second)
	hooks.ResponseFinished(errors.New("boom"), time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.FragmentsTotal))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.SessionsActive))
	assert.Equal(t, 2, testutil.CollectAndCount(m.ResponseDuration))
}

func TestObserveOutcomes(t *testing.T) {
	m := New()

	m.ObserveCapture(SourceServer, errors.New("no frame"))
	m.ObserveCapture(SourceUpload, nil)
	m.ObserveCapture(SourceUpload, nil)
	m.ObservePrompt(nil)
	m.ObservePrompt(errors.New("blank"))
	m.ObserveTranscription("hello", nil)
	m.ObserveTranscription("", nil)
	m.ObserveTranscription("", errors.New("down"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CapturesTotal.WithLabelValues(SourceServer, "error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CapturesTotal.WithLabelValues(SourceUpload, "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PromptsTotal.WithLabelValues("started")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PromptsTotal.WithLabelValues("rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TranscriptionsTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TranscriptionsTotal.WithLabelValues("empty")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TranscriptionsTotal.WithLabelValues("error")))
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.ObserveRequest(http.MethodGet, "/healthz", http.StatusOK, time.Millisecond)
	m.ObservePrompt(nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `lensfriend_prompts_total{result="started"} 1`)
	assert.Contains(t, string(body), `lensfriend_http_requests_total{method="GET",route="/healthz",status="200"} 1`)
}

func TestInstancesAreIndependent(t *testing.T) {
	a := New()
	b := New()
	a.ObservePrompt(nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(a.PromptsTotal.WithLabelValues("started")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.PromptsTotal.WithLabelValues("started")))
}
