package spinitron

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type roundTripResult struct {
	resp *http.Response
	err  error
}

type stubRoundTripper struct {
	results []roundTripResult
	calls   int
}

func (s *stubRoundTripper) RoundTrip(_ *http.Request) (*http.Response, error) {
	defer func() { s.calls++ }()
	idx := s.calls
	if idx >= len(s.results) {
		idx = len(s.results) - 1
	}
	res := s.results[idx]
	return res.resp, res.err
}

func newTestRobotsTransport(base http.RoundTripper) *robotsTransport {
	t := newRobotsTransport(base, zap.NewNop())
	t.backoff = []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}
	return t
}

func TestRobotsTransportFallsBackToAllowAll(t *testing.T) {
	t.Parallel()

	base := &stubRoundTripper{results: []roundTripResult{{err: context.DeadlineExceeded}}}
	transport := newTestRobotsTransport(base)

	req := httptest.NewRequest(http.MethodGet, "https://spinitron.com/robots.txt", nil)
	resp, err := transport.RoundTrip(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, allowAllRobots, string(body))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 4, base.calls)
}

func TestRobotsTransportStopsAfterSuccess(t *testing.T) {
	t.Parallel()

	base := &stubRoundTripper{results: []roundTripResult{
		{err: context.DeadlineExceeded},
		{resp: httptest.NewRecorder().Result()},
	}}
	transport := newTestRobotsTransport(base)

	req := httptest.NewRequest(http.MethodGet, "https://spinitron.com/robots.txt", nil)
	resp, err := transport.RoundTrip(req)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, 2, base.calls)
}

func TestRobotsTransportDoesNotRetryOtherErrors(t *testing.T) {
	t.Parallel()

	base := &stubRoundTripper{results: []roundTripResult{{err: errors.New("connection refused")}}}
	transport := newTestRobotsTransport(base)

	req := httptest.NewRequest(http.MethodGet, "https://spinitron.com/robots.txt", nil)
	_, err := transport.RoundTrip(req)
	require.Error(t, err)
	assert.Equal(t, 1, base.calls)
}

func TestRobotsTransportPassesThroughPages(t *testing.T) {
	t.Parallel()

	base := &stubRoundTripper{results: []roundTripResult{{err: context.DeadlineExceeded}}}
	transport := newTestRobotsTransport(base)

	req := httptest.NewRequest(http.MethodGet, "https://spinitron.com/WUOG/playlist/1", nil)
	_, err := transport.RoundTrip(req)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, base.calls)
}
