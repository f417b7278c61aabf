package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitTracing_Disabled(t *testing.T) {
	t.Setenv("OTEL_SDK_DISABLED", "true")

	shutdown, err := InitTracing(context.Background())
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSampler(t *testing.T) {
	assert.Contains(t, sampler("always_off", "").Description(), "AlwaysOff")
	assert.Contains(t, sampler("traceidratio", "0.25").Description(), "0.25")
	assert.Contains(t, sampler("", "").Description(), "ParentBased")
}

func TestTraced_PassesThrough(t *testing.T) {
	h := Traced(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}), "test")

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rr.Code)
}
