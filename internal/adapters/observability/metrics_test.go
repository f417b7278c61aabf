package observability_test

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"staybook/internal/adapters/observability"
)

func TestMetricsRegistryAndHandler(t *testing.T) {
	reg := observability.InitRegistry()

	observability.ObserveHTTP("/api/hotels", "GET", 200, 12*time.Millisecond)
	observability.ObserveExternal("stripe", "checkout_sessions.new", 200, 40*time.Millisecond)

	mh := observability.MetricsHandler(reg)
	req := httptest.NewRequest("GET", "/metrics", nil)
	rr := httptest.NewRecorder()
	mh.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status: %d", rr.Code)
	}
	body, _ := io.ReadAll(rr.Body)
	out := string(body)
	for _, name := range []string{"staybook_http_requests_total", "staybook_external_requests_total"} {
		if !strings.Contains(out, name) {
			t.Fatalf("expected %s in output", name)
		}
	}
}

func TestObserveBookingAndWebhook(t *testing.T) {
	before := testutil.ToFloat64(observability.Bookings.WithLabelValues("webhook"))
	observability.ObserveBooking("webhook")
	if got := testutil.ToFloat64(observability.Bookings.WithLabelValues("webhook")); got != before+1 {
		t.Fatalf("bookings counter: got %v want %v", got, before+1)
	}

	observability.ObserveWebhook("account.updated", "ok")
	if got := testutil.ToFloat64(observability.WebhookEvents.WithLabelValues("account.updated", "ok")); got < 1 {
		t.Fatalf("webhook counter not incremented")
	}
}

func TestLabelErr(t *testing.T) {
	if got := observability.LabelErr(nil); got != "none" {
		t.Fatalf("nil err label: %s", got)
	}
	if got := observability.LabelErr(errors.New("x")); got != "*errors.errorString" {
		t.Fatalf("err label: %s", got)
	}
}
