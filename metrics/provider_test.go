package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
)

// The Prometheus exporter registers on the default registry, so the provider
// can only be initialised once per test binary.
func TestInitProvider(t *testing.T) {
	ctx := context.Background()

	shutdown, err := InitProvider(ctx, "0.1.0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = shutdown(context.Background()) })

	m, err := NewMetrics(otel.GetMeterProvider())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m.RecordBlock(ctx, "classifying")

	srv := httptest.NewServer(promhttp.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	t.Run("recorded blocks are scraped", func(t *testing.T) {
		if !strings.Contains(string(body), "voice_drive_blocks") {
			t.Errorf("expected voice_drive_blocks in the scrape, got:\n%s", body)
		}

		if !strings.Contains(string(body), `mode="classifying"`) {
			t.Errorf("expected the mode attribute in the scrape, got:\n%s", body)
		}
	})

	t.Run("the service version is exported", func(t *testing.T) {
		if !strings.Contains(string(body), `service_version="0.1.0"`) {
			t.Errorf("expected the service version in target_info, got:\n%s", body)
		}
	})
}
