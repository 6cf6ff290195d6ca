package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if crawlerInvocationsTotal == nil || crawlerRuntimeSeconds == nil ||
		configPatchFailuresTotal == nil || artifactsParsedTotal == nil ||
		httpRequestsTotal == nil || httpRequestDuration == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}

	ObserveCrawlerRun("success", 90*time.Second)
	if val := testutil.ToFloat64(crawlerInvocationsTotal.WithLabelValues("success")); val != 1 {
		t.Errorf("Expected one successful invocation, got %f", val)
	}

	ObserveArtifact("ok")
	ObserveArtifact("malformed")
	if val := testutil.ToFloat64(artifactsParsedTotal.WithLabelValues("malformed")); val != 1 {
		t.Errorf("Expected one malformed artifact, got %f", val)
	}

	ObserveConfigPatchFailure()
	if val := testutil.ToFloat64(configPatchFailuresTotal); val != 1 {
		t.Errorf("Expected one patch failure, got %f", val)
	}
}
