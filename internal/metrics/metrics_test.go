package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInit(t *testing.T) {
	// Reset collectors for testing purposes.
	syncRunsTotal = nil
	syncPagesTotal = nil
	httpRequestsTotal = nil
	httpRequestDurationSeconds = nil

	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if syncRunsTotal == nil || syncPagesTotal == nil ||
		httpRequestsTotal == nil || httpRequestDurationSeconds == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}

	ObservePage("saved")
	if val := testutil.ToFloat64(syncPagesTotal); val != 1 {
		t.Errorf("Expected syncPagesTotal to be 1, got %f", val)
	}
}

func TestObserveRun(t *testing.T) {
	Init()

	ObserveRun("completed", 0.9, 30*time.Second)
	if val := testutil.ToFloat64(syncSuccessRate); val != 0.9 {
		t.Errorf("Expected success rate gauge 0.9, got %f", val)
	}

	// Skipped runs keep the last completed rate.
	ObserveRun("skipped", 0, 0)
	if val := testutil.ToFloat64(syncSuccessRate); val != 0.9 {
		t.Errorf("Expected success rate gauge unchanged, got %f", val)
	}
}
