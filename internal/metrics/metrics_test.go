package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordSubmission(t *testing.T) {
	before := testutil.ToFloat64(SubmissionsTotal.WithLabelValues("doctors", OutcomeDuplicate))
	RecordSubmission("doctors", OutcomeDuplicate)
	after := testutil.ToFloat64(SubmissionsTotal.WithLabelValues("doctors", OutcomeDuplicate))
	if after-before != 1 {
		t.Fatalf("counter delta = %v, want 1", after-before)
	}
}

func TestRecordPushSetsGauge(t *testing.T) {
	RecordPush("memory", 7)
	if got := testutil.ToFloat64(StoredRecords); got != 7 {
		t.Fatalf("StoredRecords = %v, want 7", got)
	}
}
