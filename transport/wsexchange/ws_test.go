package wsexchange

import (
	"testing"
	"time"
)

func TestDeadlineFromTimeoutZeroMeansNoDeadline(t *testing.T) {
	t.Parallel()
	if _, ok := deadlineFromTimeout(0); ok {
		t.Error("expected no deadline for zero duration")
	}
	if _, ok := deadlineFromTimeout(-time.Second); ok {
		t.Error("expected no deadline for negative duration")
	}
}

func TestDeadlineFromTimeoutPositiveIsInFuture(t *testing.T) {
	t.Parallel()
	deadline, ok := deadlineFromTimeout(5 * time.Second)
	if !ok {
		t.Fatal("expected a deadline for a positive duration")
	}
	if !deadline.After(time.Now()) {
		t.Error("expected the deadline to be in the future")
	}
}
