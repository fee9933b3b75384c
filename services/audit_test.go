package services

import (
	"context"
	"errors"
	"testing"

	"github.com/lborres/portal/core"
)

// Requirement: every sink receives the entry even when one fails.
func TestAuditSinks_Record(t *testing.T) {
	failing := &FakeAuditSink{err: errBoom}
	ok := &FakeAuditSink{}
	sinks := AuditSinks{failing, nil, ok}

	err := sinks.Record(context.Background(), core.AuditEntry{UserID: "u1", Action: AuditActionSignIn})

	if !errors.Is(err, errBoom) {
		t.Errorf("Record() error = %v, want errBoom", err)
	}
	if len(ok.Entries()) != 1 {
		t.Error("healthy sink should still record")
	}
	if err := (AuditSinks{ok}).Record(context.Background(), core.AuditEntry{}); err != nil {
		t.Errorf("Record() error = %v, want nil", err)
	}
}
