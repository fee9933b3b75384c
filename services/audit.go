package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/lborres/portal/core"
)

// Audit actions.
const (
	AuditActionSignIn = "sign_in"
)

// AuditSinks records every entry to each sink in turn. One failing sink does
// not stop the others; all failures are joined.
type AuditSinks []core.AuditSink

var _ core.AuditSink = AuditSinks(nil)

func (s AuditSinks) Record(ctx context.Context, entry core.AuditEntry) error {
	var errs []error
	for i, sink := range s {
		if sink == nil {
			continue
		}
		if err := sink.Record(ctx, entry); err != nil {
			errs = append(errs, fmt.Errorf("audit sink %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
