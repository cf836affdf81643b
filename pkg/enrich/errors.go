package enrich

import (
	"fmt"
)

// EnrichmentError reports a failed pipeline stage. Stages are best-effort:
// the error is logged, a safe default is written, and later stages still run.
type EnrichmentError struct {
	Stage string
	Err   error
}

func (e *EnrichmentError) Error() string {
	return fmt.Sprintf("enrichment stage %s failed: %v", e.Stage, e.Err)
}

func (e *EnrichmentError) Unwrap() error {
	return e.Err
}
