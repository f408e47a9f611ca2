// Package archive persists finished consultations for later review.
package archive

import (
	"context"

	"github.com/drlike/asthmabot/internal/schema"
	"github.com/drlike/asthmabot/internal/scoring"
)

// Record is one completed consultation.
type Record struct {
	UserKey       string
	History       []string
	ExtractedData schema.ExtractedData
	Verdict       scoring.Verdict
}

// Archiver stores consultation records.
type Archiver interface {
	// Archive stores one record.
	Archive(ctx context.Context, rec *Record) error

	// Close releases archiver resources.
	Close() error
}

// NopArchiver discards records. Used when no warehouse is configured.
type NopArchiver struct{}

func (NopArchiver) Archive(ctx context.Context, rec *Record) error { return nil }
func (NopArchiver) Close() error                                   { return nil }
