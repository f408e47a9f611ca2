package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/option"
)

// BigQueryArchiver implements Archiver on a BigQuery table.
type BigQueryArchiver struct {
	client   *bigquery.Client
	inserter *bigquery.Inserter
}

// BigQueryConfig holds BigQuery destination configuration.
type BigQueryConfig struct {
	ProjectID string
	DatasetID string
	TableID   string
	// CredentialsFile is a service account key path. Empty means
	// Application Default Credentials.
	CredentialsFile string
}

// consultationRow is the table row shape. History is stored as one
// newline-joined string and the symptom map as a JSON string, keeping
// the schema flat.
type consultationRow struct {
	UserKey       string    `bigquery:"user_key"`
	History       string    `bigquery:"history"`
	ExtractedData string    `bigquery:"extracted_data"`
	Possibility   string    `bigquery:"possibility"`
	Reason        string    `bigquery:"reason"`
	ArchivedAt    time.Time `bigquery:"archived_at"`
}

// NewBigQueryArchiver creates a BigQuery-backed archiver.
func NewBigQueryArchiver(ctx context.Context, cfg BigQueryConfig) (*BigQueryArchiver, error) {
	if cfg.ProjectID == "" || cfg.DatasetID == "" || cfg.TableID == "" {
		return nil, errors.New("project, dataset, and table are required")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := bigquery.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create bigquery client: %w", err)
	}

	return &BigQueryArchiver{
		client:   client,
		inserter: client.Dataset(cfg.DatasetID).Table(cfg.TableID).Inserter(),
	}, nil
}

// Archive inserts one consultation row.
func (a *BigQueryArchiver) Archive(ctx context.Context, rec *Record) error {
	extracted, err := json.Marshal(rec.ExtractedData)
	if err != nil {
		return fmt.Errorf("marshal extracted data: %w", err)
	}

	row := &consultationRow{
		UserKey:       rec.UserKey,
		History:       strings.Join(rec.History, "\n"),
		ExtractedData: string(extracted),
		Possibility:   string(rec.Verdict.Possibility),
		Reason:        rec.Verdict.Reason,
		ArchivedAt:    time.Now().UTC(),
	}

	if err := a.inserter.Put(ctx, row); err != nil {
		return fmt.Errorf("insert consultation row: %w", err)
	}

	log.Printf("[BigQuery] Archived data for user: %s", rec.UserKey)
	return nil
}

// Close closes the BigQuery client.
func (a *BigQueryArchiver) Close() error {
	return a.client.Close()
}
