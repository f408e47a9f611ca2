package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/drlike/asthmabot/internal/schema"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreStore implements Store on Cloud Firestore. One document per
// user key; updates merge at the field level so concurrent partial
// writes never clobber whole sessions.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
	ttl        time.Duration
}

// FirestoreConfig holds Firestore connection configuration.
type FirestoreConfig struct {
	// ProjectID is the GCP project ID (required).
	ProjectID string
	// CredentialsFile is a service account key path. Empty means
	// Application Default Credentials.
	CredentialsFile string
	// Collection is the session collection name (default "sessions").
	Collection string
	// SessionTTL is the idle expiry duration (0 = never expire).
	SessionTTL time.Duration
}

// firestoreSession mirrors Session with firestore field tags. The
// field names match the original document shape so existing data stays
// readable.
type firestoreSession struct {
	State         string         `firestore:"state"`
	History       []string       `firestore:"history"`
	ExtractedData map[string]any `firestore:"extractedData"`
	LastActivity  time.Time      `firestore:"lastActivity"`
}

// NewFirestoreStore creates a Firestore-backed session store.
func NewFirestoreStore(ctx context.Context, cfg FirestoreConfig) (*FirestoreStore, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("project ID is required")
	}
	if cfg.Collection == "" {
		cfg.Collection = "sessions"
	}

	var clientOpts []option.ClientOption
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := firestore.NewClient(ctx, cfg.ProjectID, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}

	return &FirestoreStore{
		client:     client,
		collection: cfg.Collection,
		ttl:        cfg.SessionTTL,
	}, nil
}

func (s *FirestoreStore) doc(key string) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(key)
}

// Get retrieves a live session, deleting it first if idle-expired.
func (s *FirestoreStore) Get(ctx context.Context, key string) (*Session, error) {
	snap, err := s.doc(key).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	var doc firestoreSession
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}

	sess := fromFirestoreDoc(&doc)
	if sess.Expired(s.ttl, time.Now()) {
		if _, err := s.doc(key).Delete(ctx); err != nil {
			return nil, fmt.Errorf("delete expired session: %w", err)
		}
		return nil, ErrSessionNotFound
	}

	return sess, nil
}

// Put merges an update into the session document, creating it if
// absent, and stamps lastActivity. Only the fields present in the
// update are written; MergeAll leaves the rest untouched.
func (s *FirestoreStore) Put(ctx context.Context, key string, update *Update) error {
	fields := map[string]any{
		"lastActivity": time.Now().UTC(),
	}
	if update != nil {
		if update.State != nil {
			fields["state"] = string(*update.State)
		}
		if update.History != nil {
			fields["history"] = update.History
		}
		for k, v := range update.ExtractedData {
			fields["extractedData."+k] = v
		}
	}

	if _, err := s.doc(key).Set(ctx, dotted(fields), firestore.MergeAll); err != nil {
		return fmt.Errorf("put session: %w", err)
	}
	return nil
}

// dotted expands dot-separated keys into nested maps so MergeAll
// merges symptom keys individually instead of replacing the whole
// extractedData map.
func dotted(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		placed := false
		for i := 0; i < len(k); i++ {
			if k[i] == '.' {
				parent, child := k[:i], k[i+1:]
				sub, ok := out[parent].(map[string]any)
				if !ok {
					sub = make(map[string]any)
					out[parent] = sub
				}
				sub[child] = v
				placed = true
				break
			}
		}
		if !placed {
			out[k] = v
		}
	}
	return out
}

// Delete removes the session document. Absent documents are a no-op.
func (s *FirestoreStore) Delete(ctx context.Context, key string) error {
	if _, err := s.doc(key).Delete(ctx); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// PurgeExpired deletes sessions idle longer than the TTL.
func (s *FirestoreStore) PurgeExpired(ctx context.Context) (int, error) {
	if s.ttl <= 0 {
		return 0, nil
	}

	cutoff := time.Now().Add(-s.ttl)
	iter := s.client.Collection(s.collection).
		Where("lastActivity", "<", cutoff).
		Documents(ctx)
	defer iter.Stop()

	purged := 0
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return purged, fmt.Errorf("iterate expired sessions: %w", err)
		}
		if _, err := snap.Ref.Delete(ctx); err != nil {
			return purged, fmt.Errorf("delete expired session %s: %w", snap.Ref.ID, err)
		}
		purged++
	}
	return purged, nil
}

// Ping verifies Firestore reachability with a bounded read.
func (s *FirestoreStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	iter := s.client.Collection(s.collection).Limit(1).Documents(ctx)
	defer iter.Stop()

	if _, err := iter.Next(); err != nil && err != iterator.Done {
		return fmt.Errorf("firestore ping failed: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

func fromFirestoreDoc(doc *firestoreSession) *Session {
	sess := &Session{
		State:         State(doc.State),
		History:       doc.History,
		ExtractedData: schema.ExtractedData(doc.ExtractedData),
		LastActivity:  doc.LastActivity,
	}
	if !sess.State.Valid() {
		sess.State = StateInit
	}
	if sess.History == nil {
		sess.History = []string{}
	}
	if sess.ExtractedData == nil {
		sess.ExtractedData = schema.NewExtractedData()
	}
	return sess
}
