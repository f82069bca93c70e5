package idempotency

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/sauber-detailing/pos-api/internal/platform/firestore"
)

const defaultCollection = "idempotency_keys"

type firestoreEntry struct {
	Key         string              `firestore:"key"`
	Fingerprint string              `firestore:"fingerprint"`
	State       string              `firestore:"state"`
	StatusCode  int                 `firestore:"statusCode"`
	Header      map[string][]string `firestore:"header,omitempty"`
	Body        []byte              `firestore:"body,omitempty"`
	CreatedAt   time.Time           `firestore:"createdAt"`
	ExpiresAt   time.Time           `firestore:"expiresAt"`
}

func toFirestoreEntry(e Entry) firestoreEntry {
	return firestoreEntry{
		Key:         e.Key,
		Fingerprint: e.Fingerprint,
		State:       string(e.State),
		StatusCode:  e.StatusCode,
		Header:      e.Header,
		Body:        e.Body,
		CreatedAt:   e.CreatedAt,
		ExpiresAt:   e.ExpiresAt,
	}
}

func (f firestoreEntry) entry() Entry {
	return Entry{
		Key:         f.Key,
		Fingerprint: f.Fingerprint,
		State:       State(f.State),
		StatusCode:  f.StatusCode,
		Header:      f.Header,
		Body:        f.Body,
		CreatedAt:   f.CreatedAt,
		ExpiresAt:   f.ExpiresAt,
	}
}

// FirestoreStore shares keys across instances through a Firestore collection.
type FirestoreStore struct {
	provider   *pfirestore.Provider
	collection string
}

// NewFirestoreStore returns a store over collection (idempotency_keys when empty).
func NewFirestoreStore(provider *pfirestore.Provider, collection string) *FirestoreStore {
	if collection == "" {
		collection = defaultCollection
	}
	return &FirestoreStore{provider: provider, collection: collection}
}

func (s *FirestoreStore) doc(ctx context.Context, key string) (*firestore.DocumentRef, error) {
	client, err := s.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(s.collection).Doc(documentID(key)), nil
}

func (s *FirestoreStore) Begin(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Outcome, Entry, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now = now.UTC()
	ref, err := s.doc(ctx, key)
	if err != nil {
		return 0, Entry{}, err
	}

	var (
		outcome Outcome
		result  Entry
	)
	err = s.provider.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil && !snapMissing(snap, err) {
			return err
		}
		if err == nil {
			var stored firestoreEntry
			if err := snap.DataTo(&stored); err != nil {
				return err
			}
			existing := stored.entry()
			if !existing.expired(now) {
				if existing.Fingerprint != fingerprint {
					return ErrKeyReused
				}
				outcome, result = OutcomeBusy, existing
				if existing.State == StateDone {
					outcome = OutcomeReplay
				}
				return nil
			}
		}
		result = newEntry(key, fingerprint, now, ttl)
		outcome = OutcomeProceed
		return tx.Set(ref, toFirestoreEntry(result))
	})
	if err != nil {
		return 0, Entry{}, err
	}
	return outcome, result, nil
}

func (s *FirestoreStore) Complete(ctx context.Context, key, fingerprint string, resp Captured, now time.Time, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now = now.UTC()
	ref, err := s.doc(ctx, key)
	if err != nil {
		return err
	}
	return s.provider.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		entry := newEntry(key, fingerprint, now, ttl)
		snap, err := tx.Get(ref)
		switch {
		case err == nil:
			var stored firestoreEntry
			if err := snap.DataTo(&stored); err != nil {
				return err
			}
			if stored.Fingerprint != fingerprint {
				return ErrKeyReused
			}
			entry.CreatedAt = stored.CreatedAt
		case !snapMissing(snap, err):
			return err
		}
		entry.State = StateDone
		entry.StatusCode = resp.StatusCode
		entry.Header = storableHeader(resp.Header)
		entry.Body = append([]byte(nil), resp.Body...)
		return tx.Set(ref, toFirestoreEntry(entry))
	})
}

func (s *FirestoreStore) Abandon(ctx context.Context, key string) error {
	ref, err := s.doc(ctx, key)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil {
		return pfirestore.WrapError("idempotency.abandon", err)
	}
	return nil
}

func (s *FirestoreStore) Purge(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	client, err := s.provider.Client(ctx)
	if err != nil {
		return 0, err
	}
	docs, err := client.Collection(s.collection).Where("expiresAt", "<=", now.UTC()).Limit(limit).Documents(ctx).GetAll()
	if err != nil {
		return 0, pfirestore.WrapError("idempotency.purge", err)
	}
	if len(docs) == 0 {
		return 0, nil
	}
	bw := client.BulkWriter(ctx)
	for _, doc := range docs {
		if _, err := bw.Delete(doc.Ref); err != nil {
			bw.End()
			return 0, pfirestore.WrapError("idempotency.purge", err)
		}
	}
	bw.End()
	return len(docs), nil
}

func snapMissing(snap *firestore.DocumentSnapshot, err error) bool {
	if snap != nil && !snap.Exists() {
		return true
	}
	return pfirestore.IsNotFound(err)
}
