package remote

import (
	"context"
	"errors"
)

// DocReplica is the slice of the local persistent store the read path uses:
// a per-collection snapshot written through after successful primary reads
// and served back while the hosted store is unreachable.
type DocReplica interface {
	ReadDocs(ctx context.Context, collection string) ([][]byte, error)
	ReplaceDocs(ctx context.Context, collection string, docs [][]byte) error
}

// Store composes the hosted primary with a local replica into the Source
// the fetch layer consumes. Primary reads are written through to the
// replica so the secondary path has data to serve on the next outage.
type Store struct {
	primary Source
	replica DocReplica
}

// NewStore builds the composite remote source.
func NewStore(primary Source, replica DocReplica) *Store {
	return &Store{primary: primary, replica: replica}
}

// Primary performs the server-origin read and refreshes the replica.
// A replica write failure does not fail the read.
func (s *Store) Primary(ctx context.Context, spec QuerySpec) ([]Record, error) {
	records, err := s.primary.Primary(ctx, spec)
	if err != nil {
		return nil, err
	}
	if s.replica != nil {
		docs := make([][]byte, len(records))
		for i, r := range records {
			docs[i] = []byte(r)
		}
		// best effort; the authoritative result is already in hand
		_ = s.replica.ReplaceDocs(ctx, spec.Collection, docs)
	}
	return records, nil
}

// Secondary serves the last replicated snapshot for the collection.
func (s *Store) Secondary(ctx context.Context, spec QuerySpec) ([]Record, error) {
	if s.replica == nil {
		return nil, NewError(KindUnavailable, "secondary query", errors.New("no replica attached"))
	}
	docs, err := s.replica.ReadDocs(ctx, spec.Collection)
	if err != nil {
		return nil, NewError(KindUnavailable, "secondary query", err)
	}
	if len(docs) == 0 {
		return nil, NewError(KindNotFound, "secondary query", errors.New("replica has no snapshot for "+spec.Collection))
	}
	if spec.Limit > 0 && len(docs) > spec.Limit {
		docs = docs[:spec.Limit]
	}
	records := make([]Record, len(docs))
	for i, d := range docs {
		records[i] = Record(d)
	}
	return records, nil
}

// Write passes through to the hosted store.
func (s *Store) Write(ctx context.Context, category string, payload []byte) error {
	return s.primary.Write(ctx, category, payload)
}
