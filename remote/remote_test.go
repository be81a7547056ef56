package remote

import (
	"context"
	"errors"
	"testing"
)

func TestKindTransient(t *testing.T) {
	tests := []struct {
		kind Kind
		want bool
	}{
		{KindUnavailable, true},
		{KindTimeout, true},
		{KindContention, true},
		{KindPermissionDenied, false},
		{KindNotFound, false},
		{KindMalformed, false},
		{KindUnknown, false},
	}
	for _, tt := range tests {
		if got := tt.kind.Transient(); got != tt.want {
			t.Errorf("%v.Transient() = %v, want %v", tt.kind, got, tt.want)
		}
	}
}

func TestKindOf(t *testing.T) {
	wrapped := NewError(KindNotFound, "query", errors.New("missing"))

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"classified", wrapped, KindNotFound},
		{"wrapped classified", errors.Join(errors.New("outer"), wrapped), KindNotFound},
		{"bare deadline", context.DeadlineExceeded, KindTimeout},
		{"plain error", errors.New("boom"), KindUnknown},
	}
	for _, tt := range tests {
		if got := KindOf(tt.err); got != tt.want {
			t.Errorf("%s: KindOf = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestIsTransientPrefersTimeout(t *testing.T) {
	// a timed-out primary joined with a terminal fallback stays retryable
	timeout := NewError(KindTimeout, "primary", context.DeadlineExceeded)
	terminal := NewError(KindNotFound, "fallback", nil)
	if !IsTransient(errors.Join(timeout, terminal)) {
		t.Error("timeout in the chain must keep the composite retryable")
	}
	if IsTransient(terminal) {
		t.Error("not-found alone is terminal")
	}
	if IsTransient(nil) {
		t.Error("nil is not transient")
	}
}

func TestKindForSQLState(t *testing.T) {
	tests := []struct {
		code string
		want Kind
	}{
		{"40001", KindContention},
		{"40P01", KindContention},
		{"57014", KindTimeout},
		{"42501", KindPermissionDenied},
		{"42P01", KindNotFound},
		{"08006", KindUnavailable},
		{"53300", KindContention},
		{"57P01", KindUnavailable},
		{"28P01", KindPermissionDenied},
		{"22P02", KindMalformed},
		{"23505", KindMalformed},
		{"42601", KindMalformed},
		{"XX000", KindUnknown},
	}
	for _, tt := range tests {
		if got := kindForSQLState(tt.code); got != tt.want {
			t.Errorf("kindForSQLState(%q) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

// memReplica is an in-memory DocReplica.
type memReplica struct {
	docs map[string][][]byte
}

func (m *memReplica) ReadDocs(ctx context.Context, collection string) ([][]byte, error) {
	return m.docs[collection], nil
}

func (m *memReplica) ReplaceDocs(ctx context.Context, collection string, docs [][]byte) error {
	if m.docs == nil {
		m.docs = map[string][][]byte{}
	}
	m.docs[collection] = docs
	return nil
}

// fakePrimary scripts the hosted store.
type fakePrimary struct {
	records []Record
	err     error
	writes  int
}

func (f *fakePrimary) Primary(ctx context.Context, spec QuerySpec) ([]Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.records, nil
}

func (f *fakePrimary) Secondary(ctx context.Context, spec QuerySpec) ([]Record, error) {
	return nil, NewError(KindUnavailable, "secondary", nil)
}

func (f *fakePrimary) Write(ctx context.Context, category string, payload []byte) error {
	f.writes++
	return f.err
}

func TestStoreWritesThroughToReplica(t *testing.T) {
	replica := &memReplica{}
	primary := &fakePrimary{records: []Record{Record(`{"id":"a"}`), Record(`{"id":"b"}`)}}
	s := NewStore(primary, replica)

	recs, err := s.Primary(context.Background(), QuerySpec{Collection: "trails"})
	if err != nil {
		t.Fatalf("primary: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("records = %d, want 2", len(recs))
	}

	// the replica now serves the snapshot as the secondary path
	recs, err = s.Secondary(context.Background(), QuerySpec{Collection: "trails"})
	if err != nil {
		t.Fatalf("secondary: %v", err)
	}
	if len(recs) != 2 || string(recs[0]) != `{"id":"a"}` {
		t.Fatalf("secondary records = %v", recs)
	}
}

func TestStoreSecondaryEmptyReplicaIsNotFound(t *testing.T) {
	s := NewStore(&fakePrimary{}, &memReplica{})
	_, err := s.Secondary(context.Background(), QuerySpec{Collection: "stats"})
	if KindOf(err) != KindNotFound {
		t.Errorf("kind = %v, want not_found for empty replica", KindOf(err))
	}
}

func TestStoreSecondaryHonorsLimit(t *testing.T) {
	replica := &memReplica{docs: map[string][][]byte{
		"trails": {[]byte(`1`), []byte(`2`), []byte(`3`)},
	}}
	s := NewStore(&fakePrimary{}, replica)
	recs, err := s.Secondary(context.Background(), QuerySpec{Collection: "trails", Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Errorf("records = %d, want 2", len(recs))
	}
}

func TestStorePrimaryFailureSkipsReplica(t *testing.T) {
	replica := &memReplica{docs: map[string][][]byte{"trails": {[]byte(`1`)}}}
	primary := &fakePrimary{err: NewError(KindUnavailable, "query", nil)}
	s := NewStore(primary, replica)

	if _, err := s.Primary(context.Background(), QuerySpec{Collection: "trails"}); err == nil {
		t.Fatal("expected error")
	}
	if len(replica.docs["trails"]) != 1 {
		t.Error("failed primary read must not touch the replica snapshot")
	}
}
