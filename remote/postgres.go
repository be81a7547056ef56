package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSource reads and writes the hosted document store over pgx.
// Documents live in a jsonb `documents` table keyed by collection;
// acknowledged writes land in `submissions`.
type PostgresSource struct {
	pool *pgxpool.Pool
}

// NewPostgresSource wraps an existing connection pool.
func NewPostgresSource(pool *pgxpool.Pool) *PostgresSource {
	return &PostgresSource{pool: pool}
}

// Primary implements the server-origin read path.
func (s *PostgresSource) Primary(ctx context.Context, spec QuerySpec) ([]Record, error) {
	sql := `SELECT doc FROM documents WHERE collection = $1`
	args := []any{spec.Collection}

	if len(spec.Filter) > 0 {
		filter, err := json.Marshal(spec.Filter)
		if err != nil {
			return nil, NewError(KindMalformed, "primary query", err)
		}
		sql += ` AND doc @> $2::jsonb`
		args = append(args, string(filter))
	}
	sql += ` ORDER BY id`
	if spec.Limit > 0 {
		sql += fmt.Sprintf(` LIMIT %d`, spec.Limit)
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, classify("primary query", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, classify("primary query scan", err)
		}
		records = append(records, Record(doc))
	}
	if err := rows.Err(); err != nil {
		return nil, classify("primary query rows", err)
	}
	return records, nil
}

// Secondary is not served by the hosted store; compose PostgresSource with
// a replica via NewStore.
func (s *PostgresSource) Secondary(ctx context.Context, spec QuerySpec) ([]Record, error) {
	return nil, NewError(KindUnavailable, "secondary query", errors.New("no replica attached"))
}

// Write delivers one pending sync payload and returns once the row is
// committed, which is the server acknowledgment the sync queue waits for.
func (s *PostgresSource) Write(ctx context.Context, category string, payload []byte) error {
	if !json.Valid(payload) {
		return NewError(KindMalformed, "write "+category, errors.New("payload is not valid JSON"))
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO submissions (category, payload, submitted_at) VALUES ($1, $2, $3)`,
		category, payload, time.Now().UTC())
	if err != nil {
		return classify("write "+category, err)
	}
	return nil
}

// classify maps pgx and network failures onto the structured kinds the
// retry policy understands.
func classify(op string, err error) *Error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewError(KindTimeout, op, err)
	case errors.Is(err, pgx.ErrNoRows):
		return NewError(KindNotFound, op, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return NewError(kindForSQLState(pgErr.Code), op, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return NewError(KindTimeout, op, err)
		}
		return NewError(KindUnavailable, op, err)
	}

	if pgconn.SafeToRetry(err) {
		return NewError(KindUnavailable, op, err)
	}
	return NewError(KindUnknown, op, err)
}

func kindForSQLState(code string) Kind {
	switch code {
	case "40001", "40P01": // serialization failure, deadlock detected
		return KindContention
	case "57014": // query canceled (statement timeout)
		return KindTimeout
	case "42501": // insufficient privilege
		return KindPermissionDenied
	case "42P01": // undefined table
		return KindNotFound
	}
	switch {
	case strings.HasPrefix(code, "08"): // connection exceptions
		return KindUnavailable
	case strings.HasPrefix(code, "53"): // insufficient resources
		return KindContention
	case strings.HasPrefix(code, "57"): // operator intervention (shutdown etc.)
		return KindUnavailable
	case strings.HasPrefix(code, "28"): // invalid authorization
		return KindPermissionDenied
	case strings.HasPrefix(code, "22"), strings.HasPrefix(code, "23"), strings.HasPrefix(code, "42"):
		return KindMalformed
	}
	return KindUnknown
}
