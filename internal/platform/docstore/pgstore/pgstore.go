// Package pgstore implements docstore.Store on PostgreSQL. All collections
// share one JSONB table; writes announce themselves with NOTIFY so that
// subscriptions can reload.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/example/artist-portfolio/internal/platform/docstore"
)

// NotifyChannel is the LISTEN/NOTIFY channel; payloads are collection names.
const NotifyChannel = "docstore_changes"

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	collection text        NOT NULL,
	id         text        NOT NULL,
	doc        jsonb       NOT NULL DEFAULT '{}'::jsonb,
	created_at timestamptz NOT NULL DEFAULT now(),
	PRIMARY KEY (collection, id)
)`

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,40}$`)

type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

var (
	_ docstore.Store   = (*Store)(nil)
	_ docstore.Indexer = (*Store)(nil)
)

// New takes ownership of pool; Close closes it.
func New(pool *pgxpool.Pool, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{pool: pool, log: log}
}

// EnsureSchema creates the documents table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return classify(err)
	}
	return nil
}

// EnsureIndex adds one expression index per field, scoped to collection.
func (s *Store) EnsureIndex(ctx context.Context, collection string, fields ...string) error {
	if !identRe.MatchString(collection) {
		return fmt.Errorf("pgstore: invalid collection name %q", collection)
	}
	for _, f := range fields {
		if !identRe.MatchString(f) {
			return fmt.Errorf("pgstore: invalid field name %q", f)
		}
		q := fmt.Sprintf(
			`CREATE INDEX IF NOT EXISTS %s ON documents ((doc->>'%s')) WHERE collection = '%s'`,
			strings.ToLower("documents_"+collection+"_"+f+"_idx"), f, collection,
		)
		if _, err := s.pool.Exec(ctx, q); err != nil {
			return classify(err)
		}
	}
	return nil
}

func (s *Store) Create(ctx context.Context, collection string, doc docstore.Document) (string, error) {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	body, err := encode(doc.Fields)
	if err != nil {
		return "", err
	}
	err = s.write(ctx, collection, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`INSERT INTO documents (collection, id, doc) VALUES ($1, $2, $3::jsonb)
			 ON CONFLICT (collection, id) DO NOTHING`,
			collection, doc.ID, body)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return docstore.ErrConflict
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return doc.ID, nil
}

func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	var fields map[string]any
	err := s.pool.QueryRow(ctx,
		`SELECT doc FROM documents WHERE collection = $1 AND id = $2`,
		collection, id).Scan(&fields)
	if err != nil {
		return docstore.Document{}, classify(err)
	}
	return docstore.Document{ID: id, Fields: fields}, nil
}

func (s *Store) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	body, err := encode(fields)
	if err != nil {
		return err
	}
	return s.write(ctx, collection, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE documents SET doc = doc || $3::jsonb WHERE collection = $1 AND id = $2`,
			collection, id, body)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return docstore.ErrNotFound
		}
		return nil
	})
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	n, err := s.DeleteMany(ctx, collection, []string{id})
	if err != nil {
		return err
	}
	if n == 0 {
		return docstore.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteMany(ctx context.Context, collection string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var n int
	err := s.write(ctx, collection, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`DELETE FROM documents WHERE collection = $1 AND id = ANY($2::text[])`,
			collection, ids)
		if err != nil {
			return err
		}
		n = int(tag.RowsAffected())
		return nil
	})
	return n, err
}

func (s *Store) Query(ctx context.Context, collection string, filter docstore.Filter) ([]docstore.Document, error) {
	where, args := buildWhere(collection, filter)
	rows, err := s.pool.Query(ctx,
		`SELECT id, doc FROM documents WHERE `+where+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	out := make([]docstore.Document, 0)
	for rows.Next() {
		var d docstore.Document
		if err := rows.Scan(&d.ID, &d.Fields); err != nil {
			return nil, classify(err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return out, nil
}

// ToggleMember locks the row, flips membership in Go and writes the set,
// the count and any extra fields back in the same transaction.
func (s *Store) ToggleMember(ctx context.Context, collection, id string, t docstore.Toggle) (docstore.Document, bool, error) {
	var (
		result docstore.Document
		added  bool
	)
	err := s.write(ctx, collection, func(tx pgx.Tx) error {
		var fields map[string]any
		err := tx.QueryRow(ctx,
			`SELECT doc FROM documents WHERE collection = $1 AND id = $2 FOR UPDATE`,
			collection, id).Scan(&fields)
		if err != nil {
			return err
		}
		if fields == nil {
			fields = map[string]any{}
		}
		result = docstore.Document{ID: id, Fields: fields}

		members := result.Strings(t.SetField)
		next := make([]string, 0, len(members)+1)
		added = true
		for _, m := range members {
			if m == t.Member {
				added = false
				continue
			}
			next = append(next, m)
		}
		if added {
			next = append(next, t.Member)
		}

		patch := map[string]any{t.SetField: next, t.CountField: len(next)}
		for k, v := range t.Set {
			patch[k] = v
		}
		body, err := encode(patch)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`UPDATE documents SET doc = doc || $3::jsonb WHERE collection = $1 AND id = $2`,
			collection, id, body); err != nil {
			return err
		}
		for k, v := range patch {
			fields[k] = v
		}
		return nil
	})
	if err != nil {
		return docstore.Document{}, false, err
	}
	return result, added, nil
}

// Subscribe dedicates one connection to LISTEN. The connection is taken out
// of the pool and closed on release.
func (s *Store) Subscribe(ctx context.Context, collection string, filter docstore.Filter) (*docstore.Subscription, error) {
	pooled, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, classify(err)
	}
	conn := pooled.Hijack()
	if _, err := conn.Exec(ctx, "LISTEN "+NotifyChannel); err != nil {
		_ = conn.Close(context.Background())
		return nil, classify(err)
	}

	listenCtx, cancel := context.WithCancel(ctx)
	changes := make(chan struct{}, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			n, err := conn.WaitForNotification(listenCtx)
			if err != nil {
				if listenCtx.Err() == nil {
					s.log.Warn("listen connection lost",
						zap.String("collection", collection),
						zap.Error(err),
					)
					close(changes)
				}
				return
			}
			if n.Payload == collection {
				docstore.Signal(changes)
			}
		}
	}()

	return docstore.NewSubscription(ctx, docstore.Feed{
		Load: func(ctx context.Context) ([]docstore.Document, error) {
			return s.Query(ctx, collection, filter)
		},
		Changes: changes,
		Release: func() {
			cancel()
			wg.Wait()
			_ = conn.Close(context.Background())
		},
	}), nil
}

func (s *Store) Close(context.Context) error {
	s.pool.Close()
	return nil
}

// write runs fn in a transaction that also notifies listeners of collection.
func (s *Store) write(ctx context.Context, collection string, fn func(tx pgx.Tx) error) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := fn(tx); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, NotifyChannel, collection)
		return err
	})
	return classify(err)
}

func buildWhere(collection string, filter docstore.Filter) (string, []any) {
	clauses := []string{"collection = $1"}
	args := []any{collection}
	next := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	for _, c := range filter {
		if c.Field == docstore.IDField {
			switch c.Op {
			case docstore.OpEq:
				clauses = append(clauses, "id = "+next(c.Values[0]))
			case docstore.OpIn:
				clauses = append(clauses, "id = ANY("+next(nonNil(c.Values))+"::text[])")
			case docstore.OpMissing:
				clauses = append(clauses, "false")
			}
			continue
		}

		field := next(c.Field) + "::text"
		switch c.Op {
		case docstore.OpEq:
			clauses = append(clauses, fmt.Sprintf(
				"jsonb_typeof(doc->%[1]s) = 'string' AND doc->>%[1]s = %[2]s", field, next(c.Values[0])))
		case docstore.OpIn:
			clauses = append(clauses, fmt.Sprintf(
				"jsonb_typeof(doc->%[1]s) = 'string' AND doc->>%[1]s = ANY(%[2]s::text[])", field, next(nonNil(c.Values))))
		case docstore.OpMissing:
			clauses = append(clauses, fmt.Sprintf("doc->>%s IS NULL", field))
		}
	}
	return strings.Join(clauses, " AND "), args
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func encode(fields map[string]any) (string, error) {
	if fields == nil {
		return "{}", nil
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("pgstore: encode document: %w", err)
	}
	return string(b), nil
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return docstore.ErrNotFound
	case errors.Is(err, docstore.ErrNotFound), errors.Is(err, docstore.ErrConflict):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case pgconn.Timeout(err):
		return docstore.Unavailable(err)
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return docstore.Unavailable(err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505":
			return docstore.ErrConflict
		case strings.HasPrefix(pgErr.Code, "08"),
			pgErr.Code == "40001", pgErr.Code == "40P01",
			pgErr.Code == "53300", pgErr.Code == "57P01":
			return docstore.Unavailable(err)
		}
		return fmt.Errorf("pgstore: %w", err)
	}
	if pgconn.SafeToRetry(err) {
		return docstore.Unavailable(err)
	}
	return fmt.Errorf("pgstore: %w", err)
}
