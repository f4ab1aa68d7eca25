package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
)

// Pool is the subset of pgxpool.Pool the adapter uses, extracted so tests
// can substitute pgxmock.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store on pgx. Each collection is a table of
// (key TEXT PRIMARY KEY, data JSONB) rows.
type PostgresStore struct {
	pool Pool
}

// NewPostgres connects a pool to the given connection string.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) HasCollection(ctx context.Context, name string) (bool, error) {
	if err := checkIdent(name); err != nil {
		return false, err
	}
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`, name,
	).Scan(&exists)
	return exists, eris.Wrap(err, "postgres: has collection")
}

func (s *PostgresStore) EnsureCollection(ctx context.Context, name string) error {
	if err := checkIdent(name); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %q (key TEXT PRIMARY KEY, data JSONB NOT NULL)`, name))
	return eris.Wrapf(err, "postgres: ensure collection %s", name)
}

func (s *PostgresStore) Get(ctx context.Context, collection, key string) (Record, error) {
	if err := checkIdent(collection); err != nil {
		return nil, err
	}
	var raw []byte
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT data FROM %q WHERE key = $1`, collection), key,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get %s/%s", collection, key)
	}
	return decodeRecord(string(raw))
}

func (s *PostgresStore) Insert(ctx context.Context, collection string, rec Record) error {
	if err := checkIdent(collection); err != nil {
		return err
	}
	key, data, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %q (key, data) VALUES ($1, $2)`, collection), key, data)
	return eris.Wrapf(err, "postgres: insert into %s", collection)
}

func (s *PostgresStore) InsertMany(ctx context.Context, collection string, recs []Record) error {
	if err := checkIdent(collection); err != nil {
		return err
	}
	if len(recs) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(recs))
	for _, rec := range recs {
		key, data, err := encodeRecord(rec)
		if err != nil {
			return err
		}
		rows = append(rows, []any{key, json.RawMessage(data)})
	}
	_, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{collection},
		[]string{"key", "data"},
		pgx.CopyFromRows(rows))
	return eris.Wrapf(err, "postgres: copy into %s", collection)
}

func (s *PostgresStore) Update(ctx context.Context, collection string, rec Record) error {
	if err := checkIdent(collection); err != nil {
		return err
	}
	key, data, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE %q SET data = $1 WHERE key = $2`, collection), data, key)
	if err != nil {
		return eris.Wrapf(err, "postgres: update %s/%s", collection, key)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) RemoveAll(ctx context.Context, collection string) error {
	if err := checkIdent(collection); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %q`, collection))
	return eris.Wrapf(err, "postgres: remove all from %s", collection)
}

func (s *PostgresStore) Contents(ctx context.Context, collection string) ([]Record, error) {
	if err := checkIdent(collection); err != nil {
		return nil, err
	}
	return s.scan(ctx, fmt.Sprintf(`SELECT data FROM %q ORDER BY key`, collection))
}

func (s *PostgresStore) FindByField(ctx context.Context, collection, field string, value any) ([]Record, error) {
	if err := checkIdent(collection); err != nil {
		return nil, err
	}
	return s.scan(ctx,
		fmt.Sprintf(`SELECT data FROM %q WHERE data #>> $1 = $2`, collection),
		pgPath(field), fmt.Sprint(value))
}

func (s *PostgresStore) Execute(ctx context.Context, q Query) ([]Record, error) {
	if err := checkIdent(q.Collection); err != nil {
		return nil, err
	}
	where, args, err := pgWhere(q)
	if err != nil {
		return nil, err
	}
	sqlText := fmt.Sprintf(`SELECT d.data FROM %q d`, q.Collection)
	if where != "" {
		sqlText += " WHERE " + where
	}
	return s.scan(ctx, sqlText, args...)
}

func (s *PostgresStore) scan(ctx context.Context, sqlText string, args ...any) ([]Record, error) {
	rows, err := s.pool.Query(ctx, sqlText, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: query %s", sqlText)
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, eris.Wrap(err, "postgres: scan row")
		}
		rec, err := decodeRecord(string(raw))
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, eris.Wrap(rows.Err(), "postgres: rows")
}

// pgWhere translates the neutral clause form into a Postgres JSONB
// predicate with positional parameters. The outer table is aliased "d"
// so ref-exists subqueries read the row being filtered, not the related
// table's data column.
func pgWhere(q Query) (string, []any, error) {
	var parts []string
	var args []any
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	for _, cl := range q.Clauses {
		var conds []string
		for _, c := range cl {
			field := fmt.Sprintf(`d.data #>> '%s'`, pgPath(c.Field))
			switch c.Op {
			case OpEq:
				conds = append(conds, fmt.Sprintf(`%s = %s`, field, next(fmt.Sprint(q.Params[c.Param]))))
			case OpLike:
				conds = append(conds, fmt.Sprintf(`%s ILIKE '%%' || %s || '%%'`, field, next(q.Params[c.Param])))
			case OpGte:
				conds = append(conds, fmt.Sprintf(`(%s)::numeric >= %s`, field, next(q.Params[c.Param])))
			case OpLte:
				conds = append(conds, fmt.Sprintf(`(%s)::numeric <= %s`, field, next(q.Params[c.Param])))
			case OpRefExists:
				if err := checkIdent(c.Collection); err != nil {
					return "", nil, err
				}
				conds = append(conds, fmt.Sprintf(
					`EXISTS (SELECT 1 FROM %q rel WHERE rel.key IN (SELECT jsonb_array_elements_text(d.data #> '%s')))`,
					c.Collection, pgPath(c.Field)))
			default:
				return "", nil, eris.Errorf("postgres: unsupported op %q", c.Op)
			}
		}
		if len(conds) == 1 {
			parts = append(parts, conds[0])
		} else {
			parts = append(parts, "("+strings.Join(conds, " AND ")+")")
		}
	}
	return strings.Join(parts, " OR "), args, nil
}

// pgPath renders a dotted field name as a Postgres JSON path literal,
// e.g. "references.has_tasks" -> {references,has_tasks}.
func pgPath(field string) string {
	return "{" + strings.ReplaceAll(field, ".", ",") + "}"
}
