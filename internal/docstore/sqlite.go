package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// validIdent guards collection names interpolated into SQL. Collection names
// come from configuration, not user queries, but the guard keeps the adapter
// safe to hand arbitrary strings.
var validIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLiteStore implements Store using modernc.org/sqlite. Each collection is
// a table of (key, data) rows with the record serialized as JSON.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given DSN and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func checkIdent(name string) error {
	if !validIdent.MatchString(name) {
		return eris.Errorf("docstore: invalid collection name %q", name)
	}
	return nil
}

func (s *SQLiteStore) HasCollection(ctx context.Context, name string) (bool, error) {
	if err := checkIdent(name); err != nil {
		return false, err
	}
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name,
	).Scan(&n)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: has collection")
	}
	return n > 0, nil
}

func (s *SQLiteStore) EnsureCollection(ctx context.Context, name string) error {
	if err := checkIdent(name); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %q (key TEXT PRIMARY KEY, data TEXT NOT NULL)`, name))
	return eris.Wrapf(err, "sqlite: ensure collection %s", name)
}

func (s *SQLiteStore) Get(ctx context.Context, collection, key string) (Record, error) {
	if err := checkIdent(collection); err != nil {
		return nil, err
	}
	var data string
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT data FROM %q WHERE key = ?`, collection), key,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get %s/%s", collection, key)
	}
	return decodeRecord(data)
}

func (s *SQLiteStore) Insert(ctx context.Context, collection string, rec Record) error {
	if err := checkIdent(collection); err != nil {
		return err
	}
	key, data, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %q (key, data) VALUES (?, ?)`, collection), key, data)
	return eris.Wrapf(err, "sqlite: insert into %s", collection)
}

func (s *SQLiteStore) InsertMany(ctx context.Context, collection string, recs []Record) error {
	if err := checkIdent(collection); err != nil {
		return err
	}
	if len(recs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin insert many")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		fmt.Sprintf(`INSERT INTO %q (key, data) VALUES (?, ?)`, collection))
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert many")
	}
	defer stmt.Close()

	for _, rec := range recs {
		key, data, err := encodeRecord(rec)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, key, data); err != nil {
			return eris.Wrapf(err, "sqlite: insert %s into %s", key, collection)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit insert many")
}

func (s *SQLiteStore) Update(ctx context.Context, collection string, rec Record) error {
	if err := checkIdent(collection); err != nil {
		return err
	}
	key, data, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %q SET data = ? WHERE key = ?`, collection), data, key)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update %s/%s", collection, key)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) RemoveAll(ctx context.Context, collection string) error {
	if err := checkIdent(collection); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %q`, collection))
	return eris.Wrapf(err, "sqlite: remove all from %s", collection)
}

func (s *SQLiteStore) Contents(ctx context.Context, collection string) ([]Record, error) {
	if err := checkIdent(collection); err != nil {
		return nil, err
	}
	return s.scan(ctx, fmt.Sprintf(`SELECT data FROM %q ORDER BY key`, collection))
}

func (s *SQLiteStore) FindByField(ctx context.Context, collection, field string, value any) ([]Record, error) {
	if err := checkIdent(collection); err != nil {
		return nil, err
	}
	return s.scan(ctx,
		fmt.Sprintf(`SELECT data FROM %q WHERE json_extract(data, ?) = ?`, collection),
		jsonPath(field), value)
}

func (s *SQLiteStore) Execute(ctx context.Context, q Query) ([]Record, error) {
	if err := checkIdent(q.Collection); err != nil {
		return nil, err
	}
	where, args, err := sqliteWhere(q)
	if err != nil {
		return nil, err
	}
	sqlText := fmt.Sprintf(`SELECT d.data FROM %q d`, q.Collection)
	if where != "" {
		sqlText += " WHERE " + where
	}
	return s.scan(ctx, sqlText, args...)
}

func (s *SQLiteStore) scan(ctx context.Context, sqlText string, args ...any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: query %s", sqlText)
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan row")
		}
		rec, err := decodeRecord(data)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, eris.Wrap(rows.Err(), "sqlite: rows")
}

// sqliteWhere translates the neutral clause form into a SQLite predicate
// over json_extract. Parameters are appended positionally in clause order.
// The outer table is aliased "d" so ref-exists subqueries always read the
// row being filtered rather than the related table's data column.
func sqliteWhere(q Query) (string, []any, error) {
	var parts []string
	var args []any
	for _, cl := range q.Clauses {
		var conds []string
		for _, c := range cl {
			switch c.Op {
			case OpEq:
				conds = append(conds, fmt.Sprintf(`json_extract(d.data, '%s') = ?`, jsonPath(c.Field)))
				args = append(args, q.Params[c.Param])
			case OpLike:
				conds = append(conds, fmt.Sprintf(`json_extract(d.data, '%s') LIKE '%%' || ? || '%%'`, jsonPath(c.Field)))
				args = append(args, q.Params[c.Param])
			case OpGte:
				conds = append(conds, fmt.Sprintf(`json_extract(d.data, '%s') >= ?`, jsonPath(c.Field)))
				args = append(args, q.Params[c.Param])
			case OpLte:
				conds = append(conds, fmt.Sprintf(`json_extract(d.data, '%s') <= ?`, jsonPath(c.Field)))
				args = append(args, q.Params[c.Param])
			case OpRefExists:
				if err := checkIdent(c.Collection); err != nil {
					return "", nil, err
				}
				conds = append(conds, fmt.Sprintf(
					`EXISTS (SELECT 1 FROM json_each(json_extract(d.data, '%s')) je JOIN %q rel ON rel.key = je.value)`,
					jsonPath(c.Field), c.Collection))
			default:
				return "", nil, eris.Errorf("sqlite: unsupported op %q", c.Op)
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

func jsonPath(field string) string {
	return "$." + field
}

func encodeRecord(rec Record) (key, data string, err error) {
	key = rec.Key()
	if key == "" {
		return "", "", eris.New("docstore: record has no key")
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return "", "", eris.Wrap(err, "docstore: marshal record")
	}
	return key, string(raw), nil
}

func decodeRecord(data string) (Record, error) {
	var rec Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, eris.Wrap(err, "docstore: unmarshal record")
	}
	return rec, nil
}
