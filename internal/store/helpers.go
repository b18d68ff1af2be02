// helpers.go — store-layer DRY utilities shared by every table-scoped store:
//   - QueryBuilder: dynamic WHERE + LIKE keyword search + pagination
//   - scanRows/scanOne: generic row -> struct scanning via `db` tags,
//     the database/sql + reflection stand-in for pgx's RowToStructByNameLax
//     now that the driver is modernc.org/sqlite instead of pgx.
//   - DistinctValues: deduplicated column values (filter dropdowns)
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/filewarden/mesh/pkg/logger"
	"github.com/filewarden/mesh/pkg/util"
)

// emptyJSON fallback value: returned when a value can't be marshaled.
var emptyJSON = []byte("{}")

// mustMarshalJSON marshals v, logging and falling back to "{}" instead of
// panicking or silently discarding the error the way a bare
// `data, _ := json.Marshal(v)` would.
func mustMarshalJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Warn("mustMarshalJSON: marshal failed, using fallback",
			"value_type", fmt.Sprintf("%T", v),
			logger.FieldError, err)
		return emptyJSON
	}
	return data
}

// BaseStore is the embedding base every table-scoped store shares.
//
//	type FooStore struct{ BaseStore }
//	func NewFooStore(db *sql.DB) *FooStore { return &FooStore{NewBaseStore(db)} }
type BaseStore struct{ db *sql.DB }

// NewBaseStore creates a BaseStore.
func NewBaseStore(db *sql.DB) BaseStore { return BaseStore{db: db} }

// ========================================
// QueryBuilder — dynamic WHERE clause construction
// ========================================

// QueryBuilder incrementally assembles a SQLite WHERE clause. SQLite's
// driver uses positional `?` placeholders rather than pgx's `$N`, so
// unlike the Postgres original there is no running placeholder counter —
// only ordering of params matters.
type QueryBuilder struct {
	where  []string
	params []any
}

// NewQueryBuilder creates an empty builder.
func NewQueryBuilder() *QueryBuilder {
	return &QueryBuilder{}
}

// Eq adds an equality condition. Empty values are skipped.
func (q *QueryBuilder) Eq(col, val string) *QueryBuilder {
	if val == "" {
		return q
	}
	q.where = append(q.where, fmt.Sprintf("%s = ?", col))
	q.params = append(q.params, val)
	return q
}

// KeywordLike adds a multi-column LIKE keyword search.
func (q *QueryBuilder) KeywordLike(keyword string, cols ...string) *QueryBuilder {
	if keyword == "" || len(cols) == 0 {
		return q
	}
	kw := "%" + util.EscapeLike(strings.ToLower(keyword)) + "%"
	parts := make([]string, 0, len(cols))
	for _, c := range cols {
		parts = append(parts, fmt.Sprintf("LOWER(COALESCE(%s, '')) LIKE ? ESCAPE '\\'", c))
		q.params = append(q.params, kw)
	}
	q.where = append(q.where, "("+strings.Join(parts, " OR ")+")")
	return q
}

// WhereClause returns the accumulated WHERE body (without the WHERE
// keyword), or "" if nothing was added.
func (q *QueryBuilder) WhereClause() string {
	return strings.Join(q.where, " AND ")
}

// Params returns the accumulated parameter list in clause order.
func (q *QueryBuilder) Params() []any {
	return q.params
}

// Build assembles the complete SQL: baseSql + WHERE + ORDER BY + LIMIT.
func (q *QueryBuilder) Build(baseSql, orderBy string, limit int) (string, []any) {
	limit = util.ClampInt(limit, 1, 2000)
	sqlStr := baseSql
	if where := q.WhereClause(); where != "" {
		sqlStr += " WHERE " + where
	}
	if orderBy != "" {
		sqlStr += " ORDER BY " + orderBy
	}
	sqlStr += " LIMIT ?"
	params := append(append([]any{}, q.params...), limit)
	return sqlStr, params
}

// ========================================
// scanRows / scanOne — generic row scanning
// ========================================

// fieldIndexByDBTag maps `db:"col"` tag values to struct field indexes for T.
func fieldIndexByDBTag[T any]() map[string]int {
	typ := reflect.TypeOf((*T)(nil)).Elem()
	idx := make(map[string]int, typ.NumField())
	for i := range typ.NumField() {
		tag := typ.Field(i).Tag.Get("db")
		if tag == "" || tag == "-" {
			continue
		}
		idx[tag] = i
	}
	return idx
}

// scanRows scans every row into a []T, matching result columns to struct
// fields by `db` tag. Columns with no matching tag are discarded. This is
// the reflection-based replacement for pgx.CollectRows +
// RowToStructByNameLax now that the store talks to database/sql directly.
func scanRows[T any](rows *sql.Rows) ([]T, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	fieldIndex := fieldIndexByDBTag[T]()

	var out []T
	for rows.Next() {
		var item T
		v := reflect.ValueOf(&item).Elem()
		dest := make([]any, len(cols))
		for i, c := range cols {
			if fi, ok := fieldIndex[c]; ok {
				dest[i] = v.Field(fi).Addr().Interface()
			} else {
				var discard any
				dest[i] = &discard
			}
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// scanOne scans a single row, returning nil if the query produced none.
func scanOne[T any](rows *sql.Rows) (*T, error) {
	items, err := scanRows[T](rows)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

// ========================================
// DistinctValues — filter dropdown values
// ========================================

// sanitizeIdent guards against SQL injection through table/column names
// that (unlike user-supplied values) never travel through `?` params.
// SQLite has no equivalent to pgx.Identifier.Sanitize, so this does the
// minimal safe thing: reject anything but [A-Za-z0-9_].
func sanitizeIdent(ident string) string {
	var b strings.Builder
	for _, r := range ident {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// DistinctValues queries the deduplicated values of one column.
func DistinctValues(ctx context.Context, db *sql.DB, table, column string) ([]string, error) {
	safeTable := sanitizeIdent(table)
	safeCol := sanitizeIdent(column)
	query := fmt.Sprintf(
		"SELECT DISTINCT %s AS value FROM %s WHERE %s <> '' ORDER BY value",
		safeCol, safeTable, safeCol,
	)
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

// ========================================
// Shared CRUD helpers
// ========================================

// DeleteByKey deletes a single record by primary key.
func DeleteByKey(ctx context.Context, db *sql.DB, table, keyCol, keyVal string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", sanitizeIdent(table), sanitizeIdent(keyCol))
	_, err := db.ExecContext(ctx, query, keyVal)
	return err
}

// DeleteBatchByKeys deletes many records by primary key in one statement.
func DeleteBatchByKeys(ctx context.Context, db *sql.DB, table, keyCol string, keys []string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	query := fmt.Sprintf("DELETE FROM %s WHERE %s IN (%s)", sanitizeIdent(table), sanitizeIdent(keyCol), placeholders)
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
