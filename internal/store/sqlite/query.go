package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/lumenlib/lumen-server/internal/domain"
	"github.com/lumenlib/lumen-server/internal/errors"
	"github.com/lumenlib/lumen-server/internal/validation"
)

// sortColumns maps accepted sort keys to columns.
var sortColumns = map[string]string{
	"id":          "id",
	"name":        "name COLLATE NOCASE",
	"created_at":  "created_at",
	"imported_at": "imported_at",
	"size":        "size",
	"stars":       "stars",
	"folder_id":   "folder_id",
	"path":        "path",
}

// safeFields reads custom_fields as an empty object when the stored JSON is malformed.
const safeFields = `(CASE WHEN json_valid(custom_fields) THEN custom_fields ELSE '{}' END)`

// fileQuery is a filter compiled to SQL fragments.
type fileQuery struct {
	where     []string
	args      []any
	order     string
	orderArgs []any
}

func (q *fileQuery) add(clause string, args ...any) {
	q.where = append(q.where, clause)
	q.args = append(q.args, args...)
}

func (q *fileQuery) whereSQL() string {
	if len(q.where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(q.where, " AND ")
}

// buildFileQuery translates a filter into a parameterized WHERE and ORDER BY.
func buildFileQuery(f domain.FileFilter) (*fileQuery, error) {
	q := &fileQuery{}

	if f.Recycled != nil {
		q.add("recycled = ?", boolInt(bool(*f.Recycled)))
	} else {
		q.add("recycled = 0")
	}

	if f.Star != nil {
		q.add("stars >= ?", *f.Star)
	}
	if f.MinRating != nil {
		q.add("stars >= ?", *f.MinRating)
	}

	if f.Name != "" {
		q.add(`name LIKE ? ESCAPE '\'`, "%"+escapeLike(f.Name)+"%")
	}

	if dr := f.DateRange; dr != nil {
		switch {
		case dr.End > 0 && dr.End < dr.Start:
			return nil, errors.Validation("dateRange end is before start")
		case dr.End > 0:
			q.add("created_at BETWEEN ? AND ?", dr.Start, dr.End)
		default:
			q.add("created_at >= ?", dr.Start)
		}
	}

	if f.MinSize != nil {
		q.add("size >= ?", int64(*f.MinSize*1024))
	}
	if f.MaxSize != nil {
		q.add("size <= ?", int64(*f.MaxSize*1024))
	}

	if !f.Folder.IsZero() {
		q.add("folder_id = ?", string(f.Folder))
	}

	if tags := uniqueTags(f.Tags); len(tags) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(tags)), ", ")
		clause := fmt.Sprintf(`CASE WHEN json_valid(tags) THEN (
			SELECT COUNT(DISTINCT j.value) FROM json_each(files.tags) AS j WHERE j.value IN (%s)
		) ELSE 0 END = ?`, placeholders)
		args := make([]any, 0, len(tags)+1)
		for _, t := range tags {
			args = append(args, string(t))
		}
		args = append(args, len(tags))
		q.add(clause, args...)
	}

	if len(f.CustomFields) > 0 {
		keys := make([]string, 0, len(f.CustomFields))
		for k := range f.CustomFields {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, key := range keys {
			clause, args, err := customFieldPredicate(key, f.CustomFields[key])
			if err != nil {
				return nil, err
			}
			q.add(clause, args...)
		}
	}

	if err := q.setOrder(f.Sort, f.Order); err != nil {
		return nil, err
	}

	return q, nil
}

func (q *fileQuery) setOrder(sortKey, order string) error {
	dir := "ASC"
	switch strings.ToLower(order) {
	case "", "asc":
	case "desc":
		dir = "DESC"
	default:
		return errors.Validationf("order must be asc or desc, got %q", order)
	}

	switch {
	case sortKey == "":
		q.order = "id " + dir
	case strings.HasPrefix(sortKey, "custom_fields."):
		key := strings.TrimPrefix(sortKey, "custom_fields.")
		if !validation.ValidFieldKey(key) {
			return errors.Validationf("invalid custom field sort key %q", key)
		}
		q.order = "json_extract(" + safeFields + ", ?) " + dir + ", id ASC"
		q.orderArgs = []any{jsonPath(key)}
	default:
		col, ok := sortColumns[sortKey]
		if !ok {
			return errors.Validationf("cannot sort by %q", sortKey)
		}
		q.order = col + " " + dir
		if sortKey != "id" {
			q.order += ", id ASC"
		}
	}
	return nil
}

// customFieldPredicate compiles one custom_fields entry.
//
// JSON numbers and booleans compare by value. Strings may carry a "!=", ">=", "<=",
// ">" or "<" prefix; a prefixed operand that parses as a number compares numerically
// against numeric JSON values only, otherwise as text. A bare numeric string matches
// an equal JSON number or the same text. "null" and "!=null" test for
// absence and presence. "!=" also matches rows where the key is missing.
func customFieldPredicate(key string, raw any) (string, []any, error) {
	if !validation.ValidFieldKey(key) {
		return "", nil, errors.Validationf("invalid custom field key %q", key)
	}
	path := jsonPath(key)
	extract := "json_extract(" + safeFields + ", ?)"

	switch v := raw.(type) {
	case nil:
		return extract + " IS NULL", []any{path}, nil
	case bool:
		return extract + " = ?", []any{path, boolInt(v)}, nil
	case float64:
		return numericPredicate("="), []any{path, path, v}, nil
	case int:
		return numericPredicate("="), []any{path, path, float64(v)}, nil
	case int64:
		return numericPredicate("="), []any{path, path, float64(v)}, nil
	case json.Number:
		n, err := v.Float64()
		if err != nil {
			return "", nil, errors.Validationf("custom field %q: %v", key, err)
		}
		return numericPredicate("="), []any{path, path, n}, nil
	case string:
		return stringPredicate(key, path, v)
	default:
		return "", nil, errors.Validationf("custom field %q: unsupported filter value %T", key, raw)
	}
}

func stringPredicate(key, path, v string) (string, []any, error) {
	extract := "json_extract(" + safeFields + ", ?)"

	switch v {
	case "null":
		return extract + " IS NULL", []any{path}, nil
	case "!=null":
		return extract + " IS NOT NULL", []any{path}, nil
	}

	op, operand := "=", v
	for _, prefix := range []string{"!=", ">=", "<=", ">", "<"} {
		if strings.HasPrefix(v, prefix) {
			op, operand = prefix, strings.TrimSpace(v[len(prefix):])
			break
		}
	}

	if op == "=" {
		if n, err := strconv.ParseFloat(operand, 64); err == nil {
			return fmt.Sprintf("(%s OR %s = ?)", numericPredicate("="), extract), []any{path, path, n, path, operand}, nil
		}
		return extract + " = ?", []any{path, operand}, nil
	}

	if n, err := strconv.ParseFloat(operand, 64); err == nil {
		if op == "!=" {
			return fmt.Sprintf("NOT (%s)", numericPredicate("=")), []any{path, path, n}, nil
		}
		return numericPredicate(op), []any{path, path, n}, nil
	}

	if operand == "" {
		return "", nil, errors.Validationf("custom field %q: missing operand after %q", key, op)
	}
	if op == "!=" {
		return fmt.Sprintf("(%s IS NULL OR %s != ?)", extract, extract), []any{path, path, operand}, nil
	}
	return fmt.Sprintf("json_type(%s, ?) = 'text' AND %s %s ?", safeFields, extract, op), []any{path, path, operand}, nil
}

// numericPredicate yields a clause taking args (path, path, number).
func numericPredicate(op string) string {
	return fmt.Sprintf("COALESCE(json_type(%[1]s, ?) IN ('integer', 'real'), 0) AND CAST(json_extract(%[1]s, ?) AS REAL) %[2]s ?", safeFields, op)
}

// jsonPath quotes the key so dots inside it are not treated as nesting.
func jsonPath(key string) string {
	return `$."` + key + `"`
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func uniqueTags(tags []domain.EntityID) []domain.EntityID {
	seen := make(map[domain.EntityID]bool, len(tags))
	var out []domain.EntityID
	for _, t := range tags {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// GetFiles returns one page of files matching filter plus the unbounded total.
// The page and the count share the WHERE clause and run concurrently.
func (s *Store) GetFiles(ctx context.Context, filter domain.FileFilter) (*domain.FileList, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	q, err := buildFileQuery(filter)
	if err != nil {
		return nil, err
	}
	limit, offset := filter.Window()

	where := q.whereSQL()
	selectSQL := `SELECT ` + fileColumns + ` FROM files` + where + ` ORDER BY ` + q.order + ` LIMIT ? OFFSET ?`
	selectArgs := slices.Concat(q.args, q.orderArgs, []any{limit, offset})
	countSQL := `SELECT COUNT(*) FROM files` + where

	list := &domain.FileList{Result: []*domain.File{}, Limit: limit, Offset: offset}

	page := func(ctx context.Context) error {
		rows, err := s.query(ctx, selectSQL, selectArgs...)
		if err != nil {
			return translate(err, "query files")
		}
		defer rows.Close()
		for rows.Next() {
			f, err := scanFile(rows)
			if err != nil {
				return translate(err, "scan file")
			}
			list.Result = append(list.Result, f)
		}
		if err := rows.Err(); err != nil {
			return translate(err, "query files")
		}
		return nil
	}
	count := func(ctx context.Context) error {
		if err := s.queryRow(ctx, countSQL, q.args...).Scan(&list.Total); err != nil {
			return translate(err, "count files")
		}
		return nil
	}

	// A transaction is bound to one connection; run its statements in sequence.
	if s.txFrom(ctx) != nil {
		if err := page(ctx); err != nil {
			return nil, err
		}
		if err := count(ctx); err != nil {
			return nil, err
		}
		return list, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return page(gctx) })
	g.Go(func() error { return count(gctx) })
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return list, nil
}
