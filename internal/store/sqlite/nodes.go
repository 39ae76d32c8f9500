package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/lumenlib/lumen-server/internal/domain"
	"github.com/lumenlib/lumen-server/internal/errors"
)

// nodeColumns must match the scan order in scanNode.
const nodeColumns = `id, title, parent_id, color, icon`

// nodeTable describes one of the two parent-chained tables.
type nodeTable struct {
	name string // table name, never user input
	kind string // "folder" or "tag", for messages
	// detach clears references from files to a node that is about to be removed.
	detach func(ctx context.Context, s *Store, id domain.EntityID) error
}

var (
	folderTable = nodeTable{name: "folders", kind: "folder", detach: detachFolder}
	tagTable    = nodeTable{name: "tags", kind: "tag", detach: detachTag}
)

func detachFolder(ctx context.Context, s *Store, id domain.EntityID) error {
	if _, err := s.exec(ctx, `UPDATE files SET folder_id = NULL WHERE folder_id = ?`, string(id)); err != nil {
		return translate(err, "clear folder from files")
	}
	return nil
}

func detachTag(ctx context.Context, s *Store, id domain.EntityID) error {
	_, err := s.exec(ctx, `
		UPDATE files
		SET tags = (
			SELECT COALESCE(json_group_array(j.value), '[]')
			FROM json_each(files.tags) AS j
			WHERE j.value != ?
		)
		WHERE CASE WHEN json_valid(files.tags)
			THEN EXISTS (SELECT 1 FROM json_each(files.tags) AS k WHERE k.value = ?)
			ELSE 0 END`,
		string(id), string(id))
	if err != nil {
		return translate(err, "strip tag from files")
	}
	return nil
}

func scanNode(scanner interface{ Scan(dest ...any) error }) (*domain.Node, error) {
	var (
		n        domain.Node
		parentID sql.NullString
	)
	if err := scanner.Scan(&n.ID, &n.Title, &parentID, &n.Color, &n.Icon); err != nil {
		return nil, err
	}
	n.ParentID = idFromNull(parentID)
	return &n, nil
}

func (s *Store) scanNodes(ctx context.Context, query string, args ...any) ([]*domain.Node, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	nodes := []*domain.Node{}
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

func (s *Store) createNode(ctx context.Context, t nodeTable, n *domain.Node) (*domain.Node, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if n == nil || n.ID.IsZero() {
		return nil, errors.Validationf("%s id is required", t.kind)
	}
	if strings.TrimSpace(n.Title) == "" {
		return nil, errors.Validationf("%s title is required", t.kind)
	}

	parent := normalizeParent(n.ParentID)
	if parent != nil && *parent == n.ID {
		return nil, errors.Validationf("%s %s cannot be its own parent", t.kind, n.ID)
	}

	_, err := s.exec(ctx, `INSERT INTO `+t.name+` (id, title, parent_id, color, icon) VALUES (?, ?, ?, ?, ?)`,
		string(n.ID), n.Title, nullableID(parent), n.Color, n.Icon)
	if err != nil {
		return nil, translate(err, "insert "+t.kind)
	}

	return s.getNode(ctx, t, n.ID)
}

func (s *Store) updateNode(ctx context.Context, t nodeTable, id domain.EntityID, patch domain.NodePatch) (bool, error) {
	if err := s.ready(); err != nil {
		return false, err
	}
	if patch.IsEmpty() {
		return false, nil
	}

	var (
		sets []string
		args []any
	)
	if patch.Title != nil {
		if strings.TrimSpace(*patch.Title) == "" {
			return false, errors.Validationf("%s title cannot be empty", t.kind)
		}
		sets = append(sets, "title = ?")
		args = append(args, *patch.Title)
	}
	if patch.ParentID.Set {
		sets = append(sets, "parent_id = ?")
		args = append(args, nullableID(normalizeParent(patch.ParentID.Ptr())))
	}
	if patch.Color != nil {
		sets = append(sets, "color = ?")
		args = append(args, *patch.Color)
	}
	if patch.Icon != nil {
		sets = append(sets, "icon = ?")
		args = append(args, *patch.Icon)
	}
	args = append(args, string(id))

	var ok bool
	err := s.InTx(ctx, func(ctx context.Context) error {
		if patch.ParentID.Set {
			if err := s.checkNoCycle(ctx, t, id, normalizeParent(patch.ParentID.Ptr())); err != nil {
				return err
			}
		}
		res, err := s.exec(ctx, `UPDATE `+t.name+` SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
		if err != nil {
			return translate(err, "update "+t.kind)
		}
		ok, err = affected(res)
		return err
	})
	return ok, err
}

// checkNoCycle rejects re-parenting id under parent when parent's chain reaches id.
func (s *Store) checkNoCycle(ctx context.Context, t nodeTable, id domain.EntityID, parent *domain.EntityID) error {
	seen := map[domain.EntityID]bool{}
	for cur := parent; cur != nil; {
		if *cur == id {
			return errors.Validationf("moving %s %s under %s would create a cycle", t.kind, id, *parent)
		}
		if seen[*cur] {
			// Pre-existing loop that does not involve id.
			return nil
		}
		seen[*cur] = true

		var next sql.NullString
		err := s.queryRow(ctx, `SELECT parent_id FROM `+t.name+` WHERE id = ?`, string(*cur)).Scan(&next)
		if errors.Is(err, sql.ErrNoRows) {
			return errors.Validationf("parent %s %s does not exist", t.kind, *cur)
		}
		if err != nil {
			return translate(err, "walk "+t.kind+" parents")
		}
		cur = idFromNull(next)
	}
	return nil
}

func (s *Store) getNode(ctx context.Context, t nodeTable, id domain.EntityID) (*domain.Node, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	n, err := scanNode(s.queryRow(ctx, `SELECT `+nodeColumns+` FROM `+t.name+` WHERE id = ?`, string(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFoundf("%s %s not found", t.kind, id)
	}
	if err != nil {
		return nil, translate(err, "get "+t.kind)
	}
	return n, nil
}

// listNodes lists the children of parent, or the roots when parent is nil.
func (s *Store) listNodes(ctx context.Context, t nodeTable, parent *domain.EntityID) ([]*domain.Node, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	var (
		nodes []*domain.Node
		err   error
	)
	if p := normalizeParent(parent); p != nil {
		nodes, err = s.scanNodes(ctx, `SELECT `+nodeColumns+` FROM `+t.name+` WHERE parent_id = ? ORDER BY title, id`, string(*p))
	} else {
		nodes, err = s.scanNodes(ctx, `SELECT `+nodeColumns+` FROM `+t.name+` WHERE parent_id IS NULL ORDER BY title, id`)
	}
	if err != nil {
		return nil, translate(err, "list "+t.name)
	}
	return nodes, nil
}

func (s *Store) listAllNodes(ctx context.Context, t nodeTable) ([]*domain.Node, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	nodes, err := s.scanNodes(ctx, `SELECT `+nodeColumns+` FROM `+t.name+` ORDER BY title, id`)
	if err != nil {
		return nil, translate(err, "list "+t.name)
	}
	return nodes, nil
}

// findNodeByName matches the title exactly under parent (roots when nil).
func (s *Store) findNodeByName(ctx context.Context, t nodeTable, name string, parent *domain.EntityID) (*domain.Node, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	var row *sql.Row
	if p := normalizeParent(parent); p != nil {
		row = s.queryRow(ctx, `SELECT `+nodeColumns+` FROM `+t.name+` WHERE title = ? AND parent_id = ? ORDER BY id LIMIT 1`, name, string(*p))
	} else {
		row = s.queryRow(ctx, `SELECT `+nodeColumns+` FROM `+t.name+` WHERE title = ? AND parent_id IS NULL ORDER BY id LIMIT 1`, name)
	}

	n, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFoundf("%s %q not found", t.kind, name)
	}
	if err != nil {
		return nil, translate(err, "find "+t.kind)
	}
	return n, nil
}

// deleteNode removes id and every descendant in one transaction, children first.
// Files referencing a removed node are detached, never deleted.
func (s *Store) deleteNode(ctx context.Context, t nodeTable, id domain.EntityID) ([]domain.EntityID, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	var deleted []domain.EntityID
	err := s.InTx(ctx, func(ctx context.Context) error {
		if _, err := s.getNode(ctx, t, id); err != nil {
			return err
		}
		return s.deleteSubtree(ctx, t, id, map[domain.EntityID]bool{}, &deleted)
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

func (s *Store) deleteSubtree(ctx context.Context, t nodeTable, id domain.EntityID, visited map[domain.EntityID]bool, deleted *[]domain.EntityID) error {
	if visited[id] {
		return nil
	}
	visited[id] = true

	// Unlink from the parent first so a loop in existing data does not leave a
	// referenced row behind when its members are deleted.
	if _, err := s.exec(ctx, `UPDATE `+t.name+` SET parent_id = NULL WHERE id = ?`, string(id)); err != nil {
		return translate(err, "detach "+t.kind)
	}

	children, err := s.childIDs(ctx, t, id)
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := s.deleteSubtree(ctx, t, child, visited, deleted); err != nil {
			return err
		}
	}

	if err := t.detach(ctx, s, id); err != nil {
		return err
	}

	if s.beforeNodeDelete != nil {
		if err := s.beforeNodeDelete(t.name, id); err != nil {
			return err
		}
	}

	if _, err := s.exec(ctx, `DELETE FROM `+t.name+` WHERE id = ?`, string(id)); err != nil {
		return translate(err, "delete "+t.kind)
	}
	*deleted = append(*deleted, id)
	return nil
}

func (s *Store) childIDs(ctx context.Context, t nodeTable, id domain.EntityID) ([]domain.EntityID, error) {
	rows, err := s.query(ctx, `SELECT id FROM `+t.name+` WHERE parent_id = ? ORDER BY id`, string(id))
	if err != nil {
		return nil, translate(err, "list child "+t.name)
	}
	defer rows.Close()

	var ids []domain.EntityID
	for rows.Next() {
		var child string
		if err := rows.Scan(&child); err != nil {
			return nil, translate(err, "scan child "+t.kind)
		}
		ids = append(ids, domain.EntityID(child))
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err, "list child "+t.name)
	}
	return ids, nil
}
