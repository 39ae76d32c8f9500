package sqlite

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenlib/lumen-server/internal/domain"
)

func countFiles(t *testing.T, s *Store) int {
	t.Helper()
	var n int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM files`).Scan(&n))
	return n
}

func TestInTx_Commit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.InTx(ctx, func(ctx context.Context) error {
		if _, err := s.CreateFolder(ctx, &domain.Folder{ID: "10", Title: "Photos"}); err != nil {
			return err
		}
		in := makeTestFile("a.jpg")
		in.FolderID = idPtr("10")
		_, err := s.CreateFile(ctx, in)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, countFiles(t, s))
}

func TestInTx_RollbackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.InTx(ctx, func(ctx context.Context) error {
		if _, err := s.CreateFile(ctx, makeTestFile("a.jpg")); err != nil {
			return err
		}
		return fmt.Errorf("abort")
	})
	require.EqualError(t, err, "abort")
	assert.Equal(t, 0, countFiles(t, s))
}

func TestInTx_NestedFailureOnlyUndoesInner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.InTx(ctx, func(ctx context.Context) error {
		if _, err := s.CreateFile(ctx, makeTestFile("outer.jpg")); err != nil {
			return err
		}
		inner := s.InTx(ctx, func(ctx context.Context) error {
			if _, err := s.CreateFile(ctx, makeTestFile("inner.jpg")); err != nil {
				return err
			}
			return fmt.Errorf("inner abort")
		})
		assert.EqualError(t, inner, "inner abort")
		return nil
	})
	require.NoError(t, err)

	list, err := s.GetFiles(ctx, domain.FileFilter{})
	require.NoError(t, err)
	require.Len(t, list.Result, 1)
	assert.Equal(t, "outer.jpg", list.Result[0].Name)
}

func TestInTx_OuterFailureUndoesCommittedInner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.InTx(ctx, func(ctx context.Context) error {
		err := s.InTx(ctx, func(ctx context.Context) error {
			_, err := s.CreateFile(ctx, makeTestFile("inner.jpg"))
			return err
		})
		if err != nil {
			return err
		}
		return fmt.Errorf("outer abort")
	})
	require.Error(t, err)
	assert.Equal(t, 0, countFiles(t, s))
}

func TestInTx_PanicRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	assert.Panics(t, func() {
		_ = s.InTx(ctx, func(ctx context.Context) error {
			if _, err := s.CreateFile(ctx, makeTestFile("a.jpg")); err != nil {
				return err
			}
			panic("boom")
		})
	})
	assert.Equal(t, 0, countFiles(t, s))

	// The lock was released; a new transaction can start.
	require.NoError(t, s.InTx(ctx, func(context.Context) error { return nil }))
}
