package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lumenlib/lumen-server/internal/errors"
)

// querier is the subset of *sql.DB and *sql.Tx the store uses.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// txKey scopes the ambient transaction to the store that opened it.
type txKey struct{ s *Store }

type txState struct {
	tx    *sql.Tx
	depth int
}

// conn returns the transaction carried by ctx, or the pool.
func (s *Store) conn(ctx context.Context) querier {
	if st := s.txFrom(ctx); st != nil {
		return st.tx
	}
	return s.db
}

func (s *Store) txFrom(ctx context.Context) *txState {
	st, _ := ctx.Value(txKey{s}).(*txState)
	return st
}

// InTx runs fn in a transaction. The ctx handed to fn carries the transaction, so
// every store call made with it joins the transaction; an InTx call nested inside fn
// opens a savepoint that rolls back on its own without aborting the outer work.
// Top-level transactions on one store are serialized.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if err := s.ready(); err != nil {
		return err
	}

	if st := s.txFrom(ctx); st != nil {
		return s.savepoint(ctx, st, fn)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Storage(err, "begin transaction")
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{s}, &txState{tx: tx})); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("rollback failed", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Storage(err, "commit transaction")
	}
	return nil
}

func (s *Store) savepoint(ctx context.Context, st *txState, fn func(ctx context.Context) error) error {
	st.depth++
	name := fmt.Sprintf("sp_%d", st.depth)
	defer func() { st.depth-- }()

	if _, err := st.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return errors.Storage(err, "open savepoint")
	}

	if err := fn(ctx); err != nil {
		if _, rbErr := st.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			s.logger.Error("rollback to savepoint failed", "savepoint", name, "error", rbErr)
		}
		// ROLLBACK TO leaves the savepoint on the stack.
		_, _ = st.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name)
		return err
	}

	if _, err := st.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return errors.Storage(err, "release savepoint")
	}
	return nil
}
