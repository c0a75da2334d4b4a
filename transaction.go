package pgwire

import (
	"context"
	"fmt"

	"github.com/riftpg/pgwire/pkg/types"
)

// txContext is the (depth, aborted?) pair from §3's data model. depth 0
// means no transaction is open; depth 1 is a top-level BEGIN; depth > 1
// counts nested SAVEPOINTs. status mirrors the last ReadyForQuery
// transaction-status byte.
type txContext struct {
	depth  int
	status types.TransactionStatus
}

// IsolationLevel selects a BEGIN's ISOLATION LEVEL clause.
type IsolationLevel string

const (
	IsolationDefault        IsolationLevel = ""
	IsolationReadCommitted  IsolationLevel = "READ COMMITTED"
	IsolationRepeatableRead IsolationLevel = "REPEATABLE READ"
	IsolationSerializable   IsolationLevel = "SERIALIZABLE"
)

// AccessMode selects a BEGIN's READ WRITE / READ ONLY clause.
type AccessMode string

const (
	AccessDefault   AccessMode = ""
	AccessReadWrite AccessMode = "READ WRITE"
	AccessReadOnly  AccessMode = "READ ONLY"
)

// TxOptions configures a Run call's BEGIN statement. Only consulted at
// depth 0: a nested Run issues SAVEPOINT, which carries no isolation or
// access mode of its own.
type TxOptions struct {
	Isolation  IsolationLevel
	Access     AccessMode
	Deferrable bool
}

// Run implements the transaction coordinator (L6): it emits BEGIN (or,
// nested within an already-open transaction, SAVEPOINT sN) before calling
// fn, and COMMIT/RELEASE SAVEPOINT after a nil return or ROLLBACK/ROLLBACK
// TO SAVEPOINT after a non-nil one, preserving the abort distance so an
// outer Run may continue only if it rolled back to its own savepoint.
func (s *Session) Run(ctx context.Context, opts TxOptions, fn func(ctx context.Context) error) error {
	if s.tx.status == types.TxFailed && s.tx.depth == 0 {
		return newError(KindTransactionAborted, fmt.Errorf("pgwire: transaction is aborted, rollback required"))
	}

	s.tx.depth++
	depth := s.tx.depth

	if depth == 1 {
		if err := s.beginTopLevel(ctx, opts); err != nil {
			s.tx.depth--
			return err
		}
	} else {
		if _, err := s.SimpleQuery(ctx, fmt.Sprintf("SAVEPOINT s%d", depth)); err != nil {
			s.tx.depth--
			return err
		}
	}

	err := fn(ctx)

	if err != nil {
		return s.abortRun(ctx, depth, err)
	}

	return s.commitRun(ctx, depth)
}

func (s *Session) beginTopLevel(ctx context.Context, opts TxOptions) error {
	stmt := "BEGIN"
	if opts.Isolation != IsolationDefault {
		stmt += " ISOLATION LEVEL " + string(opts.Isolation)
	}
	if opts.Access != AccessDefault {
		stmt += " " + string(opts.Access)
	}
	if opts.Deferrable {
		stmt += " DEFERRABLE"
	}

	_, err := s.SimpleQuery(ctx, stmt)
	return err
}

func (s *Session) commitRun(ctx context.Context, depth int) error {
	defer func() { s.tx.depth-- }()

	if depth == 1 {
		_, err := s.SimpleQuery(ctx, "COMMIT")
		return err
	}

	_, err := s.SimpleQuery(ctx, fmt.Sprintf("RELEASE SAVEPOINT s%d", depth))
	return err
}

// abortRun rolls back to the depth's savepoint (or the whole transaction at
// depth 1), then releases the savepoint if the rollback itself succeeded,
// and returns the body's original error, not a rollback error, unless the
// rollback itself failed.
func (s *Session) abortRun(ctx context.Context, depth int, cause error) error {
	defer func() { s.tx.depth-- }()

	if depth == 1 {
		if _, err := s.SimpleQuery(ctx, "ROLLBACK"); err != nil {
			return err
		}
		return cause
	}

	if _, err := s.SimpleQuery(ctx, fmt.Sprintf("ROLLBACK TO SAVEPOINT s%d", depth)); err != nil {
		return err
	}
	if _, err := s.SimpleQuery(ctx, fmt.Sprintf("RELEASE SAVEPOINT s%d", depth)); err != nil {
		return err
	}

	return cause
}
