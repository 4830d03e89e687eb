// Package session implements the façade that maps client commands
// (begin/commit/rollback/query) onto the MVCC engine, the catalog, and the
// planner/optimizer/executor pipeline.
//
// Each Session owns at most one open mvcc.Txn at a time. Query runs inside
// that transaction if one is open; otherwise it opens an implicit
// single-statement transaction, auto-committing on success and
// auto-rolling-back on error.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/untoldecay/cokedb/catalog"
	"github.com/untoldecay/cokedb/errs"
	"github.com/untoldecay/cokedb/mvcc"
	"github.com/untoldecay/cokedb/sql/ast"
	"github.com/untoldecay/cokedb/sql/exec"
	"github.com/untoldecay/cokedb/sql/optimize"
	"github.com/untoldecay/cokedb/sql/parser"
	"github.com/untoldecay/cokedb/sql/plan"
)

// EngineVersion is the session façade's protocol version, compared against
// a client's advertised version with golang.org/x/mod/semver (see
// CheckClientVersion). It has nothing to do with the SQL dialect version;
// it tracks the shape of the Request/Response surface in this package.
const EngineVersion = "v1.0.0"

// Result is what Query returns: either a row set (SELECT/EXPLAIN) or an
// affected-row count (INSERT/UPDATE/DELETE/DDL), matching the
// RowSet/Affected response kinds.
type Result struct {
	Columns  []string
	Rows     []catalog.Row
	Affected int64
	Explain  string // non-empty only for EXPLAIN
}

// Status is the session façade's health/identity surface, carrying
// session identity and engine version alongside transaction state.
type Status struct {
	SessionID   uuid.UUID
	EngineVersion string
	InTxn       bool
	TxnID       uint64
	StartedAt   time.Time
}

// Session holds one client's façade state: either "no txn" or "in txn",
// plus enough identity to log and report Status.
type Session struct {
	id     uuid.UUID
	engine *mvcc.Engine
	funcs  exec.FuncRegistry
	log    *slog.Logger

	txn       *mvcc.Txn
	startedAt time.Time
}

// New creates a façade over engine. funcs may be nil (no scalar UDFs
// available; see the udf package for the wazero-backed registry). logger
// may be nil, in which case a discard logger is used.
func New(engine *mvcc.Engine, funcs exec.FuncRegistry, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(discardWriter{}, nil))
	}
	return &Session{
		id:        uuid.New(),
		engine:    engine,
		funcs:     funcs,
		log:       logger,
		startedAt: time.Now(),
	}
}

// ID returns the session's UUID, distinct from any MVCC transaction id.
func (s *Session) ID() uuid.UUID { return s.id }

// Begin opens an explicit transaction. It is a Transaction error to call
// Begin while already in one ("begin-within-begin").
func (s *Session) Begin(ctx context.Context) (uint64, error) {
	if s.txn != nil {
		return 0, errs.Transactionf("session %s: already in a transaction", s.id)
	}
	txn, err := s.engine.Begin(ctx)
	if err != nil {
		return 0, err
	}
	s.txn = txn
	s.log.Info("txn begin", "session", s.id, "txn", txn.ID())
	return txn.ID(), nil
}

// Commit consumes the open explicit transaction. It is a Transaction error
// to call Commit with no transaction open.
func (s *Session) Commit(ctx context.Context) (uint64, error) {
	if s.txn == nil {
		return 0, errs.Transactionf("session %s: commit without an active transaction", s.id)
	}
	id := s.txn.ID()
	err := s.txn.Commit(ctx)
	s.txn = nil
	if err != nil {
		s.log.Error("txn commit failed", "session", s.id, "txn", id, "error", err)
		return 0, err
	}
	s.log.Info("txn commit", "session", s.id, "txn", id)
	return id, nil
}

// Rollback consumes the open explicit transaction. It is a Transaction
// error to call Rollback with no transaction open.
func (s *Session) Rollback(ctx context.Context) (uint64, error) {
	if s.txn == nil {
		return 0, errs.Transactionf("session %s: rollback without an active transaction", s.id)
	}
	id := s.txn.ID()
	err := s.txn.Rollback(ctx)
	s.txn = nil
	if err != nil {
		s.log.Error("txn rollback failed", "session", s.id, "txn", id, "error", err)
		return 0, err
	}
	s.log.Info("txn rollback", "session", s.id, "txn", id)
	return id, nil
}

// Close treats a dropped session as a rollback of any open transaction.
// It is safe to call on a session with no open transaction.
func (s *Session) Close(ctx context.Context) error {
	if s.txn == nil {
		return nil
	}
	_, err := s.Rollback(ctx)
	return err
}

// InTxn reports whether an explicit transaction is currently open.
func (s *Session) InTxn() bool { return s.txn != nil }

// CatalogTxn exposes the open explicit transaction for callers that need
// to build a *catalog.Catalog directly (schema bootstrap at startup,
// before any client SQL runs). It is a Transaction error to call this
// with no transaction open; ordinary statement execution never needs it,
// since Query already builds its own catalog.Catalog per call.
func (s *Session) CatalogTxn() (*mvcc.Txn, error) {
	if s.txn == nil {
		return nil, errs.Transactionf("session %s: no active transaction", s.id)
	}
	return s.txn, nil
}

// Query parses, plans, optimizes, and executes sql. If an explicit
// transaction is open it runs within that transaction's snapshot and
// write set; otherwise it opens an implicit single-statement transaction
// and auto-commits on success or auto-rolls-back on any error.
func (s *Session) Query(ctx context.Context, sql string) (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic during query", "session", s.id, "panic", r)
			err = errs.Internalf("session: recovered panic: %v", r)
		}
	}()

	stmt, perr := parser.Parse(sql)
	if perr != nil {
		return nil, perr
	}

	implicit := s.txn == nil
	txn := s.txn
	if implicit {
		txn, err = s.engine.Begin(ctx)
		if err != nil {
			return nil, err
		}
	}

	start := time.Now()
	result, err = s.runStatement(ctx, txn, stmt)

	if implicit {
		if err != nil {
			if rerr := txn.Rollback(ctx); rerr != nil {
				s.log.Error("implicit rollback failed", "session", s.id, "txn", txn.ID(), "error", rerr)
			}
		} else if cerr := txn.Commit(ctx); cerr != nil {
			err = cerr
		}
	}

	s.log.Info("query", "session", s.id,
		"kind", statementKind(stmt), "duration", time.Since(start), "error", errString(err))
	return result, err
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func statementKind(stmt ast.Statement) string {
	switch stmt.(type) {
	case *ast.SelectStmt:
		return "select"
	case *ast.InsertStmt:
		return "insert"
	case *ast.UpdateStmt:
		return "update"
	case *ast.DeleteStmt:
		return "delete"
	case *ast.CreateTableStmt:
		return "create_table"
	case *ast.DropTableStmt:
		return "drop_table"
	case *ast.ExplainStmt:
		return "explain"
	default:
		return "other"
	}
}

// tableSchema adapts a context-bound catalog.Catalog to plan.TableSchema,
// which the planner and optimizer call without threading a ctx of their
// own (mirrors sql/exec's test helper of the same shape).
type tableSchema struct {
	ctx context.Context
	cat *catalog.Catalog
}

func (t tableSchema) GetTable(name string) (*catalog.Table, error) {
	return t.cat.GetTable(t.ctx, name)
}

func (s *Session) runStatement(ctx context.Context, txn *mvcc.Txn, stmt ast.Statement) (*Result, error) {
	if explainStmt, ok := stmt.(*ast.ExplainStmt); ok {
		return s.explain(ctx, txn, explainStmt.Stmt)
	}

	cat := catalog.New(txn)
	sch := tableSchema{ctx: ctx, cat: cat}

	node, err := plan.Build(sch, stmt)
	if err != nil {
		return nil, err
	}
	node, err = optimize.Optimize(sch, node)
	if err != nil {
		return nil, err
	}

	ex := exec.New(cat, s.funcs)
	res, err := ex.Execute(ctx, node)
	if err != nil {
		return nil, err
	}
	return &Result{Columns: res.Columns, Rows: res.Rows, Affected: res.Affected}, nil
}

func (s *Session) explain(ctx context.Context, txn *mvcc.Txn, inner ast.Statement) (*Result, error) {
	cat := catalog.New(txn)
	sch := tableSchema{ctx: ctx, cat: cat}

	node, err := plan.Build(sch, inner)
	if err != nil {
		return nil, err
	}
	node, err = optimize.Optimize(sch, node)
	if err != nil {
		return nil, err
	}
	return &Result{Explain: exec.Explain(node)}, nil
}

// ListTables returns every table name in the catalog, ascending. It runs
// within the open transaction if any, else in a fresh implicit read-only
// snapshot.
func (s *Session) ListTables(ctx context.Context) ([]string, error) {
	txn, implicit, err := s.snapshotTxn(ctx)
	if err != nil {
		return nil, err
	}
	if implicit {
		defer txn.Rollback(ctx)
	}
	return catalog.New(txn).ListTables(ctx)
}

// GetTable returns one table's schema.
func (s *Session) GetTable(ctx context.Context, name string) (*catalog.Table, error) {
	txn, implicit, err := s.snapshotTxn(ctx)
	if err != nil {
		return nil, err
	}
	if implicit {
		defer txn.Rollback(ctx)
	}
	return catalog.New(txn).GetTable(ctx, name)
}

func (s *Session) snapshotTxn(ctx context.Context) (*mvcc.Txn, bool, error) {
	if s.txn != nil {
		return s.txn, false, nil
	}
	txn, err := s.engine.Begin(ctx)
	return txn, true, err
}

// GetStatus reports the session's identity and transaction state.
func (s *Session) GetStatus() Status {
	st := Status{
		SessionID:     s.id,
		EngineVersion: EngineVersion,
		InTxn:         s.txn != nil,
		StartedAt:     s.startedAt,
	}
	if s.txn != nil {
		st.TxnID = s.txn.ID()
	}
	return st
}

func (st Status) String() string {
	if st.InTxn {
		return fmt.Sprintf("session %s (engine %s): in txn %d, up %s",
			st.SessionID, st.EngineVersion, st.TxnID, time.Since(st.StartedAt).Round(time.Millisecond))
	}
	return fmt.Sprintf("session %s (engine %s): idle, up %s",
		st.SessionID, st.EngineVersion, time.Since(st.StartedAt).Round(time.Millisecond))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
