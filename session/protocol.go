package session

import (
	"context"
	"encoding/json"

	"github.com/untoldecay/cokedb/catalog"
	"github.com/untoldecay/cokedb/errs"
)

// RequestKind enumerates the client protocol surface a session exposes,
// transport-agnostic: any framing (a network server, a REPL, an
// in-process call) builds a Request and calls Handle.
type RequestKind string

const (
	ReqExecute    RequestKind = "execute"
	ReqBegin      RequestKind = "begin"
	ReqCommit     RequestKind = "commit"
	ReqRollback   RequestKind = "rollback"
	ReqListTables RequestKind = "list_tables"
	ReqGetTable   RequestKind = "get_table"
	ReqStatus     RequestKind = "status"
)

// Request is one client command: a kind plus the one or two fields that
// kind needs.
type Request struct {
	Kind          RequestKind `json:"kind"`
	SQL           string      `json:"sql,omitempty"`            // ReqExecute
	Table         string      `json:"table,omitempty"`          // ReqGetTable
	ClientVersion string      `json:"client_version,omitempty"` // checked against EngineVersion
}

// ResponseKind enumerates the response shapes a session can produce.
type ResponseKind string

const (
	RespRowSet         ResponseKind = "row_set"
	RespAffected       ResponseKind = "affected"
	RespTxnBegun       ResponseKind = "txn_begun"
	RespTxnCommitted   ResponseKind = "txn_committed"
	RespTxnRolledBack  ResponseKind = "txn_rolled_back"
	RespTableList      ResponseKind = "table_list"
	RespTableSchema    ResponseKind = "table_schema"
	RespStatus         ResponseKind = "status"
	RespError          ResponseKind = "error"
)

// Response is the result of Handle, tagged by Kind; only the fields that
// kind populates are meaningful.
type Response struct {
	Kind ResponseKind `json:"kind"`

	Columns  []string      `json:"columns,omitempty"`
	Rows     []catalog.Row `json:"rows,omitempty"`
	Affected int64         `json:"affected,omitempty"`
	Explain  string        `json:"explain,omitempty"`

	TxnID uint64 `json:"txn_id,omitempty"`

	Tables []string       `json:"tables,omitempty"`
	Schema *catalog.Table `json:"schema,omitempty"`

	Status *Status `json:"status,omitempty"`

	ErrorKind    string `json:"error_kind,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// MarshalJSON renders a Status inline; catalog.Table and catalog.Row
// already marshal structurally, which is enough for CokeDB's transport-
// agnostic scope (no bit-exact wire format is required).
func (s Status) MarshalJSON() ([]byte, error) {
	type alias struct {
		SessionID     string `json:"session_id"`
		EngineVersion string `json:"engine_version"`
		InTxn         bool   `json:"in_txn"`
		TxnID         uint64 `json:"txn_id,omitempty"`
	}
	return json.Marshal(alias{
		SessionID:     s.SessionID.String(),
		EngineVersion: s.EngineVersion,
		InTxn:         s.InTxn,
		TxnID:         s.TxnID,
	})
}

// Handle dispatches one Request to the matching Session method and
// translates the outcome into the tagged Response shape, turning any
// error into RespError rather than propagating it, so a network server
// can always write a framed Response back to its client.
func (s *Session) Handle(ctx context.Context, req Request) *Response {
	if req.ClientVersion != "" {
		if ok, reason := CheckClientVersion(req.ClientVersion); !ok {
			return errorResponse(errs.Schemaf("incompatible client: %s", reason))
		}
	}

	switch req.Kind {
	case ReqExecute:
		res, err := s.Query(ctx, req.SQL)
		if err != nil {
			return errorResponse(err)
		}
		if res.Explain != "" {
			return &Response{Kind: RespRowSet, Columns: []string{"plan"}, Rows: []catalog.Row{{catalog.String(res.Explain)}}}
		}
		if res.Rows != nil || res.Columns != nil {
			return &Response{Kind: RespRowSet, Columns: res.Columns, Rows: res.Rows}
		}
		return &Response{Kind: RespAffected, Affected: res.Affected}

	case ReqBegin:
		id, err := s.Begin(ctx)
		if err != nil {
			return errorResponse(err)
		}
		return &Response{Kind: RespTxnBegun, TxnID: id}

	case ReqCommit:
		id, err := s.Commit(ctx)
		if err != nil {
			return errorResponse(err)
		}
		return &Response{Kind: RespTxnCommitted, TxnID: id}

	case ReqRollback:
		id, err := s.Rollback(ctx)
		if err != nil {
			return errorResponse(err)
		}
		return &Response{Kind: RespTxnRolledBack, TxnID: id}

	case ReqListTables:
		names, err := s.ListTables(ctx)
		if err != nil {
			return errorResponse(err)
		}
		return &Response{Kind: RespTableList, Tables: names}

	case ReqGetTable:
		t, err := s.GetTable(ctx, req.Table)
		if err != nil {
			return errorResponse(err)
		}
		return &Response{Kind: RespTableSchema, Schema: t}

	case ReqStatus:
		st := s.GetStatus()
		return &Response{Kind: RespStatus, Status: &st}

	default:
		return errorResponse(errs.Internalf("session: unknown request kind %q", req.Kind))
	}
}

func errorResponse(err error) *Response {
	kind := "Internal"
	if ce, ok := err.(*errs.Error); ok {
		kind = ce.Kind.String()
	}
	return &Response{Kind: RespError, ErrorKind: kind, ErrorMessage: err.Error()}
}
