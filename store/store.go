// Package store implements the per-session, per-sequence-number
// transactional message log of spec §4.2 (component C2): optimistic
// versioning, all-or-nothing transactions, and crash-durable persistence
// via write-temp-then-rename.
//
// Each session's log is backed by its own github.com/hashicorp/go-memdb
// table (the same MVCC in-memory database the gateway's pkg/memdb wraps):
// writes go through a memdb.Txn, reads through a snapshot Txn, and commit
// or abort gives the all-or-nothing semantics spec §4.2 calls for natively,
// rather than reimplementing them over a bare map.
package store

import (
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-memdb"

	"github.com/kprime/fixengine/fixerr"
	"github.com/kprime/fixengine/internal/metrics"
	"github.com/kprime/fixengine/message"
)

const messagesTable = "messages"

// tableSchema describes the single-table, single-index memdb database
// backing one session's log: messages are keyed uniquely by SeqNum.
var tableSchema = &memdb.DBSchema{
	Tables: map[string]*memdb.TableSchema{
		messagesTable: {
			Name: messagesTable,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.IntFieldIndex{Field: "SeqNum"},
				},
			},
		},
	},
}

// record is the memdb row type: one stored message at its optimistic
// version (spec §4.2 "Versioning").
type record struct {
	SeqNum  int
	Msg     *message.Message
	Version uint64
}

// StoredMessage is the (Message, seqNum, version) triple of spec §3.
type StoredMessage struct {
	Message *message.Message
	SeqNum  int
	Version uint64
}

type sessionLog struct {
	mu      sync.Mutex
	nextSeq int
	db      *memdb.MemDB
	pending *transaction // open, uncommitted exposed transaction; nil when none
	path    string       // empty when running without a persistence directory
}

// Store owns every session's append-only log plus the process-wide
// version counter (spec §4.2 "Versioning").
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*sessionLog
	version  uint64 // atomic
	dir      string
	metrics  *metrics.Registry
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithDirectory enables file persistence under dir, one file per
// SessionId (spec §6 "Persistent store layout"). Without this option the
// Store is purely in-memory, which is adequate for tests.
func WithDirectory(dir string) Option {
	return func(s *Store) { s.dir = dir }
}

// WithMetrics registers per-session gauges on reg.
func WithMetrics(reg *metrics.Registry) Option {
	return func(s *Store) { s.metrics = reg }
}

func New(opts ...Option) *Store {
	s := &Store{sessions: make(map[string]*sessionLog)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newSessionLog() *sessionLog {
	db, err := memdb.NewMemDB(tableSchema)
	if err != nil {
		// tableSchema is a static, hand-validated schema; NewMemDB only
		// fails on a malformed schema, which would be a programming bug.
		panic("store: invalid message table schema: " + err.Error())
	}
	return &sessionLog{nextSeq: 1, db: db}
}

func (s *Store) logFor(sessionID string) *sessionLog {
	s.mu.RLock()
	l, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if ok {
		return l
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok = s.sessions[sessionID]; ok {
		return l
	}
	l = newSessionLog()
	if s.dir != "" {
		l.path = sessionFilePath(s.dir, sessionID)
	}
	if err := s.recover(sessionID, l); err != nil {
		// logFor discards the recovery error and continues with whatever
		// was replayed; only Recover returns it to the caller.
		_ = err
	}
	s.sessions[sessionID] = l
	return l
}

// snapshot returns every currently committed record, ordered by SeqNum.
func (l *sessionLog) snapshot() []record {
	txn := l.db.Txn(false)
	it, err := txn.Get(messagesTable, "id")
	if err != nil {
		return nil
	}
	var out []record
	for raw := it.Next(); raw != nil; raw = it.Next() {
		out = append(out, *raw.(*record))
	}
	return out
}

func (l *sessionLog) get(seqNum int) (record, bool) {
	txn := l.db.Txn(false)
	raw, err := txn.First(messagesTable, "id", seqNum)
	if err != nil || raw == nil {
		return record{}, false
	}
	return *raw.(*record), true
}

// NextSeq returns the next outbound sequence number and increments it
// atomically (spec §4.2). Starts at 1.
func (s *Store) NextSeq(sessionID string) int {
	l := s.logFor(sessionID)
	l.mu.Lock()
	defer l.mu.Unlock()
	n := l.nextSeq
	l.nextSeq++
	s.reportGauges(sessionID, l)
	return n
}

// PeekNextSeq returns the next outbound sequence number without
// incrementing it.
func (s *Store) PeekNextSeq(sessionID string) int {
	l := s.logFor(sessionID)
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nextSeq
}

// ResetSeq sets the next sequence number back to 1 and deletes all
// StoredMessages for sessionID (spec §4.2, invariant 7).
func (s *Store) ResetSeq(sessionID string) error {
	l := s.logFor(sessionID)
	l.mu.Lock()
	defer l.mu.Unlock()

	txn := l.db.Txn(true)
	it, err := txn.Get(messagesTable, "id")
	if err != nil {
		txn.Abort()
		return fixerr.Wrap(fixerr.KindStore, "reset_seq: scan", err)
	}
	var stale []interface{}
	for raw := it.Next(); raw != nil; raw = it.Next() {
		stale = append(stale, raw)
	}
	for _, raw := range stale {
		if err := txn.Delete(messagesTable, raw); err != nil {
			txn.Abort()
			return fixerr.Wrap(fixerr.KindStore, "reset_seq: delete", err)
		}
	}
	txn.Commit()

	l.nextSeq = 1
	if err := s.flush(sessionID, l); err != nil {
		return fixerr.Wrap(fixerr.KindStore, "reset_seq: flush failed", err)
	}
	s.reportGauges(sessionID, l)
	return nil
}

// Get returns the stored message at seqNum, if any.
func (s *Store) Get(sessionID string, seqNum int) (*message.Message, uint64, bool) {
	l := s.logFor(sessionID)
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.get(seqNum)
	if !ok {
		return nil, 0, false
	}
	return r.Msg, r.Version, true
}

// GetRange returns stored messages with seqNum in [from, to], inclusive;
// gaps are simply absent (spec §4.2).
func (s *Store) GetRange(sessionID string, from, to int) []StoredMessage {
	l := s.logFor(sessionID)
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []StoredMessage
	for n := from; n <= to; n++ {
		if r, ok := l.get(n); ok {
			out = append(out, StoredMessage{Message: r.Msg, SeqNum: n, Version: r.Version})
		}
	}
	return out
}

// Store writes (seqNum, msg): inside a transaction it buffers, outside it
// writes immediately with a fresh version (spec §4.2).
func (s *Store) Store(sessionID string, seqNum int, msg *message.Message) error {
	l := s.logFor(sessionID)
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pending != nil {
		l.pending.writes[seqNum] = msg
		return nil
	}

	version := atomic.AddUint64(&s.version, 1)
	txn := l.db.Txn(true)
	if err := txn.Insert(messagesTable, &record{SeqNum: seqNum, Msg: msg, Version: version}); err != nil {
		txn.Abort()
		return fixerr.Wrap(fixerr.KindStore, "store: insert", err)
	}
	txn.Commit()

	if err := s.flush(sessionID, l); err != nil {
		return fixerr.Wrap(fixerr.KindStore, "store: flush failed", err)
	}
	s.reportGauges(sessionID, l)
	return nil
}

func (s *Store) reportGauges(sessionID string, l *sessionLog) {
	if s.metrics == nil {
		return
	}
	s.metrics.SetStoreNextSeq(sessionID, l.nextSeq)
	s.metrics.SetStoreMessageCount(sessionID, len(l.snapshot()))
}
