package store

import (
	"sync/atomic"

	"github.com/kprime/fixengine/fixerr"
	"github.com/kprime/fixengine/message"
)

// transaction buffers writes for a single session until Commit or
// Rollback (spec §3 "Transaction"); only one may be open per session.
type transaction struct {
	baseVersion uint64
	writes      map[int]*message.Message
}

// ErrAlreadyOpen is returned by BeginTx when a transaction is already
// open for the session.
var ErrAlreadyOpen = fixerr.StoreErr("transaction already open")

// BeginTx opens a transaction for sessionID. Transactions are per-session
// and not nested (spec §4.2 "Concurrency").
func (s *Store) BeginTx(sessionID string) error {
	l := s.logFor(sessionID)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pending != nil {
		return ErrAlreadyOpen
	}
	l.pending = &transaction{
		baseVersion: atomic.LoadUint64(&s.version),
		writes:      make(map[int]*message.Message),
	}
	return nil
}

// CommitTx atomically applies buffered writes: each draws a fresh
// monotonic version and is inserted into the session's memdb table inside
// a single write transaction, which is only committed once the resulting
// state has been flushed to disk. If flush fails, the memdb write
// transaction is aborted instead of committed — the live table is left
// untouched and the transaction remains open (spec §4.2).
func (s *Store) CommitTx(sessionID string) error {
	l := s.logFor(sessionID)
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pending == nil {
		return fixerr.StoreErr("commit_tx: no open transaction")
	}

	versions := make(map[int]uint64, len(l.pending.writes))
	for seqNum := range l.pending.writes {
		versions[seqNum] = atomic.AddUint64(&s.version, 1)
	}

	txn := l.db.Txn(true)
	for seqNum, msg := range l.pending.writes {
		if err := txn.Insert(messagesTable, &record{SeqNum: seqNum, Msg: msg, Version: versions[seqNum]}); err != nil {
			txn.Abort()
			// The version counter advance is not rolled back: it is
			// process-wide and allowed to skip values on a failed
			// commit, since spec only requires monotonicity, not
			// density.
			return fixerr.Wrap(fixerr.KindStore, "commit_tx: insert", err)
		}
	}

	// flushUncommitted serializes the table as it would look after
	// txn lands, without making that state visible to other readers
	// yet — so a failed flush can abort txn and leave everything,
	// including l.pending, untouched.
	if err := s.flushUncommitted(sessionID, l, txn); err != nil {
		txn.Abort()
		return fixerr.Wrap(fixerr.KindStore, "commit_tx: flush failed", err)
	}

	txn.Commit()
	l.pending = nil
	s.reportGauges(sessionID, l)
	return nil
}

// RollbackTx discards the buffered writes.
func (s *Store) RollbackTx(sessionID string) error {
	l := s.logFor(sessionID)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pending == nil {
		return fixerr.StoreErr("rollback_tx: no open transaction")
	}
	l.pending = nil
	return nil
}
