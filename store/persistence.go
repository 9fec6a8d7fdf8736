package store

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"hash/crc32"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/hashicorp/go-memdb"

	"github.com/kprime/fixengine/fixerr"
	"github.com/kprime/fixengine/message"
)

// fileRecord is the structured record spec §4.2/§6 describes: nextSeq,
// the process-wide version high-water mark, and the seqNum -> stored
// message map. Messages are kept as their already-encoded wire bytes
// (spec §6: "the raw message bytes round-trip exactly through the
// codec") rather than re-derived from the Message struct, so recovery
// never has to guess which BeginString or field order produced them.
type fileRecord struct {
	NextSeq     int
	VersionHigh uint64
	Messages    map[int]storedRecord
}

type storedRecord struct {
	Raw     []byte
	Version uint64
}

func sessionFilePath(dir, sessionID string) string {
	safe := strings.NewReplacer("/", "_", "\\", "_").Replace(sessionID)
	return filepath.Join(dir, safe)
}

// flush serializes l's current committed state and writes it
// atomically-by-rename (spec §4.2 "Persistence"). A no-op when the Store
// has no backing directory (in-memory mode, used by tests).
func (s *Store) flush(sessionID string, l *sessionLog) error {
	return s.flushRecords(sessionID, l, l.snapshot())
}

// flushUncommitted serializes the state txn would produce, without
// committing txn — callers use this to validate a pending write
// transaction lands safely on disk before exposing it to readers.
func (s *Store) flushUncommitted(sessionID string, l *sessionLog, txn *memdb.Txn) error {
	it, err := txn.Get(messagesTable, "id")
	if err != nil {
		return fixerr.Wrap(fixerr.KindStore, "scan uncommitted state", err)
	}
	var recs []record
	for raw := it.Next(); raw != nil; raw = it.Next() {
		recs = append(recs, *raw.(*record))
	}
	return s.flushRecords(sessionID, l, recs)
}

func (s *Store) flushRecords(sessionID string, l *sessionLog, recs []record) error {
	if l.path == "" {
		return nil
	}

	rec := fileRecord{
		NextSeq:     l.nextSeq,
		VersionHigh: atomic.LoadUint64(&s.version),
		Messages:    make(map[int]storedRecord, len(recs)),
	}
	for _, r := range recs {
		raw, err := message.Encode(r.Msg)
		if err != nil {
			return fixerr.Wrap(fixerr.KindStore, "encode message for persistence", err)
		}
		rec.Messages[r.SeqNum] = storedRecord{Raw: raw, Version: r.Version}
	}

	var payload bytes.Buffer
	if err := gob.NewEncoder(&payload).Encode(rec); err != nil {
		return fixerr.Wrap(fixerr.KindStore, "gob encode", err)
	}
	sum := crc32.ChecksumIEEE(payload.Bytes())

	var out bytes.Buffer
	out.Write(payload.Bytes())
	var sumBytes [4]byte
	binary.BigEndian.PutUint32(sumBytes[:], sum)
	out.Write(sumBytes[:])

	tmp := l.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fixerr.Wrap(fixerr.KindIO, "open temp file", err)
	}
	if _, err := f.Write(out.Bytes()); err != nil {
		f.Close()
		return fixerr.Wrap(fixerr.KindIO, "write temp file", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fixerr.Wrap(fixerr.KindIO, "fsync temp file", err)
	}
	if err := f.Close(); err != nil {
		return fixerr.Wrap(fixerr.KindIO, "close temp file", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return fixerr.Wrap(fixerr.KindIO, "rename temp file into place", err)
	}
	return nil
}

// recover reads l's backing file, if any, and rebuilds its in-memory
// state. A missing file means an empty session (spec §4.2). A corrupted
// (truncated or mis-checksummed) file fails with Err(Store).
func (s *Store) recover(sessionID string, l *sessionLog) error {
	if l.path == "" {
		return nil
	}
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fixerr.Wrap(fixerr.KindIO, "read session file", err)
	}
	if len(data) < 4 {
		return fixerr.StoreErr("corrupt session file: truncated")
	}
	payload, trailer := data[:len(data)-4], data[len(data)-4:]
	wantSum := binary.BigEndian.Uint32(trailer)
	if crc32.ChecksumIEEE(payload) != wantSum {
		return fixerr.StoreErr("corrupt session file: checksum mismatch")
	}

	var rec fileRecord
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&rec); err != nil {
		return fixerr.Wrap(fixerr.KindStore, "corrupt session file: decode failed", err)
	}

	txn := l.db.Txn(true)
	for seqNum, sr := range rec.Messages {
		msg, _, err := message.Extract(sr.Raw)
		if err != nil {
			txn.Abort()
			return fixerr.Wrap(fixerr.KindStore, "corrupt session file: stored message undecodable", err)
		}
		if err := txn.Insert(messagesTable, &record{SeqNum: seqNum, Msg: msg, Version: sr.Version}); err != nil {
			txn.Abort()
			return fixerr.Wrap(fixerr.KindStore, "corrupt session file: replay failed", err)
		}
	}
	txn.Commit()

	l.nextSeq = rec.NextSeq
	if l.nextSeq == 0 {
		l.nextSeq = 1
	}
	if rec.VersionHigh > atomic.LoadUint64(&s.version) {
		atomic.StoreUint64(&s.version, rec.VersionHigh)
	}
	return nil
}

// Recover rebuilds sessionID's in-memory state from disk, returning the
// first encountered Err(Store)/Err(Io). Unlike logFor's best-effort
// lazy recovery, callers that need a hard startup failure (spec §4.2:
// "the engine surfaces this and refuses to start the affected session")
// should call this explicitly before using the session.
func (s *Store) Recover(sessionID string) error {
	s.mu.Lock()
	l, ok := s.sessions[sessionID]
	if !ok {
		l = newSessionLog()
		if s.dir != "" {
			l.path = sessionFilePath(s.dir, sessionID)
		}
		s.sessions[sessionID] = l
	}
	s.mu.Unlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	return s.recover(sessionID, l)
}
