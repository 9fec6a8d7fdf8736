package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kprime/fixengine/message"
)

func testMsg(t *testing.T, clOrdID string) *message.Message {
	t.Helper()
	m := message.New("D")
	m.Set(message.TagBeginString, "FIX.4.2")
	m.Set(11, clOrdID)
	return m
}

func TestNextSeqIncrementsFromOne(t *testing.T) {
	s := New()
	assert.Equal(t, 1, s.NextSeq("S1"))
	assert.Equal(t, 2, s.NextSeq("S1"))
	assert.Equal(t, 3, s.NextSeq("S1"))
	assert.Equal(t, 1, s.NextSeq("S2"))
}

func TestStoreAndGet(t *testing.T) {
	s := New()
	msg := testMsg(t, "abc")
	require.NoError(t, s.Store("S1", 1, msg))

	got, version, ok := s.Get("S1", 1)
	require.True(t, ok)
	assert.True(t, version > 0)
	v, _ := got.Get(11)
	assert.Equal(t, "abc", v)
}

func TestStoreOverwriteBumpsVersion(t *testing.T) {
	s := New()
	require.NoError(t, s.Store("S1", 1, testMsg(t, "a")))
	_, v1, _ := s.Get("S1", 1)

	require.NoError(t, s.Store("S1", 1, testMsg(t, "b")))
	_, v2, _ := s.Get("S1", 1)

	assert.Greater(t, v2, v1)
}

func TestGetRangeSkipsGaps(t *testing.T) {
	s := New()
	require.NoError(t, s.Store("S1", 2, testMsg(t, "two")))
	require.NoError(t, s.Store("S1", 3, testMsg(t, "three")))
	require.NoError(t, s.Store("S1", 5, testMsg(t, "five")))

	got := s.GetRange("S1", 1, 5)
	require.Len(t, got, 3)
	assert.Equal(t, 2, got[0].SeqNum)
	assert.Equal(t, 3, got[1].SeqNum)
	assert.Equal(t, 5, got[2].SeqNum)
}

func TestResetSeqClearsStoreAndSeq(t *testing.T) {
	s := New()
	s.NextSeq("S1")
	s.NextSeq("S1")
	require.NoError(t, s.Store("S1", 1, testMsg(t, "a")))

	require.NoError(t, s.ResetSeq("S1"))

	assert.Equal(t, 1, s.PeekNextSeq("S1"))
	assert.Empty(t, s.GetRange("S1", 1, 100))
}

func TestTransactionCommitIsAtomic(t *testing.T) {
	s := New()
	require.NoError(t, s.BeginTx("S1"))
	require.NoError(t, s.Store("S1", 10, testMsg(t, "ten")))
	require.NoError(t, s.Store("S1", 11, testMsg(t, "eleven")))

	// Not visible before commit.
	_, _, ok := s.Get("S1", 10)
	assert.False(t, ok)

	require.NoError(t, s.CommitTx("S1"))

	_, _, ok = s.Get("S1", 10)
	assert.True(t, ok)
	_, _, ok = s.Get("S1", 11)
	assert.True(t, ok)
}

func TestTransactionRollbackDiscardsWrites(t *testing.T) {
	s := New()
	require.NoError(t, s.BeginTx("S1"))
	require.NoError(t, s.Store("S1", 10, testMsg(t, "ten")))
	require.NoError(t, s.Store("S1", 11, testMsg(t, "eleven")))

	require.NoError(t, s.RollbackTx("S1"))

	_, _, ok := s.Get("S1", 10)
	assert.False(t, ok)
	_, _, ok = s.Get("S1", 11)
	assert.False(t, ok)
}

func TestBeginTxTwiceFails(t *testing.T) {
	s := New()
	require.NoError(t, s.BeginTx("S1"))
	err := s.BeginTx("S1")
	assert.ErrorIs(t, err, ErrAlreadyOpen)
}

func TestCrashRecoveryRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s1 := New(WithDirectory(dir))
	require.NoError(t, s1.Store("S1", 7, testMsg(t, "seven")))
	_, v1, _ := s1.Get("S1", 7)

	// Simulate a process restart with a fresh Store instance over the
	// same directory.
	s2 := New(WithDirectory(dir))
	require.NoError(t, s2.Recover("S1"))

	got, v2, ok := s2.Get("S1", 7)
	require.True(t, ok)
	assert.GreaterOrEqual(t, v2, v1)
	v, _ := got.Get(11)
	assert.Equal(t, "seven", v)
}

func TestCorruptSessionFileFailsOpen(t *testing.T) {
	dir := t.TempDir()
	s := New(WithDirectory(dir))
	require.NoError(t, s.Store("S1", 1, testMsg(t, "a")))

	path := sessionFilePath(dir, "S1")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)-1] ^= 0xFF // corrupt the CRC trailer
	require.NoError(t, os.WriteFile(path, data, 0o644))

	s2 := New(WithDirectory(dir))
	err = s2.Recover("S1")
	assert.Error(t, err)
}

func TestAtomicRenameLeavesNoPartialFile(t *testing.T) {
	dir := t.TempDir()
	s := New(WithDirectory(dir))
	require.NoError(t, s.Store("S1", 1, testMsg(t, "a")))

	_, err := os.Stat(filepath.Join(dir, "S1.tmp"))
	assert.True(t, os.IsNotExist(err))
}
