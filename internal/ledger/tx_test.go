package ledger

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"

	"github.com/agentoven/agentmarket/internal/store"
)

func newLevelStore(t *testing.T) store.Store {
	t.Helper()
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	require.NoError(t, err)
	s := store.NewLevelDB(db)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestTxSnapshotRevert(t *testing.T) {
	tx := newTx(newLevelStore(t))
	tx.Put([]byte("a"), []byte("1"))
	snap := tx.Snapshot()
	tx.Put([]byte("a"), []byte("2"))
	tx.Put([]byte("b"), []byte("3"))
	tx.Delete([]byte("a"))

	_, ok, err := tx.Get([]byte("a"))
	require.NoError(t, err)
	require.False(t, ok)

	tx.RevertToSnapshot(snap)
	v, ok, err := tx.Get([]byte("a"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1", string(v))
	_, ok, _ = tx.Get([]byte("b"))
	require.False(t, ok)
}

func TestTxIterateMergesPendingWrites(t *testing.T) {
	base := newLevelStore(t)
	b := base.NewBatch()
	b.Put([]byte("k/1"), []byte("base1"))
	b.Put([]byte("k/2"), []byte("base2"))
	b.Put([]byte("other"), []byte("x"))
	require.NoError(t, b.Write())

	tx := newTx(base)
	tx.Delete([]byte("k/1"))
	tx.Put([]byte("k/3"), []byte("new3"))
	tx.Put([]byte("k/2"), []byte("over2"))

	var got []string
	require.NoError(t, tx.Iterate([]byte("k/"), func(k, v []byte) bool {
		got = append(got, string(k)+"="+string(v))
		return true
	}))
	require.Equal(t, []string{"k/2=over2", "k/3=new3"}, got)

	require.NoError(t, tx.Commit())
	_, err := base.Get([]byte("k/1"))
	require.True(t, store.IsNotFound(err))
	v, err := base.Get([]byte("k/3"))
	require.NoError(t, err)
	require.Equal(t, "new3", string(v))
}

func TestMapperNamespacesAndEach(t *testing.T) {
	tx := newTx(newLevelStore(t))
	a := newStorage(tx, AddressFromSeed("a"))
	b := newStorage(tx, AddressFromSeed("b"))

	scores := NewMapper[uint64]("score")
	names := NewMapper[string]("scoreNames")
	require.NoError(t, scores.Set(a, 7, U64(1)))
	require.NoError(t, scores.Set(a, 9, U64(2)))
	require.NoError(t, names.Set(a, "x", U64(1)))
	require.NoError(t, scores.Set(b, 100, U64(1)))

	var seen []uint64
	require.NoError(t, scores.Each(a, func(rest []byte, v uint64) bool {
		require.Len(t, rest, 8)
		seen = append(seen, v)
		return true
	}))
	require.Equal(t, []uint64{7, 9}, seen)

	v, ok, err := scores.Get(b, U64(1))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(100), v)
}

func TestAddressRoundTrip(t *testing.T) {
	a := AddressFromSeed("alice")
	parsed, err := ParseAddress(a.Hex())
	require.NoError(t, err)
	require.Equal(t, a, parsed)
	require.NotEqual(t, DeriveAddress(a, "x"), DeriveAddress(a, "y"))

	_, err = ParseAddress("0x1234")
	require.Error(t, err)
}

func TestKindOfReportsCrossProgramAbsence(t *testing.T) {
	notFound := NewError(KindNotFound, "Job not found")
	require.Equal(t, KindNotFound, KindOf(notFound))
	require.Equal(t, KindNotCoLocated, KindOf(fmt.Errorf("%w: %w", notFound, ErrNotCoLocated)))
	require.Equal(t, KindNotFound, KindOf(fmt.Errorf("%w: %w", notFound, ErrUnknownProgram)))
	require.Equal(t, KindInternal, KindOf(errors.New("disk")))
}
