package paramstore

import (
	"bytes"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"paramstore/nvram"
)

func TestSerializeEmpty(t *testing.T) {
	st, _ := newTestStore(t)

	buf := make([]byte, 16)
	n, err := st.Serialize(buf)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, byte(0), buf[0])
}

func TestSerializeFormat(t *testing.T) {
	st, _ := newTestStore(t)

	require.NoError(t, st.Set("k", []byte{0xDE, 0xAD}))

	buf := make([]byte, 32)
	n, err := st.Serialize(buf)
	require.NoError(t, err)
	require.Equal(t, []byte("k=DEAD\n\x00"), buf[:n])
}

func TestSerializeBufferTooSmall(t *testing.T) {
	st, _ := newTestStore(t)

	require.NoError(t, st.Set("k", []byte{0xDE, 0xAD}))

	_, err := st.Serialize(make([]byte, 3))
	require.Equal(t, ErrBufferTooSmall, err)

	// An exact fit is rejected too; the buffer must exceed the output.
	_, err = st.Serialize(make([]byte, 8))
	require.Equal(t, ErrBufferTooSmall, err)

	n, err := st.Serialize(make([]byte, 9))
	require.NoError(t, err)
	require.Equal(t, 8, n)
}

func TestSerializeRoundTrip(t *testing.T) {
	st, _ := newTestStore(t)
	rng := rand.New(rand.NewSource(7))

	values := make(map[string][]byte)
	for i := 0; i < 20; i++ {
		key := fmt.Sprintf("key%02d", i)
		value := make([]byte, 1+rng.Intn(16))
		rng.Read(value)
		values[key] = value
		require.NoError(t, st.Set(key, value))
	}

	buf := make([]byte, 1500)
	n, err := st.Serialize(buf)
	require.NoError(t, err)
	require.Equal(t, n-1, bytes.IndexByte(buf, 0)) // NUL is the last written byte
	require.Equal(t, byte(0), buf[n-1])

	fresh, _ := newTestStore(t)
	require.NoError(t, fresh.Deserialize(buf[:n]))

	for key, value := range values {
		got := make([]byte, len(value))
		require.NoError(t, fresh.Get(key, got), "key %s", key)
		require.Equal(t, value, got, "key %s", key)
	}
	walkEntries(t, fresh, nil)
}

func TestDeserializeClearsStore(t *testing.T) {
	st, _ := newTestStore(t)

	require.NoError(t, st.Set("stale", []byte{1, 2, 3}))
	require.NoError(t, st.Deserialize([]byte("fresh=0102\n\x00")))

	require.Equal(t, ErrKeyNotFound, st.Get("stale", make([]byte, 3)))

	got := make([]byte, 2)
	require.NoError(t, st.Get("fresh", got))
	require.Equal(t, []byte{1, 2}, got)
}

func TestDeserializeFinalLineWithoutNewline(t *testing.T) {
	st, _ := newTestStore(t)

	require.NoError(t, st.Deserialize([]byte("a=01\nb=02")))

	got := make([]byte, 1)
	require.NoError(t, st.Get("a", got))
	require.Equal(t, []byte{0x01}, got)
	require.NoError(t, st.Get("b", got))
	require.Equal(t, []byte{0x02}, got)
}

func TestDeserializeLowercaseHex(t *testing.T) {
	st, _ := newTestStore(t)

	require.NoError(t, st.Deserialize([]byte("k=dead\n")))

	got := make([]byte, 2)
	require.NoError(t, st.Get("k", got))
	require.Equal(t, []byte{0xDE, 0xAD}, got)
}

func TestDeserializeMalformed(t *testing.T) {
	st, _ := newTestStore(t)

	// Odd digit count fails the line; later lines still load.
	require.Equal(t, ErrBadSerialization, st.Deserialize([]byte("a=0\nb=02\n")))
	got := make([]byte, 1)
	require.Equal(t, ErrKeyNotFound, st.Get("a", got))
	require.NoError(t, st.Get("b", got))
	require.Equal(t, []byte{0x02}, got)

	// No separator.
	require.Equal(t, ErrBadSerialization, st.Deserialize([]byte("nonsense\n")))

	// Key longer than the eight-byte name field.
	require.Equal(t, ErrBadSerialization, st.Deserialize([]byte("ninechars=00\n")))
}

func TestSerializeSkipsTombstones(t *testing.T) {
	st, _ := newTestStore(t)

	require.NoError(t, st.Set("k", []byte{0x01}))
	require.NoError(t, st.Set("k", []byte{0x02}))

	buf := make([]byte, 32)
	n, err := st.Serialize(buf)
	require.NoError(t, err)
	require.Equal(t, []byte("k=02\n\x00"), buf[:n])
}

func TestDeserializeRAMImagePortability(t *testing.T) {
	// A serialized dump loads into a store on a different medium.
	st, _ := newTestStore(t)
	require.NoError(t, st.SetUint32("answer", 42))

	buf := make([]byte, 64)
	n, err := st.Serialize(buf)
	require.NoError(t, err)

	other := New(nvram.NewDevice(nvram.NewRAM(1024)))
	require.NoError(t, other.Begin())
	require.NoError(t, other.Deserialize(buf[:n]))

	value, err := other.GetUint32("answer")
	require.NoError(t, err)
	require.Equal(t, uint32(42), value)
}
