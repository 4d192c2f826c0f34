package persist

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/respack/internal/compress"
	"github.com/conduit-lang/respack/internal/value"
)

func roundTrip(t *testing.T, v value.Value, opts ...Option) value.Value {
	t.Helper()
	data, err := Marshal(v)
	require.NoError(t, err)
	assert.Zero(t, len(data)%4, "encoded size must be 4-byte aligned")

	out, err := Unmarshal(data, opts...)
	require.NoError(t, err)
	return out
}

func TestRoundTrip_AllKinds(t *testing.T) {
	values := map[string]value.Value{
		"bool":   value.NewBool(true),
		"int":    value.NewInt(-123456789),
		"float":  value.NewFloat(1.25),
		"double": value.NewDouble(3.14159),
		"fixed":  value.NewFixed(-2.5),
		"string": value.NewString("héllo"),
		"empty":  value.NewString(""),
		"bytes":  value.NewBytes([]byte{1, 2, 3, 4, 5}),
		"point":  value.Point{X: 1, Y: -2},
		"rect":   value.Rect{X: 0, Y: 1, W: 2, H: 3},
		"uuid":   value.NewUUID(uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")),
		"ref":    value.NewRef("textures/hero", nil),
		"vector": value.Vector{value.NewInt(1), value.NewString("two"), value.Vector{}},
	}

	for name, v := range values {
		t.Run(name, func(t *testing.T) {
			out := roundTrip(t, v)
			assert.True(t, value.Equal(v, out), "got %v want %v", out, v)
		})
	}
}

func TestRoundTrip_NestedDict(t *testing.T) {
	inner := value.DictOf(map[string]value.Value{
		"list": value.Vector{value.NewInt(1), value.DictOf(map[string]value.Value{"deep": value.NewBool(false)})},
	})
	root := value.DictOf(map[string]value.Value{
		"inner": inner,
		"name":  value.NewString("root"),
	})

	out := roundTrip(t, root)
	assert.True(t, value.Equal(root, out))
}

func TestRoundTrip_Blobs(t *testing.T) {
	codec := compress.NewZstd(2)
	payload := bytes.Repeat([]byte("respack "), 64)

	for _, compressed := range []bool{true, false} {
		b, err := value.NewBlob(payload, codec, compressed)
		require.NoError(t, err)

		out := roundTrip(t, b, WithCodec(codec))
		ob, ok := out.(*value.Blob)
		require.True(t, ok)
		assert.Equal(t, compressed, ob.Compressed())
		assert.True(t, value.Equal(b, ob))

		data, err := ob.Bytes()
		require.NoError(t, err)
		assert.Equal(t, payload, data)
	}
}

func TestRoundTrip_DictBlob(t *testing.T) {
	codec := compress.NewZstd(1)
	d := value.DictOf(map[string]value.Value{"a": value.NewInt(1)})

	for _, compressed := range []bool{true, false} {
		b, err := EncodeDictBlob(d, codec, compressed)
		require.NoError(t, err)

		out := roundTrip(t, b, WithCodec(codec))
		got, ok := value.AsDict(out)
		require.True(t, ok)
		assert.True(t, value.Equal(d, got))
	}
}

func TestEncode_Deterministic(t *testing.T) {
	a := value.NewDict()
	a.Put("z", value.NewInt(1))
	a.Put("a", value.NewInt(2))
	b := value.NewDict()
	b.Put("a", value.NewInt(2))
	b.Put("z", value.NewInt(1))

	da, err := Marshal(a)
	require.NoError(t, err)
	db, err := Marshal(b)
	require.NoError(t, err)
	assert.Equal(t, da, db)
}

func TestDecode_UnknownKind(t *testing.T) {
	data := make([]byte, 8)
	binary.LittleEndian.PutUint32(data, 0xdeadbeef)

	_, err := Unmarshal(data)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownKind)

	var fe *FormatError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, int64(0), fe.Offset)
}

func TestDecode_Truncated(t *testing.T) {
	data, err := Marshal(value.NewString("a longer string value"))
	require.NoError(t, err)

	_, err = Unmarshal(data[:len(data)-6])
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestEncode_Unsupported(t *testing.T) {
	_, err := Marshal(nil)
	assert.ErrorIs(t, err, ErrUnsupportedKind)
}

func buildPack(t *testing.T, codec compress.Codec) ([]byte, map[string]*value.Dict) {
	t.Helper()
	sources := map[string]*value.Dict{
		"alpha": value.DictOf(map[string]value.Value{"n": value.NewInt(1)}),
		"beta":  value.DictOf(map[string]value.Value{"s": value.NewString("two")}),
	}
	var blobs []NamedBlob
	for _, name := range []string{"alpha", "beta"} {
		b, err := EncodeDictBlob(sources[name], codec, name == "alpha")
		require.NoError(t, err)
		blobs = append(blobs, NamedBlob{Name: name, Blob: b})
	}
	meta := value.DictOf(map[string]value.Value{"built_at": value.NewInt(99)})

	var buf bytes.Buffer
	require.NoError(t, WritePack(&buf, blobs, meta))
	return buf.Bytes(), sources
}

func TestPack_RoundTrip(t *testing.T) {
	codec := compress.NewZstd(1)
	data, sources := buildPack(t, codec)

	for name, read := range map[string]func() (*Pack, error){
		"streamed": func() (*Pack, error) { return ReadPack(bytes.NewReader(data), codec, nil, 0) },
		"deferred": func() (*Pack, error) { return ReadPackBytes(data, codec) },
	} {
		t.Run(name, func(t *testing.T) {
			pack, err := read()
			require.NoError(t, err)
			require.Len(t, pack.Entries, 2)

			built, _ := pack.Meta.Lookup("built_at")
			assert.Equal(t, value.Int(99), built)

			for resName, want := range sources {
				b, ok := pack.Blobs[resName]
				require.True(t, ok)
				got, err := b.Dict()
				require.NoError(t, err)
				assert.True(t, value.Equal(want, got))
			}
			assert.True(t, pack.Blobs["alpha"].Compressed())
			assert.False(t, pack.Blobs["beta"].Compressed())
		})
	}
}

func TestPack_Invalid(t *testing.T) {
	codec := compress.Identity{}
	data, _ := buildPack(t, codec)

	_, err := ReadPackBytes([]byte{1, 2, 3, 4}, codec)
	assert.ErrorIs(t, err, ErrBadCookie)

	_, err = ReadPack(bytes.NewReader(data[:len(data)-3]), codec, nil, 0)
	assert.ErrorIs(t, err, ErrTruncated)

	_, err = ReadPackBytes(data[:len(data)-3], codec)
	assert.ErrorIs(t, err, ErrTruncated)

	// an entry whose offset would wrap past the data section
	var buf bytes.Buffer
	e := NewEncoder(&buf)
	require.NoError(t, e.WriteU32(PackCookie))
	require.NoError(t, e.WriteU32(1))
	require.NoError(t, e.WriteString("x"))
	require.NoError(t, e.WriteU64(math.MaxInt64-10))
	require.NoError(t, e.WriteU32(100))
	require.NoError(t, e.WriteU32(100))
	require.NoError(t, e.WriteU32(0))
	require.NoError(t, e.Encode(value.NewDict()))
	require.NoError(t, e.WriteU64(4))
	require.NoError(t, e.write([]byte{1, 2, 3, 4}))

	_, err = ReadPack(bytes.NewReader(buf.Bytes()), codec, nil, 0)
	assert.ErrorIs(t, err, ErrTruncated)
	_, err = ReadPackBytes(buf.Bytes(), codec)
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestDictBlob_NestedBlobsStayDeferred(t *testing.T) {
	codec := compress.NewZstd(1)
	payload := bytes.Repeat([]byte("frame"), 40)
	inner, err := value.NewBlob(payload, codec, true)
	require.NoError(t, err)

	for _, compressed := range []bool{false, true} {
		outer, err := EncodeDictBlob(value.DictOf(map[string]value.Value{
			"data": inner,
			"name": value.NewString("sheet"),
		}), codec, compressed)
		require.NoError(t, err)

		d, err := outer.Dict()
		require.NoError(t, err)
		v, ok := d.Lookup("data")
		require.True(t, ok)
		b, ok := v.(*value.Blob)
		require.True(t, ok)
		assert.True(t, b.Deferred())
		assert.True(t, b.Compressed())

		got, err := b.Bytes()
		require.NoError(t, err)
		assert.Equal(t, payload, got)
		assert.True(t, inner.Equal(b))
	}
}

func TestDecode_DeferredBlobTruncated(t *testing.T) {
	b, err := value.NewBlob(bytes.Repeat([]byte{7}, 32), nil, false)
	require.NoError(t, err)
	data, err := Marshal(value.DictOf(map[string]value.Value{"b": b}))
	require.NoError(t, err)

	short := data[:len(data)-8]
	_, err = Unmarshal(short, WithReaderAt(bytes.NewReader(short), 0))
	assert.ErrorIs(t, err, ErrTruncated)
}
