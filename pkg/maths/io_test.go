package maths

import (
	"bytes"
	"encoding/binary"
	"runtime"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// allocated 返回 fn 执行期间累计分配的字节数
func allocated(fn func()) uint64 {
	var before, after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)
	fn()
	runtime.ReadMemStats(&after)
	return after.TotalAlloc - before.TotalAlloc
}

func TestVectorReadHugeLengthHeader(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint64(1<<30)))

	var err error
	bytesAllocated := allocated(func() {
		var got Vector[float64]
		_, err = got.ReadFrom(bytes.NewReader(buf.Bytes()))
	})
	assert.True(t, errors.Is(err, ErrIO))
	assert.Less(t, bytesAllocated, uint64(16<<20))
}

func TestMatrixReadHugeDimensions(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, [2]uint64{1 << 15, 1 << 15}))
	// 只有一行数据
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, make([]float64, 1<<15)))

	var err error
	bytesAllocated := allocated(func() {
		var got Matrix[float64]
		_, err = got.ReadFrom(bytes.NewReader(buf.Bytes()))
	})
	assert.True(t, errors.Is(err, ErrIO))
	assert.Less(t, bytesAllocated, uint64(16<<20))
}

func TestVectorReadSpansChunks(t *testing.T) {
	v := NewVector[float32](3*readChunk + 7)
	for i := 0; i < v.Len(); i++ {
		v.Set(i, float32(i))
	}
	var buf bytes.Buffer
	_, err := v.WriteTo(&buf)
	require.NoError(t, err)
	size := buf.Len()

	var got Vector[float32]
	n, err := got.ReadFrom(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(size), n)
	assert.True(t, v.Equal(&got))
}
