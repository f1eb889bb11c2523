package serialization

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/chainmlp/internal/tensor"
)

func raw32(t *testing.T, data []float32, shape ...int) *tensor.RawTensor {
	t.Helper()
	r, err := tensor.NewRaw(tensor.Shape(shape), tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	copy(r.AsFloat32(), data)
	return r
}

func TestSafeTensorsRoundTrip(t *testing.T) {
	// Values exactly representable in every supported dtype
	weight := raw32(t, []float32{1, -2, 0.5, 0.25, 3, -0.125}, 2, 3)
	bias := raw32(t, []float32{0, 1}, 2)
	meta := map[string]string{"format": "pt", "note": "test"}

	for _, dtype := range []DType{F32, F64, F16, BF16} {
		t.Run(string(dtype), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "w.safetensors")
			require.NoError(t, WriteSafeTensors(path, map[string]*tensor.RawTensor{
				"layer.weight": weight,
				"layer.bias":   bias,
			}, meta, dtype))

			r, err := OpenSafeTensors(path)
			require.NoError(t, err)
			defer r.Close()

			for k, v := range meta {
				assert.Equal(t, v, r.Metadata()[k])
			}
			assert.Len(t, r.Metadata(), len(meta)+1)
			require.NoError(t, r.VerifyChecksum())
			assert.Equal(t, []string{"layer.bias", "layer.weight"}, r.TensorNames())

			info, err := r.TensorInfo("layer.weight")
			require.NoError(t, err)
			assert.Equal(t, dtype, info.DType)
			assert.Equal(t, []int{2, 3}, info.Shape)

			all, err := r.LoadAll()
			require.NoError(t, err)
			require.Len(t, all, 2)

			got := ToFloat32(all["layer.weight"])
			assert.Equal(t, tensor.Shape{2, 3}, got.Shape())
			assert.Equal(t, weight.AsFloat32(), got.AsFloat32())
			assert.Equal(t, bias.AsFloat32(), ToFloat32(all["layer.bias"]).AsFloat32())
		})
	}
}

func TestSafeTensorsHalfPrecisionRounds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "w.safetensors")
	require.NoError(t, WriteSafeTensors(path, map[string]*tensor.RawTensor{
		"x": raw32(t, []float32{0.1}, 1),
	}, nil, F16))

	r, err := OpenSafeTensors(path)
	require.NoError(t, err)
	defer r.Close()

	x, err := r.LoadTensor("x")
	require.NoError(t, err)
	assert.Equal(t, tensor.Float32, x.DType())
	assert.InDelta(t, 0.1, x.AsFloat32()[0], 1e-4)
	assert.Len(t, r.Metadata(), 1)
	assert.Contains(t, r.Metadata(), ChecksumKey)
}

func TestSafeTensorsMissingTensor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "w.safetensors")
	require.NoError(t, WriteSafeTensors(path, map[string]*tensor.RawTensor{
		"x": raw32(t, []float32{1}, 1),
	}, nil, F32))

	r, err := OpenSafeTensors(path)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.LoadTensor("y")
	assert.True(t, errors.Is(err, ErrTensorNotFound))
}

func TestVerifyChecksum(t *testing.T) {
	path := filepath.Join(t.TempDir(), "w.safetensors")
	require.NoError(t, WriteSafeTensors(path, map[string]*tensor.RawTensor{
		"x": raw32(t, []float32{1, 2, 3}, 3),
	}, nil, F32))

	// Flip a bit in the last data byte
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)-1] ^= 0x01
	require.NoError(t, os.WriteFile(path, data, 0o600))

	r, err := OpenSafeTensors(path)
	require.NoError(t, err)
	defer r.Close()
	assert.True(t, errors.Is(r.VerifyChecksum(), ErrChecksumMismatch))
}

func TestVerifyChecksumAbsent(t *testing.T) {
	path := writeRawFile(t, `{"x":{"dtype":"F32","shape":[1],"data_offsets":[0,4]}}`, make([]byte, 4))

	r, err := OpenSafeTensors(path)
	require.NoError(t, err)
	defer r.Close()
	assert.NoError(t, r.VerifyChecksum())
}

func writeRawFile(t *testing.T, header string, data []byte) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint64(len(header))))
	buf.WriteString(header)
	buf.Write(data)

	path := filepath.Join(t.TempDir(), "bad.safetensors")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	return path
}

func TestOpenSafeTensorsRejectsBadFiles(t *testing.T) {
	tests := []struct {
		name   string
		header string
		data   []byte
		target error
	}{
		{
			name:   "out of bounds",
			header: `{"x":{"dtype":"F32","shape":[2],"data_offsets":[0,8]}}`,
			data:   make([]byte, 4),
			target: ErrInvalidOffsets,
		},
		{
			name:   "size mismatch",
			header: `{"x":{"dtype":"F32","shape":[3],"data_offsets":[0,8]}}`,
			data:   make([]byte, 8),
			target: ErrInvalidOffsets,
		},
		{
			name: "overlap",
			header: `{"a":{"dtype":"F32","shape":[2],"data_offsets":[0,8]},` +
				`"b":{"dtype":"F32","shape":[2],"data_offsets":[4,12]}}`,
			data:   make([]byte, 12),
			target: ErrInvalidOffsets,
		},
		{
			name:   "unsupported dtype",
			header: `{"x":{"dtype":"I8","shape":[1],"data_offsets":[0,1]}}`,
			data:   make([]byte, 1),
			target: ErrUnsupportedDType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := OpenSafeTensors(writeRawFile(t, tt.header, tt.data))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.target), "got %v", err)
		})
	}
}

func TestOpenSafeTensorsZeroSizedTensor(t *testing.T) {
	// The empty tensor sits at the same offset as the next one
	header := `{"empty":{"dtype":"F32","shape":[0,3],"data_offsets":[0,0]},` +
		`"x":{"dtype":"F32","shape":[1],"data_offsets":[0,4]}}`
	data := make([]byte, 4)
	binary.LittleEndian.PutUint32(data, 0x3f800000) // 1.0

	r, err := OpenSafeTensors(writeRawFile(t, header, data))
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, []string{"empty", "x"}, r.TensorNames())
	info, err := r.TensorInfo("empty")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 3}, info.Shape)

	x, err := r.LoadTensor("x")
	require.NoError(t, err)
	assert.Equal(t, []float32{1}, x.AsFloat32())

	_, err = r.LoadTensor("empty")
	assert.ErrorIs(t, err, ErrEmptyTensor)
}

func TestOpenSafeTensorsNegativeDim(t *testing.T) {
	_, err := OpenSafeTensors(writeRawFile(t, `{"x":{"dtype":"F32","shape":[-1],"data_offsets":[0,0]}}`, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid dimension")
}

func TestOpenSafeTensorsHeaderTooLarge(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint64(MaxHeaderSize+1)))
	path := filepath.Join(t.TempDir(), "huge.safetensors")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))

	_, err := OpenSafeTensors(path)
	assert.True(t, errors.Is(err, ErrHeaderTooLarge), "got %v", err)
}

func TestParseDType(t *testing.T) {
	for in, want := range map[string]DType{"f32": F32, "F16": F16, "bf16": BF16, "float64": F64} {
		got, err := ParseDType(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseDType("int8")
	assert.True(t, errors.Is(err, ErrUnsupportedDType))
}

func TestGatherStrided(t *testing.T) {
	// Storage holds a 3x2 matrix; the view is its transpose, offset by one row.
	src := []float32{9, 9, 1, 2, 3, 4, 5, 6}
	raw, err := gatherStrided(src, tensor.Shape{2, 3}, []int{1, 2}, 2, tensor.Float32)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 3, 5, 2, 4, 6}, raw.AsFloat32())

	_, err = gatherStrided(src, tensor.Shape{2, 3}, []int{3, 1}, 4, tensor.Float32)
	assert.True(t, errors.Is(err, ErrInvalidOffsets))

	_, err = gatherStrided(src, tensor.Shape{2}, []int{1, 1}, 0, tensor.Float32)
	assert.Error(t, err)
}

func TestValidateTensorOffsets(t *testing.T) {
	ok := []TensorSpan{{Name: "a", Offset: 0, Size: 4}, {Name: "b", Offset: 4, Size: 4}}
	assert.NoError(t, ValidateTensorOffsets(ok, 8))

	empty := []TensorSpan{{Name: "b", Offset: 4, Size: 4}, {Name: "e", Offset: 4, Size: 0}, {Name: "a", Offset: 0, Size: 4}}
	assert.NoError(t, ValidateTensorOffsets(empty, 8))

	neg := []TensorSpan{{Name: "a", Offset: -1, Size: 4}}
	var verr *ValidationError
	require.ErrorAs(t, ValidateTensorOffsets(neg, 8), &verr)
	assert.Equal(t, "negative_offset", verr.Type)
}
