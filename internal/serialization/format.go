package serialization

import (
	"encoding/binary"
	"fmt"
	"math"

	bfloat16 "github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"

	"github.com/born-ml/chainmlp/internal/tensor"
)

// DType is the on-disk element type of a SafeTensors entry.
type DType string

// Supported SafeTensors dtypes.
const (
	F32  DType = "F32"
	F64  DType = "F64"
	F16  DType = "F16"
	BF16 DType = "BF16"
)

// ParseDType accepts SafeTensors names as well as the short lowercase
// forms used on the command line (f32, f16, bf16, f64).
func ParseDType(s string) (DType, error) {
	switch s {
	case "F32", "f32", "float32":
		return F32, nil
	case "F64", "f64", "float64":
		return F64, nil
	case "F16", "f16", "float16", "half":
		return F16, nil
	case "BF16", "bf16", "bfloat16":
		return BF16, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedDType, s)
	}
}

// Size returns the byte width of one element.
func (d DType) Size() int {
	switch d {
	case F32:
		return 4
	case F64:
		return 8
	case F16, BF16:
		return 2
	default:
		return 0
	}
}

// decode converts little-endian file bytes into a RawTensor. Half precision
// inputs become Float32.
func decode(dtype DType, shape tensor.Shape, data []byte) (*tensor.RawTensor, error) {
	n := shape.NumElements()
	if len(data) != n*dtype.Size() {
		return nil, fmt.Errorf("%w: %d bytes for %d %s elements", ErrInvalidOffsets, len(data), n, dtype)
	}

	switch dtype {
	case F32:
		raw, err := tensor.NewRaw(shape, tensor.Float32, tensor.CPU)
		if err != nil {
			return nil, err
		}
		dst := raw.AsFloat32()
		for i := range dst {
			dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
		}
		return raw, nil
	case F64:
		raw, err := tensor.NewRaw(shape, tensor.Float64, tensor.CPU)
		if err != nil {
			return nil, err
		}
		dst := raw.AsFloat64()
		for i := range dst {
			dst[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
		}
		return raw, nil
	case F16:
		raw, err := tensor.NewRaw(shape, tensor.Float32, tensor.CPU)
		if err != nil {
			return nil, err
		}
		dst := raw.AsFloat32()
		for i := range dst {
			dst[i] = float16.Frombits(binary.LittleEndian.Uint16(data[i*2:])).Float32()
		}
		return raw, nil
	case BF16:
		raw, err := tensor.NewRaw(shape, tensor.Float32, tensor.CPU)
		if err != nil {
			return nil, err
		}
		copy(raw.AsFloat32(), bfloat16.DecodeFloat32(data))
		return raw, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDType, dtype)
	}
}

// encode converts a RawTensor into little-endian bytes of the given dtype.
func encode(raw *tensor.RawTensor, dtype DType) ([]byte, error) {
	values := ToFloat32(raw).AsFloat32()

	switch dtype {
	case F32:
		out := make([]byte, len(values)*4)
		for i, v := range values {
			binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
		}
		return out, nil
	case F64:
		out := make([]byte, raw.NumElements()*8)
		if raw.DType() == tensor.Float64 {
			for i, v := range raw.AsFloat64() {
				binary.LittleEndian.PutUint64(out[i*8:], math.Float64bits(v))
			}
			return out, nil
		}
		for i, v := range values {
			binary.LittleEndian.PutUint64(out[i*8:], math.Float64bits(float64(v)))
		}
		return out, nil
	case F16:
		out := make([]byte, len(values)*2)
		for i, v := range values {
			binary.LittleEndian.PutUint16(out[i*2:], float16.Fromfloat32(v).Bits())
		}
		return out, nil
	case BF16:
		return bfloat16.EncodeFloat32(values), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDType, dtype)
	}
}

// ToFloat32 returns raw unchanged when it is already Float32, otherwise a
// Float32 copy.
func ToFloat32(raw *tensor.RawTensor) *tensor.RawTensor {
	if raw.DType() == tensor.Float32 {
		return raw
	}

	out, err := tensor.NewRaw(raw.Shape(), tensor.Float32, raw.Device())
	if err != nil {
		panic(fmt.Sprintf("ToFloat32: %v", err))
	}
	dst := out.AsFloat32()
	for i, v := range raw.AsFloat64() {
		dst[i] = float32(v)
	}
	return out
}
