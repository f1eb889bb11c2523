// Package cpu implements the CPU backend on top of gonum BLAS.
package cpu

import (
	"fmt"

	"github.com/born-ml/chainmlp/internal/parallel"
	"github.com/born-ml/chainmlp/internal/tensor"
)

// CPUBackend implements tensor operations on CPU.
type CPUBackend struct {
	device tensor.Device
	par    parallel.Config
}

// Compile-time check that CPUBackend implements tensor.Backend.
var _ tensor.Backend = (*CPUBackend)(nil)

// New creates a new CPU backend using all available cores.
func New() *CPUBackend {
	return &CPUBackend{
		device: tensor.CPU,
		par:    parallel.DefaultConfig(),
	}
}

// NewWithWorkers creates a CPU backend limited to n worker goroutines.
// n <= 1 runs every operation on the calling goroutine.
func NewWithWorkers(n int) *CPUBackend {
	return &CPUBackend{
		device: tensor.CPU,
		par:    parallel.WithWorkers(n),
	}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Device returns the compute device.
func (cpu *CPUBackend) Device() tensor.Device {
	return cpu.device
}

// Workers returns the number of worker goroutines used for large operations.
func (cpu *CPUBackend) Workers() int {
	return cpu.par.NumWorkers
}

// Add performs element-wise addition with NumPy-style broadcasting.
func (cpu *CPUBackend) Add(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("add", a, b, func(x, y float64) float64 { return x + y })
}

// Sub performs element-wise subtraction with broadcasting.
func (cpu *CPUBackend) Sub(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("sub", a, b, func(x, y float64) float64 { return x - y })
}

// Mul performs element-wise multiplication with broadcasting.
func (cpu *CPUBackend) Mul(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("mul", a, b, func(x, y float64) float64 { return x * y })
}

func (cpu *CPUBackend) binary(op string, a, b *tensor.RawTensor, f func(x, y float64) float64) *tensor.RawTensor {
	if a.DType() != b.DType() {
		panic(fmt.Sprintf("%s: dtype mismatch %s vs %s", op, a.DType(), b.DType()))
	}

	outShape, _, err := tensor.BroadcastShapes(a.Shape(), b.Shape())
	if err != nil {
		panic(fmt.Sprintf("%s: %v", op, err))
	}

	result, err := tensor.NewRaw(outShape, a.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("%s: failed to create result tensor: %v", op, err))
	}

	switch a.DType() {
	case tensor.Float32:
		broadcastBinary(result.AsFloat32(), a.AsFloat32(), b.AsFloat32(), outShape, a.Shape(), b.Shape(),
			func(x, y float32) float32 { return float32(f(float64(x), float64(y))) })
	case tensor.Float64:
		broadcastBinary(result.AsFloat64(), a.AsFloat64(), b.AsFloat64(), outShape, a.Shape(), b.Shape(), f)
	default:
		panic(fmt.Sprintf("%s: unsupported dtype %s", op, a.DType()))
	}

	return result
}

// broadcastBinary applies f over out's index space, reading a and b through
// broadcast strides (stride 0 on size-1 or missing dimensions).
func broadcastBinary[T tensor.DType](out, a, b []T, outShape, aShape, bShape tensor.Shape, f func(x, y T) T) {
	// Fast path: identical shapes
	if aShape.Equal(bShape) {
		for i := range out {
			out[i] = f(a[i], b[i])
		}
		return
	}

	// Fast path: b is a row broadcast over the last dimension (bias add)
	if len(outShape) > 0 && aShape.Equal(outShape) && isRow(bShape, outShape[len(outShape)-1]) {
		n := len(b)
		for i := range out {
			out[i] = f(a[i], b[i%n])
		}
		return
	}

	aStrides := broadcastStrides(aShape, outShape)
	bStrides := broadcastStrides(bShape, outShape)
	idx := make([]int, len(outShape))
	aOff, bOff := 0, 0

	for i := range out {
		out[i] = f(a[aOff], b[bOff])

		// Advance the multi-index, carrying into outer dimensions
		for d := len(outShape) - 1; d >= 0; d-- {
			idx[d]++
			aOff += aStrides[d]
			bOff += bStrides[d]
			if idx[d] < outShape[d] {
				break
			}
			aOff -= aStrides[d] * idx[d]
			bOff -= bStrides[d] * idx[d]
			idx[d] = 0
		}
	}
}

// isRow reports whether shape is n elements laid out along the last
// dimension, with every other dimension of size 1.
func isRow(shape tensor.Shape, n int) bool {
	if len(shape) == 0 || shape[len(shape)-1] != n {
		return false
	}
	for _, d := range shape[:len(shape)-1] {
		if d != 1 {
			return false
		}
	}
	return true
}

// broadcastStrides returns strides of shape aligned to outShape, with zero
// strides for broadcast dimensions.
func broadcastStrides(shape, outShape tensor.Shape) []int {
	strides := make([]int, len(outShape))
	own := shape.ComputeStrides()
	offset := len(outShape) - len(shape)
	for d := range shape {
		if shape[d] != 1 {
			strides[d+offset] = own[d]
		}
	}
	return strides
}

// Reshape returns a tensor with the same data but different shape.
func (cpu *CPUBackend) Reshape(t *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	result, err := t.WithShape(newShape)
	if err != nil {
		panic(fmt.Sprintf("reshape: %v", err))
	}
	return result
}

// Transpose transposes the tensor by permuting its dimensions.
func (cpu *CPUBackend) Transpose(t *tensor.RawTensor, axes ...int) *tensor.RawTensor {
	shape := t.Shape()
	ndim := len(shape)

	// Default: reverse all dimensions
	if len(axes) == 0 {
		axes = make([]int, ndim)
		for i := range axes {
			axes[i] = ndim - 1 - i
		}
	}

	if len(axes) != ndim {
		panic(fmt.Sprintf("transpose: axes length %d != ndim %d", len(axes), ndim))
	}

	seen := make([]bool, ndim)
	for _, ax := range axes {
		if ax < 0 || ax >= ndim {
			panic(fmt.Sprintf("transpose: invalid axis %d for %dD tensor", ax, ndim))
		}
		if seen[ax] {
			panic(fmt.Sprintf("transpose: duplicate axis %d", ax))
		}
		seen[ax] = true
	}

	newShape := make(tensor.Shape, ndim)
	for i, ax := range axes {
		newShape[i] = shape[ax]
	}

	result, err := tensor.NewRaw(newShape, t.DType(), t.Device())
	if err != nil {
		panic(fmt.Sprintf("transpose: %v", err))
	}

	switch t.DType() {
	case tensor.Float32:
		transposeData(result.AsFloat32(), t.AsFloat32(), shape, newShape, axes)
	case tensor.Float64:
		transposeData(result.AsFloat64(), t.AsFloat64(), shape, newShape, axes)
	default:
		panic(fmt.Sprintf("transpose: unsupported dtype %s", t.DType()))
	}

	return result
}

func transposeData[T tensor.DType](dst, src []T, shape, newShape tensor.Shape, axes []int) {
	srcStrides := shape.ComputeStrides()
	// Stride in src for each output dimension
	perm := make([]int, len(axes))
	for i, ax := range axes {
		perm[i] = srcStrides[ax]
	}

	idx := make([]int, len(newShape))
	off := 0
	for i := range dst {
		dst[i] = src[off]
		for d := len(newShape) - 1; d >= 0; d-- {
			idx[d]++
			off += perm[d]
			if idx[d] < newShape[d] {
				break
			}
			off -= perm[d] * idx[d]
			idx[d] = 0
		}
	}
}
