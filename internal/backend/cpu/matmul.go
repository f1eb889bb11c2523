package cpu

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
	"gonum.org/v1/gonum/blas/blas64"

	"github.com/born-ml/chainmlp/internal/parallel"
	"github.com/born-ml/chainmlp/internal/tensor"
)

// MatMul performs matrix multiplication of 2D tensors: (M, K) @ (K, N) -> (M, N).
//
// The product is computed with gonum's GEMM, split into row blocks that run
// on separate workers for large M.
func (cpu *CPUBackend) MatMul(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.matmul("matmul", a, b, false)
}

// MatMulTransB multiplies a by the transpose of b: (M, K) @ (N, K)^T -> (M, N).
// b is read in place; no transposed copy is made.
func (cpu *CPUBackend) MatMulTransB(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.matmul("matmul_trans_b", a, b, true)
}

func (cpu *CPUBackend) matmul(op string, a, b *tensor.RawTensor, transB bool) *tensor.RawTensor {
	aShape := a.Shape()
	bShape := b.Shape()

	if len(aShape) != 2 || len(bShape) != 2 {
		panic(fmt.Sprintf("%s: only 2D tensors supported, got %dD and %dD", op, len(aShape), len(bShape)))
	}
	if a.DType() != b.DType() {
		panic(fmt.Sprintf("%s: dtype mismatch %s vs %s", op, a.DType(), b.DType()))
	}

	m, k := aShape[0], aShape[1]
	kAlt, n := bShape[0], bShape[1]
	if transB {
		n, kAlt = kAlt, n
	}

	if k != kAlt {
		panic(fmt.Sprintf("%s: shape mismatch [%d,%d] @ [%d,%d]", op, m, k, bShape[0], bShape[1]))
	}

	result, err := tensor.NewRaw(tensor.Shape{m, n}, a.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("%s: failed to create result tensor: %v", op, err))
	}

	switch a.DType() {
	case tensor.Float32:
		matmulFloat32(result.AsFloat32(), a.AsFloat32(), b.AsFloat32(), m, k, n, transB, cpu.par)
	case tensor.Float64:
		matmulFloat64(result.AsFloat64(), a.AsFloat64(), b.AsFloat64(), m, k, n, transB, cpu.par)
	default:
		panic(fmt.Sprintf("%s: unsupported dtype %s", op, a.DType()))
	}

	return result
}

func matmulFloat32(c, a, b []float32, m, k, n int, transB bool, cfg parallel.Config) {
	tB := blas.NoTrans
	bm := blas32.General{Rows: k, Cols: n, Stride: n, Data: b}
	if transB {
		tB = blas.Trans
		bm = blas32.General{Rows: n, Cols: k, Stride: k, Data: b}
	}
	parallel.For(m, func(start, end int) {
		rows := end - start
		am := blas32.General{Rows: rows, Cols: k, Stride: k, Data: a[start*k : end*k]}
		cm := blas32.General{Rows: rows, Cols: n, Stride: n, Data: c[start*n : end*n]}
		blas32.Gemm(blas.NoTrans, tB, 1, am, bm, 0, cm)
	}, cfg)
}

func matmulFloat64(c, a, b []float64, m, k, n int, transB bool, cfg parallel.Config) {
	tB := blas.NoTrans
	bm := blas64.General{Rows: k, Cols: n, Stride: n, Data: b}
	if transB {
		tB = blas.Trans
		bm = blas64.General{Rows: n, Cols: k, Stride: k, Data: b}
	}
	parallel.For(m, func(start, end int) {
		rows := end - start
		am := blas64.General{Rows: rows, Cols: k, Stride: k, Data: a[start*k : end*k]}
		cm := blas64.General{Rows: rows, Cols: n, Stride: n, Data: c[start*n : end*n]}
		blas64.Gemm(blas.NoTrans, tB, 1, am, bm, 0, cm)
	}, cfg)
}
