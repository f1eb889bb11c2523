package tensor_test

import (
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/chainmlp/internal/backend/cpu"
	"github.com/born-ml/chainmlp/internal/tensor"
)

func TestShape(t *testing.T) {
	s := tensor.Shape{2, 3, 4}
	assert.Equal(t, 24, s.NumElements())
	assert.Equal(t, []int{12, 4, 1}, s.ComputeStrides())
	assert.Equal(t, 1, tensor.Shape{}.NumElements())

	c := s.Clone()
	c[0] = 9
	assert.Equal(t, 2, s[0])

	assert.NoError(t, s.Validate())
	assert.Error(t, tensor.Shape{2, 0}.Validate())

	dim, err := s.NormalizeDim(-1)
	require.NoError(t, err)
	assert.Equal(t, 2, dim)
	_, err = s.NormalizeDim(3)
	assert.Error(t, err)
}

func TestBroadcastShapes(t *testing.T) {
	tests := []struct {
		a, b      tensor.Shape
		want      tensor.Shape
		broadcast bool
		wantErr   bool
	}{
		{a: tensor.Shape{3, 1}, b: tensor.Shape{3, 5}, want: tensor.Shape{3, 5}, broadcast: true},
		{a: tensor.Shape{3, 5}, b: tensor.Shape{3, 5}, want: tensor.Shape{3, 5}},
		{a: tensor.Shape{5}, b: tensor.Shape{2, 5}, want: tensor.Shape{2, 5}, broadcast: true},
		{a: tensor.Shape{3, 4}, b: tensor.Shape{3, 5}, wantErr: true},
	}

	for _, tt := range tests {
		got, broadcast, err := tensor.BroadcastShapes(tt.a, tt.b)
		if tt.wantErr {
			assert.Error(t, err)
			continue
		}
		require.NoError(t, err)
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("BroadcastShapes(%v, %v) mismatch (-want +got):\n%s", tt.a, tt.b, diff)
		}
		assert.Equal(t, tt.broadcast, broadcast)
	}
}

func TestFromSlice(t *testing.T) {
	backend := cpu.New()

	x, err := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3}, backend)
	require.NoError(t, err)
	assert.Equal(t, tensor.Float32, x.DType())
	assert.Equal(t, float32(6), x.At(1, 2))

	x.Set(42, 0, 1)
	assert.Equal(t, float32(42), x.Data()[1])

	_, err = tensor.FromSlice([]float32{1, 2}, tensor.Shape{3}, backend)
	assert.Error(t, err)

	assert.Panics(t, func() { x.At(2, 0) })
	assert.Panics(t, func() { x.At(0) })
}

func TestCloneIsDeep(t *testing.T) {
	backend := cpu.New()
	x := tensor.Full[float32](tensor.Shape{2, 2}, 1, backend)
	y := x.Clone()
	y.Data()[0] = 5
	assert.Equal(t, float32(1), x.Data()[0])
}

func TestOps(t *testing.T) {
	backend := cpu.New()

	x, err := tensor.FromSlice([]float64{1, -2, 3, -4}, tensor.Shape{2, 2}, backend)
	require.NoError(t, err)

	assert.Equal(t, []float64{1, 0, 3, 0}, x.ReLU().Data())
	assert.Equal(t, []float64{2, -4, 6, -8}, x.MulScalar(2).Data())
	assert.Equal(t, []float64{1, 3, -2, -4}, x.T().Data())
	assert.Equal(t, []float64{-5, 6, -9, 10}, x.MatMul(x).Data())
	assert.Equal(t, []float64{5, 11, 11, 25}, x.MatMulTransB(x).Data())
	assert.Equal(t, tensor.Shape{4}, x.Reshape(4).Shape())
}

func TestCat(t *testing.T) {
	backend := cpu.New()
	a := tensor.Full[float32](tensor.Shape{2, 1}, 1, backend)
	b := tensor.Full[float32](tensor.Shape{2, 2}, 2, backend)

	c := tensor.Cat([]*tensor.Tensor[float32, *cpu.CPUBackend]{a, b}, -1)
	assert.Equal(t, tensor.Shape{2, 3}, c.Shape())
	assert.Equal(t, []float32{1, 2, 2, 1, 2, 2}, c.Data())

	single := tensor.Cat([]*tensor.Tensor[float32, *cpu.CPUBackend]{a}, 0)
	assert.Equal(t, a.Data(), single.Data())
}

func TestUniform(t *testing.T) {
	backend := cpu.New()
	rng := rand.New(rand.NewPCG(1, 2))

	u := tensor.Uniform[float32](tensor.Shape{1000}, -0.5, 0.5, rng, backend)
	for _, v := range u.Data() {
		assert.GreaterOrEqual(t, v, float32(-0.5))
		assert.LessOrEqual(t, v, float32(0.5))
	}

	again := tensor.Uniform[float32](tensor.Shape{1000}, -0.5, 0.5, rand.New(rand.NewPCG(1, 2)), backend)
	assert.Equal(t, u.Data(), again.Data())
}
