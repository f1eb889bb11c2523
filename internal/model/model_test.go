package model

import (
	"errors"
	"math/rand/v2"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/chainmlp/internal/backend/cpu"
	"github.com/born-ml/chainmlp/internal/serialization"
	"github.com/born-ml/chainmlp/internal/tensor"
)

type testBackend = *cpu.CPUBackend

func seeded(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed+1))
}

// smallConfig keeps the reference wiring with narrow layers.
func smallConfig(zeroInit bool, dropout float32) Config {
	return Config{
		DModel: 16,
		NLayer: 1,
		Stage1: MLPConfig{InputDim: 5, OutputDim: 3, HiddenDims: []int{8, 8, 6}, Dropout: dropout, ZeroInit: zeroInit},
		Stage2: MLPConfig{InputDim: 5 + 6, OutputDim: 1, HiddenDims: []int{4, 4}, Dropout: dropout, ZeroInit: zeroInit},
	}
}

func randomInput(t *testing.T, rows, cols int, seed uint64) *tensor.Tensor[float32, testBackend] {
	t.Helper()
	return tensor.Uniform[float32](tensor.Shape{rows, cols}, -1, 1, seeded(seed), cpu.New())
}

func TestModel_DefaultShapes(t *testing.T) {
	m, err := New(DefaultConfig(), seeded(1), cpu.New())
	require.NoError(t, err)
	m.Eval()

	x := randomInput(t, 3, 77, 2)
	pred, predAll := m.Forward(x)

	assert.Equal(t, tensor.Shape{3, 1}, pred.Shape())
	assert.Equal(t, tensor.Shape{3, 9}, predAll.Shape())
	assert.Equal(t, 2185738, m.NumParameters())
	assert.Equal(t, 512, m.NEmbd())
	assert.Equal(t, 1, m.NLayer())
	assert.Zero(t, m.Dropout())
}

func TestModel_ForwardWiring(t *testing.T) {
	m, err := New(smallConfig(false, 0), seeded(3), cpu.New())
	require.NoError(t, err)

	x := randomInput(t, 4, 5, 4)
	pred, predAll := m.Forward(x)

	wantAll, hidden := m.Stage1().Forward(x)
	assert.Equal(t, tensor.Shape{4, 6}, hidden.Shape())
	assert.Equal(t, wantAll.Data(), predAll.Data())

	xh := tensor.Cat([]*tensor.Tensor[float32, testBackend]{x, hidden}, -1)
	assert.Equal(t, tensor.Shape{4, 11}, xh.Shape())
	assert.Equal(t, x.At(2, 4), xh.At(2, 4))
	assert.Equal(t, hidden.At(2, 0), xh.At(2, 5))

	wantPred, _ := m.Stage2().Forward(xh)
	assert.Equal(t, wantPred.Data(), pred.Data())
}

func TestModel_ForwardLeadingDims(t *testing.T) {
	m, err := New(smallConfig(false, 0), seeded(5), cpu.New())
	require.NoError(t, err)

	x := randomInput(t, 6, 5, 6)
	pred2, all2 := m.Forward(x)
	pred3, all3 := m.Forward(x.Reshape(2, 3, 5))

	assert.Equal(t, tensor.Shape{2, 3, 1}, pred3.Shape())
	assert.Equal(t, tensor.Shape{2, 3, 3}, all3.Shape())
	assert.Equal(t, pred2.Data(), pred3.Data())
	assert.Equal(t, all2.Data(), all3.Data())
}

func TestModel_ForwardWrongWidthPanics(t *testing.T) {
	m, err := New(smallConfig(false, 0), seeded(5), cpu.New())
	require.NoError(t, err)
	assert.Panics(t, func() { m.Forward(randomInput(t, 2, 4, 1)) })
}

func TestSimpleMLP_ZeroInit(t *testing.T) {
	mlp, err := NewSimpleMLP(smallConfig(true, 0).Stage1, seeded(7), cpu.New())
	require.NoError(t, err)

	require.Len(t, mlp.HiddenLayers(), 3)
	for i, l := range mlp.HiddenLayers() {
		for _, v := range l.Weight().Tensor().Data() {
			require.Zero(t, v, "hidden layer %d weight", i)
		}
		assert.NotEqual(t, make([]float32, l.OutFeatures()), l.Bias().Tensor().Data(), "hidden layer %d bias", i)
	}
	assert.NotEqual(t, make([]float32, 6*3), mlp.OutputLayer().Weight().Tensor().Data())
}

func TestModel_ZeroInitIgnoresInput(t *testing.T) {
	m, err := New(smallConfig(true, 0.3), seeded(9), cpu.New())
	require.NoError(t, err)
	m.Eval()

	// Every hidden Linear has zero weights, so hidden activations are
	// relu(bias) regardless of the input.
	a, aAll := m.Forward(randomInput(t, 1, 5, 10))
	b, bAll := m.Forward(randomInput(t, 1, 5, 11))
	assert.Equal(t, a.Data(), b.Data())
	assert.Equal(t, aAll.Data(), bAll.Data())
}

func TestModel_TrainEval(t *testing.T) {
	m, err := New(smallConfig(false, 0.5), seeded(12), cpu.New())
	require.NoError(t, err)
	assert.True(t, m.Training())

	x := randomInput(t, 32, 5, 13)

	m.Eval()
	assert.False(t, m.Training())
	p1, _ := m.Forward(x)
	p2, _ := m.Forward(x)
	assert.Equal(t, p1.Data(), p2.Data())

	m.Train()
	p3, _ := m.Forward(x)
	assert.NotEqual(t, p1.Data(), p3.Data())
}

func TestModel_StateDictKeys(t *testing.T) {
	m, err := New(smallConfig(false, 0.1), seeded(1), cpu.New())
	require.NoError(t, err)

	keys := make([]string, 0)
	for k := range m.StateDict() {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	want := []string{
		"simplemlp1.mlp.0.bias",
		"simplemlp1.mlp.0.weight",
		"simplemlp1.mlp.hidden_1.0.bias",
		"simplemlp1.mlp.hidden_1.0.weight",
		"simplemlp1.mlp.hidden_2.0.bias",
		"simplemlp1.mlp.hidden_2.0.weight",
		"simplemlp1.output_layer.bias",
		"simplemlp1.output_layer.weight",
		"simplemlp2.mlp.0.bias",
		"simplemlp2.mlp.0.weight",
		"simplemlp2.mlp.hidden_1.0.bias",
		"simplemlp2.mlp.hidden_1.0.weight",
		"simplemlp2.output_layer.bias",
		"simplemlp2.output_layer.weight",
	}
	assert.Equal(t, want, keys)
	assert.Equal(t, tensor.Shape{8, 5}, m.StateDict()["simplemlp1.mlp.0.weight"].Shape())
	assert.Equal(t, tensor.Shape{4, 11}, m.StateDict()["simplemlp2.mlp.0.weight"].Shape())
}

func TestModel_LoadStateDictErrors(t *testing.T) {
	cfg := smallConfig(false, 0)
	m, err := New(cfg, seeded(1), cpu.New())
	require.NoError(t, err)

	sd := m.StateDict()
	sd["simplemlp1.extra"] = sd["simplemlp1.mlp.0.bias"]
	err = m.LoadStateDict(sd)
	assert.True(t, errors.Is(err, ErrUnexpectedKey), "got %v", err)

	sd = m.StateDict()
	delete(sd, "simplemlp2.mlp.hidden_1.0.weight")
	err = m.LoadStateDict(sd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "simplemlp2: mlp: module hidden_1: module 0")
}

func TestModel_SaveLoadRoundTrip(t *testing.T) {
	cfg := smallConfig(false, 0.2)
	src, err := New(cfg, seeded(20), cpu.New())
	require.NoError(t, err)
	src.Eval()

	path := filepath.Join(t.TempDir(), "w.safetensors")
	id, err := src.Save(path, serialization.F32)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	dst, err := New(cfg, seeded(21), cpu.New())
	require.NoError(t, err)
	dst.Eval()
	require.NoError(t, dst.Load(path))

	x := randomInput(t, 3, 5, 22)
	ps, as := src.Forward(x)
	pd, ad := dst.Forward(x)
	assert.Equal(t, ps.Data(), pd.Data())
	assert.Equal(t, as.Data(), ad.Data())

	got, ok, err := ReadConfig(path)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, cfg, got)

	_, meta, err := ReadStateDict(path)
	require.NoError(t, err)
	assert.Equal(t, Architecture, meta[MetaArchitecture])
	assert.Equal(t, id, meta[MetaCheckpointID])
}

func TestModel_LoadConfigMismatch(t *testing.T) {
	src, err := New(smallConfig(false, 0), seeded(1), cpu.New())
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "w.safetensors")
	_, err = src.Save(path, serialization.BF16)
	require.NoError(t, err)

	other := smallConfig(false, 0)
	other.DModel = 99
	dst, err := New(other, seeded(2), cpu.New())
	require.NoError(t, err)

	err = dst.Load(path)
	assert.True(t, errors.Is(err, ErrConfigMismatch), "got %v", err)
}

func TestModel_LoadWithoutMetadata(t *testing.T) {
	cfg := smallConfig(false, 0)
	src, err := New(cfg, seeded(1), cpu.New())
	require.NoError(t, err)

	// Weights exported by another tool: no config in metadata, half precision
	path := filepath.Join(t.TempDir(), "export.safetensors")
	require.NoError(t, serialization.WriteSafeTensors(path, src.StateDict(), nil, serialization.F16))

	dst, err := New(cfg, seeded(2), cpu.New())
	require.NoError(t, err)
	require.NoError(t, dst.Load(path))

	w := dst.StateDict()["simplemlp1.mlp.0.weight"].AsFloat32()
	for i, v := range src.StateDict()["simplemlp1.mlp.0.weight"].AsFloat32() {
		assert.InDelta(t, v, w[i], 1e-3)
	}

	_, ok, err := ReadConfig(path)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReadStateDictUnknownExtension(t *testing.T) {
	_, _, err := ReadStateDict("weights.onnx")
	assert.Error(t, err)
}

// tinyConfig matches testdata/tiny.pt, written by
// internal/serialization/testdata/gen_torch_fixtures.py.
func tinyConfig() Config {
	return Config{
		DModel: 4,
		NLayer: 1,
		Stage1: MLPConfig{InputDim: 2, OutputDim: 1, HiddenDims: []int{2, 2}},
		Stage2: MLPConfig{InputDim: 4, OutputDim: 1, HiddenDims: []int{2}},
	}
}

func TestReadStateDictTorch(t *testing.T) {
	stateDict, meta, err := ReadStateDict(filepath.Join("testdata", "tiny.pt"))
	require.NoError(t, err)
	assert.Nil(t, meta)

	keys := make([]string, 0, len(stateDict))
	for k := range stateDict {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	assert.Equal(t, []string{
		"simplemlp1.mlp.0.bias",
		"simplemlp1.mlp.0.weight",
		"simplemlp1.mlp.hidden_1.0.bias",
		"simplemlp1.mlp.hidden_1.0.weight",
		"simplemlp1.output_layer.bias",
		"simplemlp1.output_layer.weight",
		"simplemlp2.mlp.0.bias",
		"simplemlp2.mlp.0.weight",
		"simplemlp2.output_layer.bias",
		"simplemlp2.output_layer.weight",
	}, keys)

	w := stateDict["simplemlp2.mlp.0.weight"]
	assert.Equal(t, tensor.Shape{2, 4}, w.Shape())
	assert.InDeltaSlice(t, []float32{0.1, 0.2, 0.3, 0.4, -0.3, 0.6, 0.9, -0.2}, w.AsFloat32(), 1e-7)
}

func TestModel_LoadTorch(t *testing.T) {
	m, err := New(tinyConfig(), seeded(1), cpu.New())
	require.NoError(t, err)
	require.NoError(t, m.Load(filepath.Join("testdata", "tiny.pt")))
	m.Eval()

	x, err := tensor.FromSlice([]float32{1, 2, -1, 0.5}, tensor.Shape{2, 2}, cpu.New())
	require.NoError(t, err)
	pred, predAll := m.Forward(x)

	assert.Equal(t, tensor.Shape{2, 1}, pred.Shape())
	assert.InDeltaSlice(t, []float32{0.09125, -0.21}, pred.Data(), 1e-5)
	assert.InDeltaSlice(t, []float32{-0.03, -0.07}, predAll.Data(), 1e-5)
}
