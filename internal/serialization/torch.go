package serialization

import (
	"fmt"
	"log/slog"

	"github.com/nlpodyssey/gopickle/pytorch"
	"github.com/nlpodyssey/gopickle/types"

	"github.com/born-ml/chainmlp/internal/tensor"
)

// LoadTorch reads a state dict saved with torch.save(model.state_dict()).
//
// Float, double, half and bfloat16 storages are supported; half precision
// storages are widened to float32. Strided views are materialized into
// contiguous tensors.
func LoadTorch(path string) (map[string]*tensor.RawTensor, error) {
	obj, err := pytorch.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load torch checkpoint %s: %w", path, err)
	}

	stateDict := make(map[string]*tensor.RawTensor)
	switch d := obj.(type) {
	case *types.Dict:
		for _, k := range d.Keys() {
			if err := addTorchEntry(stateDict, k, d.MustGet(k)); err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
		}
	case *types.OrderedDict:
		// state_dict() returns an OrderedDict
		for e := d.List.Front(); e != nil; e = e.Next() {
			entry, ok := e.Value.(*types.OrderedDictEntry)
			if !ok {
				return nil, fmt.Errorf("%s: %w: malformed entry %T", path, ErrNotStateDict, e.Value)
			}
			if err := addTorchEntry(stateDict, entry.Key, entry.Value); err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
		}
	default:
		return nil, fmt.Errorf("%s: %w: got %T", path, ErrNotStateDict, obj)
	}

	slog.Debug("loaded torch checkpoint", "path", path, "tensors", len(stateDict))
	return stateDict, nil
}

func addTorchEntry(stateDict map[string]*tensor.RawTensor, key, value any) error {
	name, ok := key.(string)
	if !ok {
		return fmt.Errorf("%w: non-string key %v", ErrNotStateDict, key)
	}

	pt, ok := value.(*pytorch.Tensor)
	if !ok {
		return fmt.Errorf("%w: entry %s is not a tensor", ErrNotStateDict, name)
	}

	raw, err := fromTorchTensor(pt)
	if err != nil {
		return fmt.Errorf("tensor %s: %w", name, err)
	}
	stateDict[name] = raw
	return nil
}

// fromTorchTensor copies a pickled tensor into a contiguous RawTensor.
func fromTorchTensor(pt *pytorch.Tensor) (*tensor.RawTensor, error) {
	shape := tensor.Shape(append([]int(nil), pt.Size...))

	switch s := pt.Source.(type) {
	case *pytorch.FloatStorage:
		return gatherStrided(s.Data, shape, pt.Stride, pt.StorageOffset, tensor.Float32)
	case *pytorch.HalfStorage:
		return gatherStrided(s.Data, shape, pt.Stride, pt.StorageOffset, tensor.Float32)
	case *pytorch.BFloat16Storage:
		return gatherStrided(s.Data, shape, pt.Stride, pt.StorageOffset, tensor.Float32)
	case *pytorch.DoubleStorage:
		return gatherStrided(s.Data, shape, pt.Stride, pt.StorageOffset, tensor.Float64)
	default:
		return nil, fmt.Errorf("%w: storage %T", ErrUnsupportedDType, pt.Source)
	}
}

func gatherStrided[T tensor.DType](src []T, shape tensor.Shape, stride []int, offset int, dtype tensor.DataType) (*tensor.RawTensor, error) {
	if len(stride) != len(shape) {
		return nil, fmt.Errorf("stride %v does not match shape %v", stride, shape)
	}

	raw, err := tensor.NewRaw(shape, dtype, tensor.CPU)
	if err != nil {
		return nil, err
	}

	var dst []T
	switch any(dst).(type) {
	case []float32:
		dst = any(raw.AsFloat32()).([]T)
	case []float64:
		dst = any(raw.AsFloat64()).([]T)
	}

	// Highest storage index touched must be in range
	last := offset
	for d, n := range shape {
		last += (n - 1) * stride[d]
	}
	if offset < 0 || last >= len(src) {
		return nil, fmt.Errorf("%w: view [%d..%d] exceeds storage of %d elements", ErrInvalidOffsets, offset, last, len(src))
	}

	idx := make([]int, len(shape))
	pos := offset
	for i := range dst {
		dst[i] = src[pos]
		for d := len(shape) - 1; d >= 0; d-- {
			idx[d]++
			pos += stride[d]
			if idx[d] < shape[d] {
				break
			}
			pos -= stride[d] * idx[d]
			idx[d] = 0
		}
	}

	return raw, nil
}
