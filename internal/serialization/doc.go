// Package serialization reads and writes model weights.
//
// # Formats
//
// SafeTensors (HuggingFace) is the native format:
//
//	[8 bytes: header size N, little-endian u64]
//	[N bytes: JSON header with tensor dtypes, shapes, offsets and __metadata__]
//	[tensor data, little-endian]
//
// F32, F64, F16 and BF16 entries are supported. Half-precision entries are
// widened to float32 on load. Files written by this package carry a SHA-256
// of the data section in their metadata (see ChecksumKey).
//
// PyTorch checkpoints written with torch.save(model.state_dict()) are read
// through gopickle. Only the state dict is loaded; no Python code runs.
//
// # Security
//
// Headers are bounded by MaxHeaderSize and MaxTensorCount, and tensor
// offsets are checked for bounds, overlap and size before any data is read.
package serialization
