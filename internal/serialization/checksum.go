package serialization

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// ChecksumKey is the metadata key holding the hex SHA-256 of the data
// section.
const ChecksumKey = "data_sha256"

// ComputeChecksumReader computes the SHA-256 checksum of everything r yields.
func ComputeChecksumReader(r io.Reader) ([32]byte, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return [32]byte{}, err
	}
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum, nil
}

// checksumPayloads hashes the tensor payloads in file order.
func checksumPayloads(payloads [][]byte) string {
	h := sha256.New()
	for _, p := range payloads {
		h.Write(p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyChecksum compares the data section against the checksum recorded
// in the metadata. Files without a recorded checksum pass.
func (r *SafeTensorsReader) VerifyChecksum() error {
	stored, ok := r.header.Metadata[ChecksumKey]
	if !ok {
		return nil
	}

	sum, err := ComputeChecksumReader(io.NewSectionReader(r.file, r.dataOffset, r.dataSize))
	if err != nil {
		return fmt.Errorf("failed to hash data: %w", err)
	}
	if computed := hex.EncodeToString(sum[:]); computed != stored {
		return fmt.Errorf("%w: stored %s, computed %s", ErrChecksumMismatch, stored, computed)
	}
	return nil
}
