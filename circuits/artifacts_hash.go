package circuits

import (
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/vocdoni/zkparams/types"
)

// HashBytesSHA256 returns the SHA256 hash of the provided byte slice.
func HashBytesSHA256(content []byte) types.HexBytes {
	sum := sha256.Sum256(content)
	return sum[:]
}

// HashWriterTo returns the SHA256 hash of everything src writes, without
// keeping the serialized bytes in memory.
func HashWriterTo(src io.WriterTo) (types.HexBytes, error) {
	hasher := sha256.New()
	if _, err := src.WriteTo(hasher); err != nil {
		return nil, fmt.Errorf("write to hasher: %w", err)
	}
	return hasher.Sum(nil), nil
}
