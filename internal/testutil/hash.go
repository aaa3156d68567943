package testutil

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// XXHashHex returns the xxhash64 of data as 16 lowercase hex digits.
// Matches the checksum format recorded for exported archives.
func XXHashHex(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}
