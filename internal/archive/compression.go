package archive

import (
	"fmt"

	"github.com/klauspost/compress/gzip"

	"bm-go/internal/bm"
)

// CompressionLevel is the configured gzip level of exported archives.
type CompressionLevel int

const (
	NoCompression      CompressionLevel = gzip.NoCompression
	BestSpeed          CompressionLevel = gzip.BestSpeed
	DefaultCompression CompressionLevel = gzip.DefaultCompression
	BestCompression    CompressionLevel = gzip.BestCompression
)

// String returns the configuration name of a compression level.
func (l CompressionLevel) String() string {
	switch l {
	case NoCompression:
		return "NO_COMPRESSION"
	case BestSpeed:
		return "BEST_SPEED"
	case DefaultCompression:
		return "DEFAULT_COMPRESSION"
	case BestCompression:
		return "BEST_COMPRESSION"
	default:
		return fmt.Sprintf("unknown(%d)", int(l))
	}
}

// ParseCompressionLevel parses a configured level name. Unknown names are a
// configuration error; there is no silent default.
func ParseCompressionLevel(name string) (CompressionLevel, error) {
	switch name {
	case "NO_COMPRESSION":
		return NoCompression, nil
	case "BEST_SPEED":
		return BestSpeed, nil
	case "DEFAULT_COMPRESSION":
		return DefaultCompression, nil
	case "BEST_COMPRESSION":
		return BestCompression, nil
	default:
		return 0, fmt.Errorf("%w: unknown compression level: %q", bm.ErrInvalidConfig, name)
	}
}
