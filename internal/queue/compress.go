package queue

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/snappy"
	"github.com/pierrec/lz4/v4"
)

// Result compression algorithms
const (
	CompressionNone   = "none"
	CompressionSnappy = "snappy"
	CompressionLZ4    = "lz4"
)

// compressionMinSize is the threshold below which results are stored as-is;
// small artifacts gain nothing from compression.
const compressionMinSize = 1024

// ErrDecompression is returned when result decompression fails.
// Use errors.Is(err, ErrDecompression) to check for decompression errors.
var ErrDecompression = errors.New("decompression failed")

// compressResult compresses an artifact using the specified algorithm.
// Returns the stored bytes and the encoding recorded on the job record.
// Content below the threshold or algorithm "none" is returned unchanged.
func compressResult(content []byte, algorithm string) ([]byte, string, error) {
	if len(content) < compressionMinSize {
		return content, CompressionNone, nil
	}

	switch algorithm {
	case CompressionSnappy:
		return snappy.Encode(nil, content), CompressionSnappy, nil

	case CompressionLZ4:
		// LZ4 stream format embeds size information
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(content); err != nil {
			w.Close()
			return nil, "", fmt.Errorf("lz4 compression failed: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, "", fmt.Errorf("lz4 compression close failed: %w", err)
		}
		return buf.Bytes(), CompressionLZ4, nil

	default:
		// "none" or unknown algorithm - store uncompressed
		return content, CompressionNone, nil
	}
}

// decompressResult restores an artifact based on its recorded encoding
func decompressResult(content []byte, encoding string) ([]byte, error) {
	switch encoding {
	case "", CompressionNone:
		return content, nil

	case CompressionSnappy:
		decoded, err := snappy.Decode(nil, content)
		if err != nil {
			return nil, fmt.Errorf("%w: snappy: %v", ErrDecompression, err)
		}
		return decoded, nil

	case CompressionLZ4:
		r := lz4.NewReader(bytes.NewReader(content))
		decoded, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("%w: lz4: %v", ErrDecompression, err)
		}
		return decoded, nil

	default:
		return nil, fmt.Errorf("%w: unknown encoding %q", ErrDecompression, encoding)
	}
}
