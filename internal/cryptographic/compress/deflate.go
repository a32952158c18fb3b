package compress

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
)

// pageSize matches the 128-byte pages the iOS client feeds through its
// compression filter. Chunked writes bound peak memory on large images.
const pageSize = 128

// Deflate compresses data as a raw DEFLATE stream (no zlib header).
func Deflate(data []byte) ([]byte, error) {
	var out bytes.Buffer
	w, err := flate.NewWriter(&out, flate.DefaultCompression)
	if err != nil {
		return nil, fmt.Errorf("flate.NewWriter: %w", err)
	}
	for index := 0; index < len(data); index += pageSize {
		end := index + pageSize
		if end > len(data) {
			end = len(data)
		}
		if _, err := w.Write(data[index:end]); err != nil {
			return nil, fmt.Errorf("flate write: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("flate close: %w", err)
	}
	return out.Bytes(), nil
}

// Inflate reverses Deflate, reading the stream back in fixed-size pages.
func Inflate(data []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()

	var out bytes.Buffer
	page := make([]byte, pageSize)
	for {
		n, err := r.Read(page)
		out.Write(page[:n])
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("flate read: %w", err)
		}
	}
	return out.Bytes(), nil
}
