package attachments

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"path"

	"github.com/ulikunitz/xz"
)

const (
	blobRaw byte = iota
	blobXZ
)

// DefaultCompressibleTypes are the content types compressed
// at rest when no list is configured
var DefaultCompressibleTypes = []string{"text/*", "application/json", "application/xml", "application/javascript"}

// Codec encodes attachment blobs at rest. Blobs whose content
// type matches one of CompressibleTypes are xz-compressed.
// Patterns use path.Match syntax. Digests always refer to
// the raw bytes.
type Codec struct {
	CompressibleTypes []string
}

func (codec Codec) compressible(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)

	if err != nil {
		return false
	}

	for _, pattern := range codec.CompressibleTypes {
		if ok, _ := path.Match(pattern, mediaType); ok {
			return true
		}
	}

	return false
}

// Encode returns the at-rest form of data
func (codec Codec) Encode(contentType string, data []byte) ([]byte, error) {
	if !codec.compressible(contentType) {
		return append([]byte{blobRaw}, data...), nil
	}

	var buf bytes.Buffer

	buf.WriteByte(blobXZ)

	w, err := xz.NewWriter(&buf)

	if err != nil {
		return nil, fmt.Errorf("could not create xz writer: %s", err)
	}

	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("could not compress attachment: %s", err)
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("could not compress attachment: %s", err)
	}

	return buf.Bytes(), nil
}

// Decode returns the raw bytes of an at-rest blob
func (codec Codec) Decode(blob []byte) ([]byte, error) {
	if len(blob) == 0 {
		return nil, fmt.Errorf("empty attachment blob")
	}

	switch blob[0] {
	case blobRaw:
		return append([]byte{}, blob[1:]...), nil
	case blobXZ:
		r, err := xz.NewReader(bytes.NewReader(blob[1:]))

		if err != nil {
			return nil, fmt.Errorf("could not create xz reader: %s", err)
		}

		return io.ReadAll(r)
	}

	return nil, fmt.Errorf("unknown attachment blob encoding %d", blob[0])
}
