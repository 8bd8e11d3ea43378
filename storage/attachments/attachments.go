// Package attachments implements the content-addressed side of
// document attachments: digests, materialization of submitted
// attachments, the per-document reference-counted content index
// and the at-rest blob codec.
package attachments

import (
	"crypto/md5"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrMissingStub indicates that a stub references a digest
	// the document does not have
	ErrMissingStub = errors.New("unknown stub attachment")
	// ErrBadBase64 indicates that attachment data is not valid base64
	ErrBadBase64 = errors.New("attachment is not a valid base64 string")
	// ErrBadAttachment indicates a malformed attachment
	ErrBadAttachment = errors.New("invalid attachment")
)

// Digest returns the content address of data
func Digest(data []byte) string {
	sum := md5.Sum(data)

	return "md5-" + base64.StdEncoding.EncodeToString(sum[:])
}

// DigestReader reads r to the end and returns the content
// address of what it read along with the bytes
func DigestReader(r io.Reader) (string, []byte, error) {
	hash := md5.New()
	data, err := io.ReadAll(io.TeeReader(r, hash))

	if err != nil {
		return "", nil, err
	}

	return "md5-" + base64.StdEncoding.EncodeToString(hash.Sum(nil)), data, nil
}

// Attachment is a submitted attachment after materialization.
// Stubs carry no Data.
type Attachment struct {
	Name        string
	ContentType string
	Digest      string
	Length      int
	RevPos      int
	Stub        bool
	Data        []byte
}

// Materialize normalizes the raw form of an attachment as found
// under a document's _attachments member. Stubs must carry a
// digest. Literal data may be a base64 string, a byte slice or an
// io.Reader. Literal data is digested here.
func Materialize(name string, raw interface{}) (Attachment, error) {
	fields, ok := raw.(map[string]interface{})

	if !ok {
		return Attachment{}, fmt.Errorf("%w: %q is not an object", ErrBadAttachment, name)
	}

	attachment := Attachment{Name: name}
	attachment.ContentType, _ = fields["content_type"].(string)

	if stub, _ := fields["stub"].(bool); stub {
		digest, ok := fields["digest"].(string)

		if !ok || digest == "" {
			return Attachment{}, fmt.Errorf("%w: stub %q has no digest", ErrBadAttachment, name)
		}

		attachment.Stub = true
		attachment.Digest = digest
		attachment.Length = toInt(fields["length"])
		attachment.RevPos = toInt(fields["revpos"])

		return attachment, nil
	}

	switch data := fields["data"].(type) {
	case string:
		decoded, err := base64.StdEncoding.DecodeString(data)

		if err != nil {
			return Attachment{}, ErrBadBase64
		}

		attachment.Data = decoded
		attachment.Digest = Digest(decoded)
	case []byte:
		attachment.Data = data
		attachment.Digest = Digest(data)
	case io.Reader:
		digest, read, err := DigestReader(data)

		if err != nil {
			return Attachment{}, fmt.Errorf("could not read attachment %q: %s", name, err)
		}

		attachment.Data = read
		attachment.Digest = digest
	default:
		return Attachment{}, fmt.Errorf("%w: %q has no data", ErrBadAttachment, name)
	}

	attachment.Length = len(attachment.Data)

	return attachment, nil
}

// AsStub returns the stub form of the attachment as it is
// stored in a revision body
func (attachment Attachment) AsStub() map[string]interface{} {
	return map[string]interface{}{
		"stub":         true,
		"digest":       attachment.Digest,
		"content_type": attachment.ContentType,
		"length":       attachment.Length,
		"revpos":       attachment.RevPos,
	}
}

// Inline renders attachment bytes for output: raw bytes
// when binary is set, base64 text otherwise.
func Inline(data []byte, binary bool) interface{} {
	if binary {
		return data
	}

	return base64.StdEncoding.EncodeToString(data)
}

func toInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}

	return 0
}
