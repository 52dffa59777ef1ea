package bridge

import (
	"encoding/base64"
	"encoding/hex"
	"strings"

	"github.com/emberrun/sandbox/internal/domain"
	"github.com/emberrun/sandbox/internal/errx"
)

// decodeString converts a guest string to bytes under the named encoding
// (default "utf8"), one of the §4.1 "read file" / hashing update encodings.
func decodeString(s, encoding string) ([]byte, error) {
	switch normalizeEncoding(encoding) {
	case "", "utf8", "utf-8":
		return []byte(s), nil
	case "hex":
		b, err := hex.DecodeString(s)
		if err != nil {
			return nil, errx.Wrap(domain.ErrInvalidArgument, err)
		}
		return b, nil
	case "base64":
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, errx.Wrap(domain.ErrInvalidArgument, err)
		}
		return b, nil
	case "base64url":
		b, err := base64.URLEncoding.DecodeString(s)
		if err != nil {
			return nil, errx.Wrap(domain.ErrInvalidArgument, err)
		}
		return b, nil
	case "ascii", "latin1", "binary":
		return []byte(s), nil
	default:
		return nil, errx.With(domain.ErrInvalidArgument, ": unsupported encoding %q", encoding)
	}
}

// encodeBytes converts raw bytes to a guest string under the named
// encoding, or returns the bytes unchanged (as a []byte, exposed to the
// guest as a Uint8Array by goja) when encoding is empty.
func encodeBytes(b []byte, encoding string) (any, error) {
	switch normalizeEncoding(encoding) {
	case "":
		return b, nil
	case "utf8", "utf-8", "ascii", "latin1", "binary":
		return string(b), nil
	case "hex":
		return hex.EncodeToString(b), nil
	case "base64":
		return base64.StdEncoding.EncodeToString(b), nil
	case "base64url":
		return base64.URLEncoding.EncodeToString(b), nil
	default:
		return nil, errx.With(domain.ErrInvalidArgument, ": unsupported encoding %q", encoding)
	}
}

func normalizeEncoding(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}
