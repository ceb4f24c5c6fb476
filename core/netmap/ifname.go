package netmap

import (
	"bytes"
	"unicode/utf8"

	"github.com/momentics/hioload-netmap/api"
)

// EncodeName zero-pads name into a fixed IfNameSize field. A name of
// exactly IfNameSize bytes fills the field with no terminator.
func EncodeName(name string) ([IfNameSize]byte, error) {
	var out [IfNameSize]byte
	if name == "" || len(name) > IfNameSize {
		return out, api.Wrap(api.ErrCodeInvalidArgument, "interface name length", api.ErrInterfaceName).
			WithContext("name", name).
			WithContext("max", IfNameSize)
	}
	if !utf8.ValidString(name) {
		return out, api.Wrap(api.ErrCodeInvalidArgument, "interface name encoding", api.ErrInterfaceName).
			WithContext("name", name)
	}
	copy(out[:], name)
	return out, nil
}

// DecodeName returns the text up to the first zero byte of b, or all of b
// when there is none. Invalid UTF-8 is an error.
func DecodeName(b []byte) (string, error) {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	if !utf8.Valid(b) {
		return "", api.Wrap(api.ErrCodeInvalidArgument, "interface name decode", api.ErrInterfaceName).
			WithContext("raw", b)
	}
	return string(b), nil
}
