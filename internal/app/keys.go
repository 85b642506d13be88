package app

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
)

var errEmptyKey = errors.New("key value is empty")

// keyEncodings lists the accepted encodings for secret material, most specific first.
var keyEncodings = []func(string) ([]byte, error){
	func(v string) ([]byte, error) {
		if len(v)%2 != 0 {
			return nil, hex.ErrLength
		}
		return hex.DecodeString(v)
	},
	base64.StdEncoding.DecodeString,
	base64.RawStdEncoding.DecodeString,
	base64.RawURLEncoding.DecodeString,
}

// DecodeKey decodes configured secret material. Hex and base64 (standard or URL-safe) values
// are decoded; anything else is used as raw bytes.
func DecodeKey(value string) ([]byte, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil, errEmptyKey
	}

	for _, decode := range keyEncodings {
		if decoded, err := decode(v); err == nil && len(decoded) > 0 {
			return decoded, nil
		}
	}
	return []byte(v), nil
}

// KeyByteLength returns the decoded byte length of a key string, or zero when it is blank.
func KeyByteLength(value string) (int, error) {
	decoded, err := DecodeKey(value)
	if errors.Is(err, errEmptyKey) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return len(decoded), nil
}
