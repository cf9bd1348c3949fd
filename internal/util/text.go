package util

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// DecodeText converts raw file bytes to a string using the named encoding.
// Supported encodings are "utf-8" (the default) and "latin-1". A UTF-8 byte
// order mark is dropped.
func DecodeText(data []byte, encoding string) (string, error) {
	switch strings.ToLower(strings.ReplaceAll(encoding, "_", "-")) {
	case "", "utf-8", "utf8":
		data = trimBOM(data)
		if !utf8.Valid(data) {
			return "", fmt.Errorf("invalid utf-8 content")
		}
		return string(data), nil
	case "latin-1", "latin1", "iso-8859-1":
		runes := make([]rune, len(data))
		for i, b := range data {
			runes[i] = rune(b)
		}
		return string(runes), nil
	}
	return "", fmt.Errorf("unsupported encoding %q", encoding)
}

func trimBOM(data []byte) []byte {
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		return data[3:]
	}
	return data
}
