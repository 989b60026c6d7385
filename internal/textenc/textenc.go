// Package textenc decodes file contents of unknown encoding into UTF-8.
package textenc

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Decode converts b to a UTF-8 string. Valid UTF-8 is returned as is (minus
// a byte order mark). Otherwise the charset is detected; when detection
// fails the bytes are read as Latin-1, which never fails.
// The returned name is the charset that was used.
func Decode(b []byte) (string, string, error) {
	b = bytes.TrimPrefix(b, utf8BOM)
	if utf8.Valid(b) {
		return string(b), "UTF-8", nil
	}

	enc, name := detect(b)
	out, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		out, err = charmap.ISO8859_1.NewDecoder().Bytes(b)
		if err != nil {
			return "", "", fmt.Errorf("decode text: %w", err)
		}
		name = "ISO-8859-1"
	}
	return string(out), name, nil
}

// ReadFile reads and decodes a file.
func ReadFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	s, _, err := Decode(b)
	return s, err
}

func detect(b []byte) (encoding.Encoding, string) {
	res, err := chardet.NewTextDetector().DetectBest(b)
	if err == nil && res != nil && !strings.EqualFold(res.Charset, "UTF-8") {
		if enc, err := htmlindex.Get(res.Charset); err == nil && enc != nil {
			return enc, res.Charset
		}
	}
	return charmap.ISO8859_1, "ISO-8859-1"
}
