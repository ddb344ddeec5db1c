package index

import (
	"bytes"
	"encoding/json"
	"slices"
	"strings"
	"unicode/utf16"

	"github.com/cockroachdb/errors"
	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical encodes v as canonical JSON.
//
// v is first encoded with encoding/json (so struct tags apply), then
// re-emitted with:
//  1. Object keys sorted by UTF-16 code units (RFC 8785), not UTF-8 bytes
//  2. No HTML escaping and no escaping of U+2028/U+2029
//  3. NFC-normalized strings and keys
//  4. Integers only; floats are rejected
//
// Unlike the hashing form this is derived from, null is allowed: a
// client's first part has no fromVersion.
func MarshalCanonical(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "canonical: encode")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, errors.Wrap(err, "canonical: decode")
	}
	var buf bytes.Buffer
	if err := writeCanonical(&buf, tree); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case json.Number:
		s := val.String()
		if strings.ContainsAny(s, ".eE") {
			return errors.Newf("canonical: floats are forbidden: %s", s)
		}
		buf.WriteString(s)
	case string:
		b, err := marshalCanonicalString(val)
		if err != nil {
			return err
		}
		buf.Write(b)
	case []any:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return errors.Wrapf(err, "[%d]", i)
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		slices.SortFunc(keys, compareUTF16)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := marshalCanonicalString(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return errors.Wrapf(err, "[%q]", k)
			}
		}
		buf.WriteByte('}')
	default:
		return errors.Newf("canonical: unsupported type %T", v)
	}
	return nil
}

// marshalCanonicalString encodes s after NFC normalization with HTML
// escaping disabled. U+2028 and U+2029 are emitted literally.
func marshalCanonicalString(s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(norm.NFC.String(s)); err != nil {
		return nil, errors.Wrap(err, "canonical: string")
	}
	out := bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})
	return unescapeLineSeparators(out), nil
}

// unescapeLineSeparators rewrites \u2028 and \u2029 escapes to the literal
// characters. An escape preceded by an odd run of backslashes is literal
// text (a JSON-escaped backslash followed by "u2028") and is kept.
func unescapeLineSeparators(data []byte) []byte {
	if !bytes.Contains(data, []byte(`\u202`)) {
		return data
	}
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if data[i] == '\\' && i+5 < len(data) && data[i+1] == 'u' &&
			data[i+2] == '2' && data[i+3] == '0' && data[i+4] == '2' &&
			(data[i+5] == '8' || data[i+5] == '9') {
			run := 0
			for j := len(out) - 1; j >= 0 && out[j] == '\\'; j-- {
				run++
			}
			if run%2 == 0 {
				if data[i+5] == '8' {
					out = append(out, "\u2028"...)
				} else {
					out = append(out, "\u2029"...)
				}
				i += 5
				continue
			}
		}
		out = append(out, data[i])
	}
	return out
}

// compareUTF16 orders strings by UTF-16 code units as RFC 8785 requires.
func compareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	return len(a16) - len(b16)
}
