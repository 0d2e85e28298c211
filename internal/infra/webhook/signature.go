// Package webhook implements verification of signed progress callbacks sent
// by remote import workers.
//
// Signing contract (version 1, shared with the worker image — do not change
// one side without the other):
//
//	signature = hex(HMAC-SHA256(secret, canonicalize(body)))
//
// where canonicalize re-serializes the JSON body with object keys sorted
// lexicographically at every depth, arrays kept in order, numbers emitted
// exactly as they appeared in the source document, no insignificant
// whitespace and no HTML escaping. Two semantically identical payloads with
// different key order therefore canonicalize to the same bytes.
package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"photovault-import/internal/domain"
)

// Canonicalize returns the canonical form of a JSON document as defined by
// the version-1 signing contract.
func Canonicalize(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	// json.Number keeps the source literal, so 1.50 does not turn into 1.5
	// and break signature agreement with the worker.
	dec.UseNumber()

	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}

	var buf bytes.Buffer
	if err := writeCanonical(&buf, doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v interface{}) error {
	switch t := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := writeCanonical(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case []interface{}:
		buf.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case json.Number:
		buf.WriteString(t.String())
	default:
		// strings, booleans, null
		b, err := marshalNoEscape(t)
		if err != nil {
			return err
		}
		buf.Write(b)
	}
	return nil
}

func marshalNoEscape(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Sign computes the hex signature for a payload. Used by tests and by the
// worker-side SDK; the orchestrator itself only verifies.
func Sign(secret string, payload []byte) (string, error) {
	canon, err := Canonicalize(payload)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(canon)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify checks a claimed signature against the payload. The comparison is
// constant-time. Returns domain.ErrSignatureMissing when signature is empty
// and domain.ErrSignatureMismatch when it does not match.
func Verify(secret string, payload []byte, signature string) error {
	if signature == "" {
		return domain.ErrSignatureMissing
	}
	expected, err := Sign(secret, payload)
	if err != nil {
		return err
	}
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return domain.ErrSignatureMismatch
	}
	return nil
}
