// Package crypto signs oracle payloads so downstream consumers can verify
// that a snapshot was produced by this engine and has not been altered.
//
// Signatures are HMAC-SHA256 over a canonical JSON serialization: object
// keys sorted lexicographically at every nesting level, array order
// preserved, standard JSON primitive encoding. Two payloads that are
// structurally equal always sign to the same value regardless of map
// iteration order.
package crypto

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// ErrMissingSecret is returned by NewSigner when no signing secret is
// configured. Unsigned oracle data must never be published, so this is
// fatal at startup.
var ErrMissingSecret = errors.New("crypto: signing secret is required")

// Signer produces deterministic payload signatures.
type Signer struct {
	secret []byte
}

// NewSigner creates a Signer from the shared secret. An empty secret is an
// error, never a silent no-op.
func NewSigner(secret string) (*Signer, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	return &Signer{secret: []byte(secret)}, nil
}

// Sign returns the lowercase hex HMAC-SHA256 of the canonical form of
// payload.
func (s *Signer) Sign(payload any) (string, error) {
	canonical, err := Canonicalize(payload)
	if err != nil {
		return "", fmt.Errorf("crypto: canonicalize payload: %w", err)
	}
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(canonical)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify reports whether signature matches payload. Comparison is constant
// time.
func (s *Signer) Verify(payload any, signature string) (bool, error) {
	want, err := s.Sign(payload)
	if err != nil {
		return false, err
	}
	return hmac.Equal([]byte(want), []byte(signature)), nil
}

// Canonicalize renders payload as canonical JSON. The payload is first
// round-tripped through encoding/json so arbitrary structs and maps reduce
// to the same primitive tree before ordering is applied.
func Canonicalize(payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber() // keep numeric literals byte-exact
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, err
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
		buf.WriteString(val.String())
	case string:
		enc, err := json.Marshal(val)
		if err != nil {
			return err
		}
		buf.Write(enc)
	case []any:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			enc, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(enc)
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("crypto: unsupported canonical value %T", v)
	}
	return nil
}
