// Package genid produces the identifiers used by the resource store.
//
// Two kinds are supported: collision-resistant random ids for new
// documents, and deterministic content-hash ids for records that must get
// the same id for the same input (seeded fixtures, token lookups). Random
// ids carry no global uniqueness guarantee; callers surface insertion-time
// collisions as conflicts.
package genid

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Alphabet is the default 64-symbol URL-safe digit set.
const Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

// DefaultRandomLength is the digit count of Random ids.
const DefaultRandomLength = 10

// DefaultHashLength is the digit count of ContentHash ids.
const DefaultHashLength = 8

// fallbackSecret keys content hashes when no secret is configured.
const fallbackSecret = "indecisive-content-hash"

var hashSecret = []byte(fallbackSecret)

// SetHashSecret replaces the HMAC key used by ContentHash. An empty secret
// restores the built-in fallback.
func SetHashSecret(secret string) {
	if secret == "" {
		hashSecret = []byte(fallbackSecret)
		return
	}
	hashSecret = []byte(secret)
}

// Random returns a random id of length n (DefaultRandomLength if n <= 0).
// A high-entropy sample is summed with a monotonic nanosecond reading so
// rapid sequential calls diverge without leaking the raw timer value, then
// the result is encoded over Alphabet.
func Random(n int) string {
	if n <= 0 {
		n = DefaultRandomLength
	}
	var buf [8]byte
	// crypto/rand never fails on supported platforms; fall back to the
	// timer alone if it somehow does.
	_, _ = rand.Read(buf[:])
	v := binary.BigEndian.Uint64(buf[:]) + uint64(time.Now().UnixNano())

	// One uint64 yields at most 11 base-64 digits; extend with further
	// entropy for longer ids.
	out := make([]byte, 0, n)
	for len(out) < n {
		chunk := min(n-len(out), 10)
		out = append(out, Encode(v, chunk, Alphabet)...)
		_, _ = rand.Read(buf[:])
		v = binary.BigEndian.Uint64(buf[:])
	}
	return string(out[:n])
}

// ContentHash returns a deterministic id of length n (DefaultHashLength if
// n <= 0) for the given document: canonical JSON serialization, keyed
// HMAC-SHA-256, base64url.
func ContentHash(doc any, n int) (string, error) {
	if n <= 0 {
		n = DefaultHashLength
	}
	canonical, err := canonicalJSON(doc)
	if err != nil {
		return "", fmt.Errorf("cannot canonicalize document: %w", err)
	}
	mac := hmac.New(sha256.New, hashSecret)
	mac.Write(canonical)
	sum := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	if n > len(sum) {
		n = len(sum)
	}
	return sum[:n], nil
}

// canonicalJSON serializes doc with stable key ordering by round-tripping
// through generic values: encoding/json sorts map keys on output.
func canonicalJSON(doc any) ([]byte, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}

// Encode renders v as n digits over the given alphabet (Alphabet if
// empty). With n <= 0 the minimal representation is used. Values needing
// more than n digits are truncated to the n least significant digits.
func Encode(v uint64, n int, alphabet string) string {
	if alphabet == "" {
		alphabet = Alphabet
	}
	base := uint64(len(alphabet))
	var sb []byte
	for v > 0 {
		sb = append(sb, alphabet[v%base])
		v /= base
	}
	if len(sb) == 0 {
		sb = append(sb, alphabet[0])
	}
	// Digits were emitted least-significant first.
	for i, j := 0, len(sb)-1; i < j; i, j = i+1, j-1 {
		sb[i], sb[j] = sb[j], sb[i]
	}
	if n <= 0 {
		return string(sb)
	}
	if len(sb) > n {
		return string(sb[len(sb)-n:])
	}
	return strings.Repeat(string(alphabet[0]), n-len(sb)) + string(sb)
}

// ErrBadDigit is returned by Decode for characters outside the alphabet.
var ErrBadDigit = errors.New("genid: character not in alphabet")

// Decode parses s as a number over the given alphabet (Alphabet if
// empty). Decode(Encode(v, n, a), a) == v for every v representable in n
// digits.
func Decode(s, alphabet string) (uint64, error) {
	if alphabet == "" {
		alphabet = Alphabet
	}
	base := uint64(len(alphabet))
	var v uint64
	for _, r := range s {
		idx := strings.IndexRune(alphabet, r)
		if idx < 0 {
			return 0, fmt.Errorf("%w: %q", ErrBadDigit, r)
		}
		v = v*base + uint64(idx)
	}
	return v, nil
}
