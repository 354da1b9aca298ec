// Package idgen generates the content checksums and surrogate identifiers
// used by the schema graph. Checksum computation is grounded on the
// teacher's hash-based issue ID generator (internal/idgen in the teacher
// repo): a stable content string is built from ordered fields, then hashed.
// This package swaps sha256+base36 (issue IDs, which need to be short and
// collision-resistant under a human-chosen prefix) for crypto/md5 hex
// (attribute checksums, spec-mandated as "md5 of the concatenation").
package idgen

import (
	"crypto/md5" //nolint:gosec // spec.md §4.3 explicitly mandates md5 for attribute checksums
	"encoding/hex"
	"strings"

	"github.com/dynaform/core/internal/types"
)

// ChecksumAttribute computes the 32-hex content fingerprint described in
// spec.md §4.3: md5 of the whitespace-normalized concatenation of owning
// schema name, attribute name, title, description, type, effective
// is_collection, effective is_required, and each choice's (order, title,
// value) tuple in declared order. schemaName is the owning schema's Name;
// both backends persist attributes only as part of their owning schema and
// compute the checksum there (see storage/dolt/schema.go).
func ChecksumAttribute(schemaName string, a *types.Attribute) string {
	inputs := a.ChecksumInputs(schemaName)
	sum := md5.Sum([]byte(strings.Join(inputs, "")))
	return hex.EncodeToString(sum[:])
}

// VerifyAttribute recomputes a's checksum and reports whether it matches the
// stored value, per spec.md §8 invariant 4 / §7 CorruptAttributeError.
func VerifyAttribute(schemaName string, a *types.Attribute) (ok bool, recomputed string) {
	recomputed = ChecksumAttribute(schemaName, a)
	return recomputed == a.Checksum, recomputed
}
