// Package match implements the closed pattern grammar used by assertion
// matching and condition evaluation.
//
// A pattern is matched case-sensitively against a value with exactly four
// forms:
//
//   - "*"        matches any value
//   - "prefix*"  matches any value starting with "prefix"
//   - "*suffix"  matches any value ending with "suffix"
//   - anything else is an exact comparison
//
// The grammar is intentionally not a glob or regular-expression language:
// a '*' anywhere other than the first or last byte is a literal character.
// Keeping the grammar closed makes decision-time matching a handful of
// string comparisons and keeps it independently testable.
package match
