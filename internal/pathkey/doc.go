// Package pathkey encodes ordered choice sequences into canonical path keys.
//
// A path key is the join of escaped choice identifiers with '/'. The empty
// path maps to the reserved sentinel RootKey. Identifiers are NFC-normalized
// before escaping so visually identical choices produced by different text
// generators land on the same key.
package pathkey
