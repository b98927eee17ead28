// SPDX-License-Identifier: MIT

package persist

import "strings"

// newlineToken stands in for newlines inside stored values because the INI
// backend is not newline-safe. The substitution is its own inverse as long
// as the token never appears in real PEM data, which base64 guarantees.
const newlineToken = "$CR$"

// EncodeNewlines replaces newlines with the sentinel token.
func EncodeNewlines(s string) string {
	return strings.ReplaceAll(s, "\n", newlineToken)
}

// DecodeNewlines restores newlines from the sentinel token.
func DecodeNewlines(s string) string {
	return strings.ReplaceAll(s, newlineToken, "\n")
}
