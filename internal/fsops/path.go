package fsops

import "strings"

// URIPrefix is stripped from incoming paths; bridge clients sometimes send
// file URIs instead of plain paths.
const URIPrefix = "file://"

// NormalizePath turns a client supplied path or file URI into a plain path
func NormalizePath(p string) string {
	return strings.TrimPrefix(p, URIPrefix)
}
