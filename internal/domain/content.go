package domain

import "strings"

// ContentKind selects how a response body is decoded
type ContentKind string

// Content kinds accepted by the passthrough request path
const (
	KindBinary      ContentKind = "binary"
	KindArrayBuffer ContentKind = "arraybuffer"
	KindBlob        ContentKind = "blob"
	KindJSON        ContentKind = "json"
	KindText        ContentKind = "text"
	KindXML         ContentKind = "xml"
	KindXHTML       ContentKind = "xhtml"
	KindHTML        ContentKind = "html"
	KindHTM         ContentKind = "htm"
)

// ParseContentKind normalizes a kind name. Unknown names are kept as-is and
// decode to raw bytes.
func ParseContentKind(s string) ContentKind {
	return ContentKind(strings.ToLower(strings.TrimSpace(s)))
}

// IsBinary returns true for the kind that goes through the chunked loader
func (k ContentKind) IsBinary() bool {
	return k == KindBinary
}

// IsRaw returns true for kinds whose decoded value is the body bytes
func (k ContentKind) IsRaw() bool {
	switch k {
	case KindBinary, KindArrayBuffer, KindBlob:
		return true
	}
	return false
}
