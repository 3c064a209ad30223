// Package mimetypes reconciles the MIME type declared for an upload with the
// type sniffed from its first bytes.
package mimetypes

import (
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const OctetStream = "application/octet-stream"

// Normalize drops parameters and case: "Text/Plain; charset=utf-8" gives "text/plain".
func Normalize(m string) string {
	mt, _, err := mime.ParseMediaType(m)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(m))
	}
	return mt
}

// Reconcile returns the type to record for an upload. The declared type is
// kept when the sample is empty, unrecognized, or detected as the declared
// type or one of its descendants. Otherwise the detected type wins and ok is false.
func Reconcile(declared string, sample []byte) (string, bool) {
	declared = Normalize(declared)
	if len(sample) == 0 {
		return declared, true
	}
	detected := mimetype.Detect(sample)
	if detected.Is(OctetStream) {
		return declared, true
	}
	if declared == "" {
		return Normalize(detected.String()), true
	}
	for d := detected; d != nil; d = d.Parent() {
		if d.Is(declared) {
			return declared, true
		}
	}
	return Normalize(detected.String()), false
}
