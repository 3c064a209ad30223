package mimetypes

import (
	"testing"

	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

func TestNormalize(t *testing.T) {
	req := require.New(t)
	req.Equal("text/plain", Normalize("Text/Plain; charset=utf-8"))
	req.Equal("application/pdf", Normalize("application/pdf"))
	req.Equal("not a mime", Normalize(" Not a MIME "))
}

func TestReconcile(t *testing.T) {
	tests := []struct {
		name     string
		declared string
		sample   []byte
		want     string
		wantOK   bool
	}{
		{"No sample keeps declared type", "application/pdf", nil, "application/pdf", true},
		{"Matching image", "image/png", pngHeader, "image/png", true},
		{"Image declared as pdf", "application/pdf", pngHeader, "image/png", false},
		{"Plain text with parameters", "text/plain; charset=utf-8", []byte("lecture notes for week 3"), "text/plain", true},
		{"Nothing declared", "", pngHeader, "image/png", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			got, ok := Reconcile(tt.declared, tt.sample)
			req.Equal(tt.want, got)
			req.Equal(tt.wantOK, ok)
		})
	}
}
