package pdfextract

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractText_RejectsNonPDF(t *testing.T) {
	for _, in := range []string{"", "hello world", "PK\x03\x04zip"} {
		_, err := ExtractText(strings.NewReader(in))
		assert.ErrorIs(t, err, ErrNotPDF, in)
	}
}

func TestExtractText_TruncatedPDF(t *testing.T) {
	_, err := ExtractText(bytes.NewReader([]byte("%PDF-1.4\n1 0 obj\n")))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotPDF)
}
