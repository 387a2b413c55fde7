package pdfextract

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "A coffee maker for offices", Normalize("  A coffee\n\tmaker   for\r\n offices ", 0))
	assert.Equal(t, "A coffee", Normalize("A coffee maker", 8))
	assert.Equal(t, "Käffee", Normalize("Käffee maschine", 6))
	assert.Equal(t, "", Normalize(" \n\t ", 10))
}

func TestExtractText_Empty(t *testing.T) {
	text, err := ExtractText(bytes.NewReader(nil))
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestExtractBrief_Errors(t *testing.T) {
	_, err := ExtractBrief(bytes.NewReader(nil), 100)
	assert.ErrorIs(t, err, ErrNoText)

	_, err = ExtractBrief(bytes.NewReader([]byte("not a pdf")), 100)
	assert.Error(t, err)
}
