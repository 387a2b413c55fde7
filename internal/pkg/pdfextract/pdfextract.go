package pdfextract

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

var ErrNoText = errors.New("pdf has no extractable text")

// ExtractText reads the entire content of r and extracts plain text from the PDF.
// Returns empty string and nil error if the PDF has no extractable text.
func ExtractText(r io.Reader) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	if len(b) == 0 {
		return "", nil
	}
	pdfReader, err := pdf.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return "", err
	}
	plainReader, err := pdfReader.GetPlainText()
	if err != nil {
		return "", err
	}
	out, err := io.ReadAll(plainReader)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// ExtractBrief turns an uploaded product brief into a prompt: whitespace is
// collapsed and the result is cut to at most maxChars runes (0 means no cap).
func ExtractBrief(r io.Reader, maxChars int) (string, error) {
	raw, err := ExtractText(r)
	if err != nil {
		return "", err
	}
	brief := Normalize(raw, maxChars)
	if brief == "" {
		return "", ErrNoText
	}
	return brief, nil
}

// Normalize collapses runs of whitespace into single spaces and truncates on
// a rune boundary.
func Normalize(text string, maxChars int) string {
	collapsed := strings.Join(strings.Fields(text), " ")
	if maxChars <= 0 || utf8.RuneCountInString(collapsed) <= maxChars {
		return collapsed
	}
	runes := []rune(collapsed)
	return strings.TrimSpace(string(runes[:maxChars]))
}
