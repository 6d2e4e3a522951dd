// Package extract turns uploaded attachments into text or image data URLs.
package extract

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Media types recognised for documents.
const (
	MediaText = "text/plain"
	MediaPDF  = "application/pdf"
	MediaDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// Kind names a document family a profile may accept.
type Kind string

const (
	KindText Kind = "txt"
	KindPDF  Kind = "pdf"
	KindDOCX Kind = "docx"
)

var (
	// ErrUnsupportedType is returned for attachments we cannot read.
	ErrUnsupportedType = errors.New("unsupported file type")
	// ErrTooLarge is returned when an attachment exceeds the size limit.
	ErrTooLarge = errors.New("file too large")
	// ErrEmptyDocument is returned when no text could be extracted.
	ErrEmptyDocument = errors.New("no readable text in document")
)

var imageTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
}

// Document is extracted document text.
type Document struct {
	Name      string
	MediaType string
	Text      string
}

// Image is a validated image upload.
type Image struct {
	Name      string
	MediaType string
	Data      []byte
}

// DataURL returns the image as a base64 data URL.
func (i Image) DataURL() string {
	return "data:" + i.MediaType + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

// KindOf resolves the document kind from the declared media type, falling
// back to the file extension.
func KindOf(filename, mediaType string) (Kind, bool) {
	mt := strings.ToLower(strings.TrimSpace(strings.Split(mediaType, ";")[0]))
	switch mt {
	case MediaText:
		return KindText, true
	case MediaPDF:
		return KindPDF, true
	case MediaDOCX:
		return KindDOCX, true
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt":
		return KindText, true
	case ".pdf":
		return KindPDF, true
	case ".docx":
		return KindDOCX, true
	}
	return "", false
}

// ReadDocument extracts text from a txt, PDF or DOCX upload of at most limit bytes.
func ReadDocument(filename, mediaType string, r io.Reader, limit int64) (*Document, error) {
	kind, ok := KindOf(filename, mediaType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, filename)
	}

	data, err := readLimited(r, limit)
	if err != nil {
		return nil, err
	}

	var text string
	switch kind {
	case KindText:
		if !utf8.Valid(data) {
			return nil, fmt.Errorf("read text %s: invalid utf-8", filename)
		}
		text = string(data)
	case KindPDF:
		text, err = pdfText(data)
	case KindDOCX:
		text, err = docxText(data)
	}
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", filename, err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: %s", ErrEmptyDocument, filename)
	}

	return &Document{Name: filename, MediaType: mediaTypeFor(kind), Text: text}, nil
}

// ReadImage validates an image upload of at most limit bytes by sniffing its content.
func ReadImage(filename string, r io.Reader, limit int64) (*Image, error) {
	data, err := readLimited(r, limit)
	if err != nil {
		return nil, err
	}
	mt := http.DetectContentType(data)
	if !imageTypes[mt] {
		return nil, fmt.Errorf("%w: %s (%s)", ErrUnsupportedType, filename, mt)
	}
	return &Image{Name: filename, MediaType: mt, Data: data}, nil
}

// Truncate returns at most n runes of s.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if n > limit {
		return nil, ErrTooLarge
	}
	return buf.Bytes(), nil
}

func mediaTypeFor(k Kind) string {
	switch k {
	case KindPDF:
		return MediaPDF
	case KindDOCX:
		return MediaDOCX
	default:
		return MediaText
	}
}
