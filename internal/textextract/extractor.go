// Package textextract converts attachment bytes into text. Documents
// with a text layer are read directly; scanned documents and images go
// through optical character recognition.
package textextract

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/ledongthuc/pdf"
	"github.com/otiai10/gosseract/v2"
	"github.com/sirupsen/logrus"

	"referral-triage-go/internal/config"
	"referral-triage-go/internal/model"
	"referral-triage-go/internal/retry"
)

// Extractor turns attachment blobs into text.
type Extractor struct {
	ocrEnabled bool
	languages  []string
	dpi        int
	maxBytes   int64
}

// New creates an extractor from the OCR and pipeline configuration.
func New(ocrCfg config.OCRConfig, pipeCfg config.PipelineConfig) *Extractor {
	dpi := ocrCfg.DPI
	if dpi <= 0 {
		dpi = 300
	}
	language := ocrCfg.Language
	if language == "" {
		language = "spa+eng"
	}
	return &Extractor{
		ocrEnabled: ocrCfg.Enabled,
		languages:  strings.Split(language, "+"),
		dpi:        dpi,
		maxBytes:   pipeCfg.MaxAttachmentBytes,
	}
}

// Extract converts one attachment's bytes into text. Oversized blobs are
// rejected before any parsing with a permanent validation error.
// Unsupported content types are permanent content errors. The caller
// treats any error as affecting this attachment only.
func (e *Extractor) Extract(ctx context.Context, blob *model.AttachmentBlob) (string, error) {
	if e.maxBytes > 0 && blob.Size() > e.maxBytes {
		return "", retry.Permanentf("attachment %s exceeds size limit (%d > %d bytes)",
			blob.Filename, blob.Size(), e.maxBytes)
	}

	if err := ctx.Err(); err != nil {
		return "", retry.Transientf("extraction cancelled: %w", err)
	}

	switch kind(blob) {
	case kindPDF:
		return e.extractPDF(blob)
	case kindImage:
		return e.extractImage(blob)
	case kindText:
		return string(blob.Data), nil
	case kindHTML:
		text, err := HTMLToText(string(blob.Data))
		if err != nil {
			return "", retry.Permanentf("failed to parse HTML attachment %s: %w", blob.Filename, err)
		}
		return text, nil
	default:
		return "", retry.Permanentf("unsupported attachment type %s (%s)", blob.ContentType, blob.Filename)
	}
}

type attachmentKind int

const (
	kindUnknown attachmentKind = iota
	kindPDF
	kindImage
	kindText
	kindHTML
)

// kind dispatches on content type, falling back to the filename
// extension when the provider sent a generic type.
func kind(blob *model.AttachmentBlob) attachmentKind {
	ct := strings.ToLower(blob.ContentType)
	switch {
	case strings.Contains(ct, "application/pdf"):
		return kindPDF
	case strings.HasPrefix(ct, "image/"):
		return kindImage
	case strings.Contains(ct, "text/html"):
		return kindHTML
	case strings.HasPrefix(ct, "text/"):
		return kindText
	}

	switch strings.ToLower(filepath.Ext(blob.Filename)) {
	case ".pdf":
		return kindPDF
	case ".png", ".jpg", ".jpeg", ".tif", ".tiff", ".bmp":
		return kindImage
	case ".txt":
		return kindText
	case ".html", ".htm":
		return kindHTML
	}

	return kindUnknown
}

// extractPDF reads the document's text layer. When no text layer exists
// (scanned pages) and OCR is enabled, the pages are rendered at the
// configured DPI and recognized like images.
func (e *Extractor) extractPDF(blob *model.AttachmentBlob) (string, error) {
	text, err := pdfTextLayer(blob.Data)
	if err != nil {
		logrus.Warnf("Failed to read text layer of %s, trying OCR: %v", blob.Filename, err)
	}
	if strings.TrimSpace(text) != "" {
		return text, nil
	}

	if !e.ocrEnabled {
		if err != nil {
			return "", retry.Permanentf("corrupt PDF %s: %w", blob.Filename, err)
		}
		return "", nil
	}

	return e.ocrPDFPages(blob)
}

// pdfTextLayer extracts the embedded text of a PDF.
func pdfTextLayer(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("failed to extract PDF text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", fmt.Errorf("failed to read PDF text: %w", err)
	}
	return buf.String(), nil
}

// ocrPDFPages renders each page to an image at the configured DPI and
// runs recognition over it.
func (e *Extractor) ocrPDFPages(blob *model.AttachmentBlob) (string, error) {
	doc, err := fitz.NewFromMemory(blob.Data)
	if err != nil {
		return "", retry.Permanentf("failed to render PDF %s: %w", blob.Filename, err)
	}
	defer doc.Close()

	var sb strings.Builder
	for page := 0; page < doc.NumPage(); page++ {
		img, err := doc.ImageDPI(page, float64(e.dpi))
		if err != nil {
			return "", retry.Permanentf("failed to render page %d of %s: %w", page+1, blob.Filename, err)
		}

		var encoded bytes.Buffer
		if err := png.Encode(&encoded, img); err != nil {
			return "", retry.Permanentf("failed to encode page %d of %s: %w", page+1, blob.Filename, err)
		}

		text, err := e.recognize(encoded.Bytes())
		if err != nil {
			return "", err
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}

	return sb.String(), nil
}

// extractImage runs recognition over a single image attachment.
func (e *Extractor) extractImage(blob *model.AttachmentBlob) (string, error) {
	if !e.ocrEnabled {
		return "", retry.Permanentf("OCR disabled, cannot extract image attachment %s", blob.Filename)
	}
	return e.recognize(blob.Data)
}

// recognize runs tesseract over image bytes. A fresh client per call:
// gosseract clients are not safe for concurrent use across workers.
func (e *Extractor) recognize(data []byte) (string, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(e.languages...); err != nil {
		return "", retry.Permanentf("failed to set OCR language: %w", err)
	}
	if err := client.SetVariable("user_defined_dpi", strconv.Itoa(e.dpi)); err != nil {
		return "", retry.Permanentf("failed to set OCR DPI: %w", err)
	}
	if err := client.SetImageFromBytes(data); err != nil {
		return "", retry.Permanentf("failed to load image for OCR: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", retry.Permanentf("OCR failed: %w", err)
	}
	return text, nil
}
