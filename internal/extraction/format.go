package extraction

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"net/http"
	"strings"

	// Registered so DecodeConfig can tell GIF and WebP (accepted) apart from
	// BMP and TIFF (rejected with a conversion hint).
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// SupportedFormats lists the MIME types the vision providers accept inline.
var SupportedFormats = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}

var supportedByDecoder = map[string]string{
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"webp": "image/webp",
}

var fileTypeByMIME = map[string]string{
	"application/pdf":          "pdf",
	"image/svg+xml":            "svg",
	"image/heic":               "heic",
	"image/heif":               "heic",
	"image/bmp":                "bmp",
	"image/x-ms-bmp":           "bmp",
	"image/tiff":               "tiff",
	"application/octet-stream": "binary",
}

var hintByFileType = map[string]string{
	"pdf":    "PDF documents cannot be analyzed as a single image. Convert the page to a PNG or JPEG image, or use multi-instrument analysis, which accepts PDFs.",
	"svg":    "SVG is a vector format. Export or screenshot it as a PNG or JPEG image and upload that instead.",
	"heic":   "HEIC photos are not supported by the vision providers. Convert the photo to JPEG (most phones can share as JPEG) and try again.",
	"bmp":    "BMP images are not supported. Save the image as PNG or JPEG and try again.",
	"tiff":   "TIFF images are not supported. Save the page as PNG or JPEG and try again.",
	"binary": "The file is not a recognized image. Upload a JPEG, PNG, GIF, or WebP image.",
}

// InputFormatError reports a document encoding the extraction path cannot
// send to a vision provider. It is always raised before any provider call.
type InputFormatError struct {
	FileType         string
	MIMEType         string
	Hint             string
	SupportedFormats []string
}

func (e *InputFormatError) Error() string {
	return fmt.Sprintf("unsupported document format %q (%s): %s", e.FileType, e.MIMEType, e.Hint)
}

func newInputFormatError(fileType, mimeType string) *InputFormatError {
	hint, ok := hintByFileType[fileType]
	if !ok {
		hint = hintByFileType["binary"]
	}
	return &InputFormatError{
		FileType:         fileType,
		MIMEType:         mimeType,
		Hint:             hint,
		SupportedFormats: append([]string(nil), SupportedFormats...),
	}
}

// Document is an uploaded document: raw bytes plus the MIME type declared by
// the caller, if any.
type Document struct {
	Data         []byte
	DeclaredMIME string
}

// ParseDataURL decodes "data:<mime>;base64,<payload>". A bare base64 string
// without the data: header is accepted with no declared MIME type.
func ParseDataURL(s string) (Document, error) {
	s = strings.TrimSpace(s)
	var declared string
	payload := s
	if strings.HasPrefix(s, "data:") {
		header, data, ok := strings.Cut(s, ",")
		if !ok {
			return Document{}, newInputFormatError("binary", "")
		}
		meta := strings.TrimPrefix(header, "data:")
		mediaType, params, _ := strings.Cut(meta, ";")
		if !strings.Contains(params, "base64") {
			return Document{}, newInputFormatError(fileTypeFor(mediaType), mediaType)
		}
		declared = strings.ToLower(strings.TrimSpace(mediaType))
		payload = data
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return Document{}, newInputFormatError("binary", declared)
		}
	}
	if len(data) == 0 {
		return Document{}, newInputFormatError("binary", declared)
	}
	return Document{Data: data, DeclaredMIME: declared}, nil
}

// Sniff returns the MIME type detected from the leading bytes.
func Sniff(data []byte) string {
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	switch {
	case bytes.HasPrefix(head, []byte("%PDF-")):
		return "application/pdf"
	case len(head) >= 12 && string(head[4:8]) == "ftyp" && isHEICBrand(string(head[8:12])):
		return "image/heic"
	case bytes.HasPrefix(head, []byte("II*\x00")), bytes.HasPrefix(head, []byte("MM\x00*")):
		return "image/tiff"
	case looksLikeSVG(head):
		return "image/svg+xml"
	}
	return http.DetectContentType(head)
}

// IsPDF reports whether data starts with a PDF header.
func IsPDF(data []byte) bool {
	return Sniff(data) == "application/pdf"
}

// ValidateImage checks that doc decodes as an allow-listed raster image and
// returns its canonical MIME type.
func ValidateImage(doc Document) (string, error) {
	mimeType := doc.DeclaredMIME
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = Sniff(doc.Data)
	}
	if mimeType == "image/jpg" {
		mimeType = "image/jpeg"
	}
	if !isSupported(mimeType) {
		return "", newInputFormatError(fileTypeFor(mimeType), mimeType)
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(doc.Data))
	if err != nil {
		// Declared as an image but the bytes say otherwise.
		sniffed := Sniff(doc.Data)
		return "", newInputFormatError(fileTypeFor(sniffed), sniffed)
	}
	actual, ok := supportedByDecoder[format]
	if !ok {
		return "", newInputFormatError(format, "image/"+format)
	}
	return actual, nil
}

func isSupported(mimeType string) bool {
	for _, m := range SupportedFormats {
		if m == mimeType {
			return true
		}
	}
	return false
}

func fileTypeFor(mimeType string) string {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if ft, ok := fileTypeByMIME[mimeType]; ok {
		return ft
	}
	if sub, ok := strings.CutPrefix(mimeType, "image/"); ok && sub != "" {
		return sub
	}
	return "binary"
}

func isHEICBrand(brand string) bool {
	switch brand {
	case "heic", "heix", "hevc", "hevx", "mif1", "msf1":
		return true
	}
	return false
}

func looksLikeSVG(head []byte) bool {
	trimmed := bytes.TrimSpace(head)
	if bytes.HasPrefix(trimmed, []byte("<svg")) {
		return true
	}
	return bytes.HasPrefix(trimmed, []byte("<?xml")) && bytes.Contains(trimmed, []byte("<svg"))
}
