package extractor

import (
	"mime"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"contractforge/internal/apperr"
)

// Source is an uploaded file.
type Source struct {
	Name     string
	MIMEType string
	Data     []byte
}

// Kind is the processing path chosen for a source.
type Kind int

const (
	KindUnknown Kind = iota
	KindWord
	KindImage
	KindTextPDF
	KindScannedPDF
)

// String returns the short type tag used in import descriptions and logs.
func (k Kind) String() string {
	switch k {
	case KindWord:
		return "docx"
	case KindImage:
		return "image"
	case KindTextPDF:
		return "pdf-text"
	case KindScannedPDF:
		return "pdf-scanned"
	default:
		return "unknown"
	}
}

// Format is the container format, decided from name and MIME type alone.
type Format int

const (
	FormatUnknown Format = iota
	FormatWord
	FormatPDF
	FormatImage
)

const (
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimePDF  = "application/pdf"
)

// DefaultTextThreshold is the average characters per page above which a
// PDF is considered text-bearing.
const DefaultTextThreshold = 50

// ErrUnsupported is returned for files that are not PDF, Word or image.
var ErrUnsupported = &apperr.Error{Kind: apperr.KindUnsupported}

// DetectFormat classifies by extension and declared MIME type. Word is
// checked first, then PDF, then images.
func DetectFormat(name, mimeType string) Format {
	ext := strings.ToLower(filepath.Ext(name))
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}

	switch {
	case ext == ".docx" || mimeType == mimeDOCX:
		return FormatWord
	case ext == ".pdf" || mimeType == mimePDF:
		return FormatPDF
	case strings.HasPrefix(mimeType, "image/"):
		return FormatImage
	}
	if byExt := mime.TypeByExtension(ext); strings.HasPrefix(byExt, "image/") {
		return FormatImage
	}
	return FormatUnknown
}

// ImageMIMEType returns the declared type when it is an image type, or the
// type implied by the file extension.
func ImageMIMEType(name, mimeType string) string {
	if strings.HasPrefix(strings.ToLower(mimeType), "image/") {
		return mimeType
	}
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); byExt != "" {
		return byExt
	}
	return "image/png"
}

// ClassifyPDF decides between the text-bearing and scanned paths. The
// average is over trimmed page text and must strictly exceed threshold.
func ClassifyPDF(pageTexts []string, threshold float64) Kind {
	if len(pageTexts) == 0 {
		return KindScannedPDF
	}
	total := 0
	for _, p := range pageTexts {
		total += utf8.RuneCountInString(strings.TrimSpace(p))
	}
	avg := float64(total) / float64(len(pageTexts))
	if avg > threshold {
		return KindTextPDF
	}
	return KindScannedPDF
}

// Classification is the outcome of Classify. PageTexts and PageCount are
// only populated for PDFs.
type Classification struct {
	Kind      Kind
	PageTexts []string
	PageCount int
}

// Classify picks the processing path for src. PDFs have their text layer
// read once here so the text path can reuse it.
func Classify(src Source, threshold float64) (Classification, error) {
	switch DetectFormat(src.Name, src.MIMEType) {
	case FormatWord:
		return Classification{Kind: KindWord}, nil
	case FormatImage:
		return Classification{Kind: KindImage, PageCount: 1}, nil
	case FormatPDF:
		pages, err := ReadPDFText(src.Data)
		if err != nil {
			return Classification{}, err
		}
		if len(pages) == 0 {
			return Classification{}, apperr.New(apperr.KindInvalid, "classify", "pdf has no pages")
		}
		return Classification{
			Kind:      ClassifyPDF(pages, threshold),
			PageTexts: pages,
			PageCount: len(pages),
		}, nil
	default:
		return Classification{}, &apperr.Error{
			Kind:    apperr.KindUnsupported,
			Op:      "classify",
			Message: "unsupported file type " + describe(src) + ": please upload a PDF, Word document (.docx), or image file",
		}
	}
}

func describe(src Source) string {
	if src.MIMEType != "" {
		return src.MIMEType
	}
	if ext := filepath.Ext(src.Name); ext != "" {
		return ext
	}
	return "(unknown)"
}
