package extractor

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"
)

// baseDPI is the PDF user-space resolution; scale 1.0 renders at 72 DPI.
const baseDPI = 72

// DefaultRenderScale is the upscaling applied to scanned pages before the
// vision call.
const DefaultRenderScale = 2.5

// DetectRasterizer reports which page rasterizer is on PATH: "pdftoppm"
// (Poppler), "magick" (ImageMagick), or "" when neither is installed.
func DetectRasterizer() string {
	if _, err := exec.LookPath("pdftoppm"); err == nil {
		return "pdftoppm"
	}
	if _, err := exec.LookPath("magick"); err == nil {
		return "magick"
	}
	return ""
}

// Rasterizer renders pages of one PDF to PNG, one page per call. The PDF is
// spooled to a private temp directory that Close removes.
type Rasterizer struct {
	tool    string
	dir     string
	pdfPath string
	dpi     int
	logger  *zap.Logger
}

// NewRasterizer prepares data for page rendering at scale × 72 DPI.
func NewRasterizer(data []byte, scale float64, logger *zap.Logger) (*Rasterizer, error) {
	tool := DetectRasterizer()
	if tool == "" {
		return nil, fmt.Errorf("cannot render PDF pages: install Poppler (pdftoppm) or ImageMagick (magick)")
	}
	if scale <= 0 {
		scale = DefaultRenderScale
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	dir, err := os.MkdirTemp("", "contractforge-render-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	pdfPath := filepath.Join(dir, "source.pdf")
	if err := os.WriteFile(pdfPath, data, 0600); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to spool pdf: %w", err)
	}

	return &Rasterizer{
		tool:    tool,
		dir:     dir,
		pdfPath: pdfPath,
		dpi:     int(math.Round(baseDPI * scale)),
		logger:  logger,
	}, nil
}

// DPI is the effective render resolution.
func (r *Rasterizer) DPI() int { return r.dpi }

// RenderPage renders the 1-based page to PNG bytes. The bitmap file is
// removed before returning.
func (r *Rasterizer) RenderPage(ctx context.Context, page int) ([]byte, string, error) {
	if page < 1 {
		return nil, "", fmt.Errorf("invalid page %d", page)
	}
	prefix := filepath.Join(r.dir, fmt.Sprintf("page-%d", page))
	outPath := prefix + ".png"
	defer os.Remove(outPath)

	var cmd *exec.Cmd
	switch r.tool {
	case "pdftoppm":
		p := strconv.Itoa(page)
		cmd = exec.CommandContext(ctx, "pdftoppm", "-png", "-r", strconv.Itoa(r.dpi),
			"-f", p, "-l", p, "-singlefile", r.pdfPath, prefix)
	default:
		cmd = exec.CommandContext(ctx, "magick", "-density", strconv.Itoa(r.dpi),
			fmt.Sprintf("%s[%d]", r.pdfPath, page-1), outPath)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, "", fmt.Errorf("%s page %d: %v (stderr: %s)", r.tool, page, err, stderr.String())
	}

	img, err := os.ReadFile(outPath)
	if err != nil {
		return nil, "", fmt.Errorf("read rendered page %d: %w", page, err)
	}
	r.logger.Debug("rendered page", zap.Int("page", page), zap.Int("dpi", r.dpi), zap.Int("bytes", len(img)))
	return img, "image/png", nil
}

// Close removes the spooled PDF and any leftover bitmaps.
func (r *Rasterizer) Close() error {
	return os.RemoveAll(r.dir)
}
