// Package pdf renders a submission as a one-page PDF: the ID photo fitted
// into a 400x400pt box, followed by the submitted details.
package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-pdf/fpdf"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"

	"formvault/internal/intake/models"
	"formvault/internal/platform/metrics"
	"formvault/pkg/requestcontext"
)

const (
	photoBox      = 400.0
	margin        = 72.0
	maxPhotoBytes = 32 << 20
)

// Fallback lines printed in place of the photo.
const (
	TextImageNotFound = "ID image not found."
	TextImageError    = "Error displaying image."
)

var errUnsupportedImage = errors.New("unsupported image type")

// Opener opens stored photos by their relative path.
type Opener interface {
	Open(name string) (*os.File, error)
}

// Renderer writes submission PDFs.
type Renderer struct {
	files   Opener
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Renderer)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Renderer) {
		r.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Renderer) {
		r.metrics = m
	}
}

func New(files Opener, opts ...Option) *Renderer {
	r := &Renderer{files: files, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render writes the PDF for sub to w. A missing or undecodable photo is
// replaced by a fallback line; only document and write errors are returned.
func (r *Renderer) Render(ctx context.Context, w io.Writer, sub *models.Submission) error {
	doc := fpdf.New("P", "pt", "Letter", "")
	doc.SetMargins(margin, margin, margin)
	doc.SetAutoPageBreak(true, margin)
	doc.AddPage()
	tr := doc.UnicodeTranslatorFromDescriptor("")

	doc.SetFont("Helvetica", "", 12)
	if err := r.placePhoto(doc, sub.IDFilePath); err != nil {
		text := TextImageError
		if errors.Is(err, fs.ErrNotExist) {
			text = TextImageNotFound
		} else {
			r.logger.WarnContext(ctx, "failed to embed ID photo",
				"request_id", requestcontext.RequestID(ctx),
				"submission_id", sub.ID,
				"error", err,
			)
		}
		doc.Cell(0, 16, tr(text))
		doc.Ln(24)
	}

	doc.SetFont("Helvetica", "", 16)
	for _, line := range []string{
		"Full Name: " + sub.FullName,
		"Bank: " + sub.Bank,
		"Submitted at: " + sub.Timestamp.UTC().Format("1/2/2006, 3:04:05 PM MST"),
	} {
		doc.MultiCell(0, 20, tr(line), "", "L", false)
	}

	if err := doc.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	r.metrics.IncrementPDFsRendered()
	return nil
}

// placePhoto draws the photo centred in the photo box and moves the cursor
// below it.
func (r *Renderer) placePhoto(doc *fpdf.Fpdf, path string) error {
	if path == "" {
		return fs.ErrNotExist
	}
	f, err := r.files.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxPhotoBytes+1))
	if err != nil {
		return fmt.Errorf("read photo: %w", err)
	}
	if len(data) > maxPhotoBytes {
		return fmt.Errorf("photo exceeds %d bytes", maxPhotoBytes)
	}

	imageType, data, err := normalizeImage(data)
	if err != nil {
		return err
	}

	opts := fpdf.ImageOptions{ImageType: imageType}
	info := doc.RegisterImageOptionsReader(path, opts, bytes.NewReader(data))
	if doc.Err() {
		err := doc.Error()
		doc.ClearError()
		return fmt.Errorf("register photo: %w", err)
	}

	w, h := info.Width(), info.Height()
	if w <= 0 || h <= 0 {
		return fmt.Errorf("photo has no size")
	}
	scale := photoBox / w
	if s := photoBox / h; s < scale {
		scale = s
	}
	w, h = w*scale, h*scale

	x, y := doc.GetXY()
	doc.ImageOptions(path, x+(photoBox-w)/2, y+(photoBox-h)/2, w, h, false, opts, 0, "")
	doc.SetY(y + photoBox + 16)
	return nil
}

// normalizeImage returns an fpdf image type for data, converting formats fpdf
// cannot embed into PNG.
func normalizeImage(data []byte) (string, []byte, error) {
	mt := mimetype.Detect(data)
	var decode func(io.Reader) (image.Image, error)
	switch {
	case mt.Is("image/jpeg"):
		return "JPG", data, nil
	case mt.Is("image/png"):
		return "PNG", data, nil
	case mt.Is("image/gif"):
		return "GIF", data, nil
	case mt.Is("image/webp"):
		decode = webp.Decode
	case mt.Is("image/bmp"):
		decode = bmp.Decode
	case mt.Is("image/tiff"):
		decode = tiff.Decode
	default:
		return "", nil, fmt.Errorf("%w: %s", errUnsupportedImage, mt.String())
	}

	img, err := decode(bytes.NewReader(data))
	if err != nil {
		return "", nil, fmt.Errorf("decode %s: %w", mt.String(), err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", nil, fmt.Errorf("convert %s to png: %w", mt.String(), err)
	}
	return "PNG", buf.Bytes(), nil
}
