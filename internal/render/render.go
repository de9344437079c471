// Package render prepares page images for display: decode, rotate, and scale
// for the requested quality.
package render

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif" // GIF decoder registration
	"image/jpeg"
	"image/png"
	"strings"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // WebP decoder registration

	"galleryd/internal/gallery"
	"galleryd/internal/services"
)

// Quality selects the output resolution.
type Quality string

const (
	QualityFull Quality = "full"
	QualityLow  Quality = "low"
)

// ParseQuality accepts "", "full" and "low".
func ParseQuality(value string) (Quality, error) {
	switch Quality(strings.ToLower(strings.TrimSpace(value))) {
	case "", QualityFull:
		return QualityFull, nil
	case QualityLow:
		return QualityLow, nil
	default:
		return "", services.Wrap(services.ErrValidation, "render", "quality", fmt.Sprintf("unknown quality %q", value), nil)
	}
}

// Options controls one render.
type Options struct {
	Quality  Quality
	Rotation int
}

// Validate rejects rotations other than quarter turns.
func (o Options) Validate() error {
	switch o.Rotation {
	case 0, 90, 180, 270:
		return nil
	default:
		return services.Wrap(services.ErrValidation, "render", "rotation", fmt.Sprintf("rotation %d is not a multiple of 90", o.Rotation), nil)
	}
}

// Output is an encoded image ready to serve.
type Output struct {
	Data        []byte
	ContentType string
}

// ContentType maps a page extension to its MIME type.
func ContentType(ext string) string {
	switch strings.ToLower(ext) {
	case gallery.ExtPNG:
		return "image/png"
	case gallery.ExtWEBP:
		return "image/webp"
	case gallery.ExtGIF:
		return "image/gif"
	default:
		return "image/jpeg"
	}
}

// Render applies opts to the page bytes. Unmodified pages and GIFs, which
// are always served at full quality so animation survives, pass through
// untouched. Transformed JPEGs stay JPEG; everything else is encoded as PNG.
func Render(data []byte, ext string, opts Options) (Output, error) {
	if err := opts.Validate(); err != nil {
		return Output{}, err
	}
	if ext == gallery.ExtGIF || (opts.Quality != QualityLow && opts.Rotation == 0) {
		return Output{Data: data, ContentType: ContentType(ext)}, nil
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Output{}, services.Wrap(services.ErrValidation, "render", "decode", fmt.Sprintf("%s page", ext), err)
	}
	if opts.Quality == QualityLow {
		img = halve(img)
	}
	img = rotate(img, opts.Rotation)

	var buf bytes.Buffer
	if format == "jpeg" {
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
			return Output{}, fmt.Errorf("encode jpeg: %w", err)
		}
		return Output{Data: buf.Bytes(), ContentType: "image/jpeg"}, nil
	}
	if err := png.Encode(&buf, img); err != nil {
		return Output{}, fmt.Errorf("encode png: %w", err)
	}
	return Output{Data: buf.Bytes(), ContentType: "image/png"}, nil
}

func halve(src image.Image) image.Image {
	bounds := src.Bounds()
	width := max(bounds.Dx()/2, 1)
	height := max(bounds.Dy()/2, 1)
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, bounds, draw.Src, nil)
	return dst
}

// rotate turns src clockwise by degrees, which must be a quarter turn.
func rotate(src image.Image, degrees int) image.Image {
	if degrees == 0 {
		return src
	}
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	var dst *image.RGBA
	if degrees == 180 {
		dst = image.NewRGBA(image.Rect(0, 0, w, h))
	} else {
		dst = image.NewRGBA(image.Rect(0, 0, h, w))
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := src.At(b.Min.X+x, b.Min.Y+y)
			switch degrees {
			case 90:
				dst.Set(h-1-y, x, c)
			case 180:
				dst.Set(w-1-x, h-1-y, c)
			case 270:
				dst.Set(y, w-1-x, c)
			}
		}
	}
	return dst
}
