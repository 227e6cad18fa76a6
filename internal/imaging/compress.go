package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// ContentType of every compressed output.
const ContentType = "image/jpeg"

const (
	maxQuality = 85
	minQuality = 35
)

// Options is the normalisation policy.
type Options struct {
	MaxEdge     int
	TargetBytes int64
}

// Result is one normalised image.
type Result struct {
	Data         []byte
	Width        int
	Height       int
	Quality      int
	SourceFormat string
}

// Size is the encoded byte count.
func (r Result) Size() int64 {
	return int64(len(r.Data))
}

// Compress decodes any supported raster, fits it within MaxEdge on its
// longest side and re-encodes as JPEG, picking the highest quality whose
// output stays within TargetBytes. When no quality reaches the target the
// lowest quality result is returned.
func Compress(r io.Reader, opts Options) (Result, error) {
	src, format, err := image.Decode(r)
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return Result{}, ErrUnsupportedFormat
		}
		return Result{}, fmt.Errorf("%w: %v", ErrCorruptImage, err)
	}

	img := fit(src, opts.MaxEdge)
	bounds := img.Bounds()

	best, err := encode(img, maxQuality)
	if err != nil {
		return Result{}, err
	}
	quality := maxQuality

	if opts.TargetBytes > 0 && int64(len(best)) > opts.TargetBytes {
		lo, hi := minQuality, maxQuality-1
		var fallback []byte
		found := false
		for lo <= hi {
			mid := (lo + hi) / 2
			data, err := encode(img, mid)
			if err != nil {
				return Result{}, err
			}
			if int64(len(data)) <= opts.TargetBytes {
				best, quality, found = data, mid, true
				lo = mid + 1
			} else {
				if mid == minQuality {
					fallback = data
				}
				hi = mid - 1
			}
		}
		if !found {
			if fallback == nil {
				if fallback, err = encode(img, minQuality); err != nil {
					return Result{}, err
				}
			}
			best, quality = fallback, minQuality
		}
	}

	return Result{
		Data:         best,
		Width:        bounds.Dx(),
		Height:       bounds.Dy(),
		Quality:      quality,
		SourceFormat: format,
	}, nil
}

// fit scales src so its longest edge is at most maxEdge and flattens any
// alpha channel onto white.
func fit(src image.Image, maxEdge int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxEdge > 0 && (w > maxEdge || h > maxEdge) {
		if w >= h {
			h = max(1, h*maxEdge/w)
			w = maxEdge
		} else {
			w = max(1, w*maxEdge/h)
			h = maxEdge
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	if w == b.Dx() && h == b.Dy() {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
		return dst
	}
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

func encode(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
