// Package preview turns image payloads into small local representations the
// rendering layer can display while the real upload is still in flight.
// Generation is best-effort: callers log failures and move on.
package preview

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
)

// maxDimension bounds the longer side of a generated preview.
const maxDimension = 320

// Generate decodes an image payload, downsamples it to at most
// maxDimension on the longer side, and returns it as a PNG data URI.
func Generate(ctx context.Context, mimeType string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !strings.HasPrefix(strings.ToLower(mimeType), "image/") {
		return "", fmt.Errorf("preview: not an image: %q", mimeType)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("preview: decode: %w", err)
	}

	img = downsample(img, maxDimension)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("preview: encode: %w", err)
	}

	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// downsample shrinks img with nearest-neighbor sampling so its longer side
// is at most maxDim. Images already small enough pass through untouched.
func downsample(img image.Image, maxDim int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	longer := w
	if h > longer {
		longer = h
	}
	if longer <= maxDim {
		return img
	}

	scale := float64(longer) / float64(maxDim)
	nw := int(float64(w) / scale)
	nh := int(float64(h) / scale)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	out := image.NewRGBA(image.Rect(0, 0, nw, nh))
	for y := 0; y < nh; y++ {
		sy := b.Min.Y + int(float64(y)*scale)
		for x := 0; x < nw; x++ {
			sx := b.Min.X + int(float64(x)*scale)
			out.Set(x, y, img.At(sx, sy))
		}
	}
	return out
}
