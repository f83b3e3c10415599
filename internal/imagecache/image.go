package imagecache

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder

	"github.com/bbrks/go-blurhash"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

// ErrDecode is returned when bytes are not a supported image.
var ErrDecode = errors.New("image decode failed")

// blurHashSize bounds the thumbnail used for placeholder hashing.
const blurHashSize = 64

// Image is a validated image. Data holds the encoded bytes exactly as
// received from the network; they are never re-encoded.
type Image struct {
	Data   []byte
	Format string
	Width  int
	Height int
}

// Decode validates data as a jpeg, png, gif or webp image. The pixel data is
// decoded in full so truncated or corrupt bytes are rejected, not just a
// readable header.
func Decode(data []byte) (*Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty data", ErrDecode)
	}

	decoded, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	bounds := decoded.Bounds()
	return &Image{
		Data:   data,
		Format: format,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}, nil
}

// BlurHash computes a short placeholder string that can be drawn while the
// full image is not yet on screen.
func (img *Image) BlurHash() (string, error) {
	decoded, _, err := image.Decode(bytes.NewReader(img.Data))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecode, err)
	}

	hash, err := blurhash.Encode(4, 3, thumbnail(decoded))
	if err != nil {
		return "", fmt.Errorf("encode blurhash: %w", err)
	}
	return hash, nil
}

// thumbnail scales img down so the blurhash pass stays cheap for large photos.
func thumbnail(img image.Image) image.Image {
	bounds := img.Bounds()
	srcWidth, srcHeight := bounds.Dx(), bounds.Dy()

	if srcWidth <= blurHashSize && srcHeight <= blurHashSize {
		return img
	}

	dstWidth, dstHeight := blurHashSize, blurHashSize
	if srcWidth > srcHeight {
		dstHeight = max(1, srcHeight*blurHashSize/srcWidth)
	} else {
		dstWidth = max(1, srcWidth*blurHashSize/srcHeight)
	}

	dst := image.NewRGBA(image.Rect(0, 0, dstWidth, dstHeight))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, bounds, draw.Src, nil)
	return dst
}
