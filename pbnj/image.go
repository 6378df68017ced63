package pbnj

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidFiletype is returned for output filenames other than .ppm or .png.
var ErrInvalidFiletype = errors.New("pbnj: invalid image filetype")

// ImageFormat selects the encoding of an output image.
type ImageFormat int

const (
	FormatPPM ImageFormat = iota + 1 // binary P6 pixmap
	FormatPNG                        // PNG, RGBA
)

func (f ImageFormat) String() string {
	switch f {
	case FormatPPM:
		return "ppm"
	case FormatPNG:
		return "png"
	}
	return fmt.Sprintf("ImageFormat(%d)", int(f))
}

// FormatFromFilename maps a filename extension to its image format.
func FormatFromFilename(filename string) (ImageFormat, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".ppm":
		return FormatPPM, nil
	case ".png":
		return FormatPNG, nil
	}
	return 0, fmt.Errorf("%q: %w", filename, ErrInvalidFiletype)
}

// composite converts bottom-up engine RGBA rows into a top-down image,
// blending each pixel over bg by its alpha. Channels are truncated, not
// rounded, and the output is opaque.
func composite(pix []uint8, width, height int, bg [3]uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for j := 0; j < height; j++ {
		src := pix[4*width*(height-1-j) : 4*width*(height-j)]
		dst := img.Pix[j*img.Stride : j*img.Stride+4*width]
		for i := 0; i < width; i++ {
			a := float32(float64(src[4*i+3]) / 255)
			for c := 0; c < 3; c++ {
				v := float64(float32(src[4*i+c])*a) + float64(bg[c])*(1-float64(a))
				dst[4*i+c] = uint8(v)
			}
			dst[4*i+3] = 255
		}
	}
	return img
}

// encodePPM writes img as a binary P6 pixmap followed by a newline.
func encodePPM(img *image.RGBA) []byte {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "P6\n%d %d\n255\n", w, h)
	row := make([]byte, 3*w)
	for j := 0; j < h; j++ {
		src := img.Pix[j*img.Stride:]
		for i := 0; i < w; i++ {
			copy(row[3*i:3*i+3], src[4*i:4*i+3])
		}
		buf.Write(row)
	}
	buf.WriteByte('\n')
	return buf.Bytes()
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("png: %w", err)
	}
	return buf.Bytes(), nil
}

// writeImage encodes img in memory so that a failed encoding leaves no file.
func writeImage(filename string, format ImageFormat, img *image.RGBA) error {
	var data []byte
	switch format {
	case FormatPPM:
		data = encodePPM(img)
	case FormatPNG:
		var err error
		if data, err = encodePNG(img); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%v: %w", format, ErrInvalidFiletype)
	}
	return os.WriteFile(filename, data, 0644)
}
