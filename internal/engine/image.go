package engine

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"

	lpdf "github.com/ledongthuc/pdf"

	"pdf-translator/internal/element"
)

// ErrNoResolver is returned by image accessors that need the object store.
var ErrNoResolver = errors.New("no image resolver configured")

// ImageStream is an image XObject stream as read from the object store.
type ImageStream struct {
	Filter     string // last filter of the pipeline, empty when unfiltered
	Raw        []byte // bytes as stored
	Content    []byte // bytes after decoding the filter pipeline
	Width      int
	Height     int
	BPC        int
	Components int
}

// xobjectImage is the ImageHandle handed out by the walker.
type xobjectImage struct {
	page     int
	name     string
	v        lpdf.Value
	resolver ImageResolver
}

func (x *xobjectImage) Name() string {
	return fmt.Sprintf("p%d/%s", x.page, x.name)
}

// RawPixels decodes the stream through ledongthuc's filter chain.
func (x *xobjectImage) RawPixels() (img image.Image, err error) {
	defer func() {
		if r := recover(); r != nil {
			img, err = nil, fmt.Errorf("decode %s: %v", x.Name(), r)
		}
	}()

	switch f := x.v.Key("Filter"); f.Kind() {
	case lpdf.Name:
		if isEncodedImageFilter(f.Name()) {
			return nil, fmt.Errorf("decode %s: %s streams carry an encoded image", x.Name(), f.Name())
		}
	}

	rc := x.v.Reader()
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", x.Name(), err)
	}
	return PixelsToImage(data,
		int(x.v.Key("Width").Int64()),
		int(x.v.Key("Height").Int64()),
		int(x.v.Key("BitsPerComponent").Int64()),
		componentsOf(x.v.Key("ColorSpace")))
}

// DecodedBytes returns an image file for the object using the object store:
// JPEG streams as stored, everything else re-encoded as PNG.
func (x *xobjectImage) DecodedBytes() ([]byte, error) {
	if x.resolver == nil {
		return nil, ErrNoResolver
	}
	st, err := x.resolver.ImageStream(x.page, x.name)
	if err != nil {
		return nil, err
	}
	if st.Filter == "DCTDecode" {
		return st.Raw, nil
	}
	if isEncodedImageFilter(st.Filter) {
		return nil, fmt.Errorf("%s: unsupported image filter %s", x.Name(), st.Filter)
	}
	img, err := PixelsToImage(st.Content, st.Width, st.Height, st.BPC, st.Components)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode %s: %w", x.Name(), err)
	}
	return buf.Bytes(), nil
}

// Object returns the stream bytes exactly as stored in the source.
func (x *xobjectImage) Object() ([]byte, error) {
	if x.resolver == nil {
		return nil, ErrNoResolver
	}
	st, err := x.resolver.ImageStream(x.page, x.name)
	if err != nil {
		return nil, err
	}
	return st.Raw, nil
}

var _ element.ImageHandle = (*xobjectImage)(nil)

func isEncodedImageFilter(name string) bool {
	switch name {
	case "DCTDecode", "JPXDecode", "JBIG2Decode", "CCITTFaxDecode":
		return true
	}
	return false
}

func componentsOf(cs lpdf.Value) int {
	switch cs.Kind() {
	case lpdf.Name:
		return componentsByName(cs.Name())
	case lpdf.Array:
		if cs.Len() > 1 && cs.Index(0).Name() == "ICCBased" {
			if n := int(cs.Index(1).Key("N").Int64()); n > 0 {
				return n
			}
		}
		if cs.Len() > 0 {
			return componentsByName(cs.Index(0).Name())
		}
	}
	return 0
}

func componentsByName(name string) int {
	switch name {
	case "DeviceGray", "CalGray", "G":
		return 1
	case "DeviceRGB", "CalRGB", "RGB":
		return 3
	case "DeviceCMYK", "CMYK":
		return 4
	}
	return 0
}

// PixelsToImage converts unfiltered sample data into an image. Gray, RGB and
// CMYK at 8 bits per component are supported, plus 1-bit gray.
func PixelsToImage(data []byte, width, height, bpc, comps int) (image.Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid image size %dx%d", width, height)
	}
	if comps == 0 {
		return nil, errors.New("unsupported colour space")
	}

	if bpc == 1 && comps == 1 {
		stride := (width + 7) / 8
		if len(data) < stride*height {
			return nil, fmt.Errorf("short image data: %d < %d", len(data), stride*height)
		}
		img := image.NewGray(image.Rect(0, 0, width, height))
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				bit := data[y*stride+x/8] >> (7 - uint(x%8)) & 1
				img.SetGray(x, y, color.Gray{Y: bit * 255})
			}
		}
		return img, nil
	}
	if bpc != 8 {
		return nil, fmt.Errorf("unsupported bits per component %d", bpc)
	}

	expected := width * height * comps
	if len(data) < expected {
		return nil, fmt.Errorf("short image data: %d < %d", len(data), expected)
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			off := (y*width + x) * comps
			var c color.RGBA
			switch comps {
			case 1:
				g := data[off]
				c = color.RGBA{R: g, G: g, B: g, A: 255}
			case 3:
				c = color.RGBA{R: data[off], G: data[off+1], B: data[off+2], A: 255}
			case 4:
				r, g, b := color.CMYKToRGB(data[off], data[off+1], data[off+2], data[off+3])
				c = color.RGBA{R: r, G: g, B: b, A: 255}
			default:
				return nil, fmt.Errorf("unsupported component count %d", comps)
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img, nil
}
