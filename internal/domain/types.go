package domain

import (
	"path/filepath"
	"strings"
)

// SuccessMessage is returned with every stored image.
const SuccessMessage = "Image saved successfully"

// ConversionRequest is the body of POST /convert.
type ConversionRequest struct {
	HTML     string `json:"html"`
	DestPath string `json:"destPath"`
	Filename string `json:"filename"`
}

// ConversionResult is the success payload of POST /convert.
type ConversionResult struct {
	Message string `json:"message"`
	Path    string `json:"path"`
}

// BoundingBox is an element's position and size in page pixels.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Clip is the page region handed to the screenshot call.
type Clip struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// Padded grows the box by padding on every side. The origin is clamped at
// zero while the size always grows by 2*padding, so an element touching the
// page edge is captured with the extra margin on its far sides.
func (b BoundingBox) Padded(padding float64) Clip {
	return Clip{
		X:      max(0, b.X-padding),
		Y:      max(0, b.Y-padding),
		Width:  b.Width + 2*padding,
		Height: b.Height + 2*padding,
	}
}

// ImageFormat is the encoding of the captured image.
type ImageFormat string

const (
	FormatPNG  ImageFormat = "png"
	FormatJPEG ImageFormat = "jpeg"
)

// FormatFor derives the image format from a file name's extension. Anything
// other than .jpg/.jpeg is treated as PNG.
func FormatFor(name string) ImageFormat {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg":
		return FormatJPEG
	default:
		return FormatPNG
	}
}
