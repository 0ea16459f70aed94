package loaders

import (
	"bufio"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/spaghettifunk/vulkanmonkey/engine/renderer/metadata"
)

// ImageLoader decodes png, jpeg, gif, bmp, tiff and webp files into tightly
// packed RGBA, the layout the texture upload expects.
type ImageLoader struct {
	// FlipY mirrors the rows so the first row is the bottom of the image.
	FlipY bool
}

func (il *ImageLoader) Load(path string) (*metadata.Resource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, err
	}

	img, format, err := image.Decode(bufio.NewReader(file))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", path, err)
	}

	rgba := ToRGBA(img)
	if il.FlipY {
		flipRows(rgba)
	}

	return &metadata.Resource{
		Name:     format,
		FullPath: path,
		Type:     metadata.ResourceTypeImage,
		DataSize: uint64(info.Size()),
		Data:     rgba,
	}, nil
}

// ToRGBA returns img as *image.RGBA with its origin at zero, converting
// when needed.
func ToRGBA(img image.Image) *image.RGBA {
	bounds := img.Bounds()
	if rgba, ok := img.(*image.RGBA); ok && bounds.Min == (image.Point{}) {
		return rgba
	}
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	return rgba
}

func flipRows(img *image.RGBA) {
	height := img.Bounds().Dy()
	row := make([]byte, img.Stride)
	for y := 0; y < height/2; y++ {
		top := img.Pix[y*img.Stride : (y+1)*img.Stride]
		bottom := img.Pix[(height-1-y)*img.Stride : (height-y)*img.Stride]
		copy(row, top)
		copy(top, bottom)
		copy(bottom, row)
	}
}
