// Copyright 2025 James Ross
package scanner

import "image"

// rotateImage returns img rotated clockwise by degrees, which must be one
// of 0, 90, 180, 270.
func rotateImage(img image.Image, degrees int) image.Image {
	switch degrees % 360 {
	case 90:
		return rotate90(img)
	case 180:
		return rotate180(img)
	case 270:
		return rotate90(rotate180(img))
	default:
		return img
	}
}

func rotate180(img image.Image) image.Image {
	b := img.Bounds()
	out := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			srcX := b.Max.X - 1 - (x - b.Min.X)
			srcY := b.Max.Y - 1 - (y - b.Min.Y)
			out.Set(x, y, img.At(srcX, srcY))
		}
	}
	return out
}

func rotate90(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewRGBA(image.Rect(0, 0, h, w))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out.Set(h-1-y, x, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return out
}
