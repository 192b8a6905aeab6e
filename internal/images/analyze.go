// Package images re-hosts article images and picks cropped feed thumbnails.
package images

import (
	"image"
	"image/color"
	"math"
)

// Feed thumbnails are cut at 4:3 and never smaller than this.
const (
	minFeedWidth  = 160
	minFeedHeight = 120
)

const (
	grayRatio  = 0.75
	grayBlack  = 50
	grayWhite  = 200
	scoreWidth = 200.0
	scoreHigh  = 150.0
	scoreAlpha = 0.8
)

// FeedSize returns the largest 4:3 box that fits in width x height, or zeros
// when the image is too small for a feed thumbnail.
func FeedSize(width, height int) (int, int) {
	w := min(width, height*4/3)
	w -= w % 4
	if w < minFeedWidth {
		return 0, 0
	}
	return w, w * 3 / 4
}

// CropBox centres the feed box horizontally and anchors it to the top edge.
func CropBox(width, height int) image.Rectangle {
	w, h := FeedSize(width, height)
	left := (width - w) / 2
	return image.Rect(left, 0, left+w, h)
}

// histogram counts luminance values.
func histogram(img image.Image) [256]int {
	var hist [256]int
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			g := color.GrayModel.Convert(img.At(x, y)).(color.Gray)
			hist[g.Y]++
		}
	}
	return hist
}

// IsGray reports whether at least three quarters of the pixels are near
// black or near white.
func IsGray(img image.Image) bool {
	b := img.Bounds()
	points := b.Dx() * b.Dy()
	if points == 0 {
		return false
	}
	hist := histogram(img)
	black, white := 0, 0
	for value, n := range hist {
		switch {
		case value > grayWhite:
			white += n
		case value < grayBlack:
			black += n
		}
	}
	return float64(black)/float64(points) >= grayRatio || float64(white)/float64(points) >= grayRatio
}

// Score rates how well img works as a thumbnail from its luminance spread
// and its size. Images under 200x150 score zero.
func Score(img image.Image) float64 {
	b := img.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())
	if w < scoreWidth || h < scoreHigh {
		return 0
	}
	points := b.Dx() * b.Dy()
	hist := histogram(img)

	sizeWeight := math.Log2(((w-scoreWidth)/w+(h-scoreHigh)/h)/2 + 1)
	threshold := min(50, points/10000)
	var pixels []int
	maxp := 0
	for _, n := range hist {
		if n > threshold {
			pixels = append(pixels, n)
			maxp = max(maxp, n)
		}
	}
	if len(pixels) == 0 {
		return 0
	}
	avg := points / len(pixels)
	spread, sum := 0, 0
	for _, n := range hist {
		if n >= avg {
			spread++
			sum += n
		}
	}
	gw := max(0, float64(sum-maxp)/float64(points))
	g := float64(spread*spread) / float64(256*len(pixels))
	return math.Cbrt(gw)*math.Sqrt(g)*scoreAlpha + sizeWeight*(1-scoreAlpha)
}
