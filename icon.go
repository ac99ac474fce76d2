package main

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
)

// Tray icons: a filled dot whose colour tracks bridge status.
var (
	iconData          = dotIcon(color.RGBA{0x9e, 0x9e, 0x9e, 0xff})
	iconDataConnected = dotIcon(color.RGBA{0x2e, 0x7d, 0x32, 0xff})
	iconDataError     = dotIcon(color.RGBA{0xc6, 0x28, 0x28, 0xff})
	iconDataStopped   = dotIcon(color.RGBA{0xf9, 0xa8, 0x25, 0xff})
)

const iconSize = 22

func dotIcon(c color.RGBA) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, iconSize, iconSize))
	center := float64(iconSize-1) / 2
	radius := float64(iconSize)/2 - 2
	for y := 0; y < iconSize; y++ {
		for x := 0; x < iconSize; x++ {
			dx, dy := float64(x)-center, float64(y)-center
			if dx*dx+dy*dy <= radius*radius {
				img.Set(x, y, c)
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
