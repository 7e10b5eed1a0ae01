package tray

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"runtime"
	"sync"
)

const iconSize = 32

var (
	iconOnce sync.Once
	iconPNG  []byte
)

// IconPNG renders the tray icon: a dashed selection frame with a red border
// corner and a dark equation bar.
func IconPNG() []byte {
	iconOnce.Do(func() {
		img := image.NewNRGBA(image.Rect(0, 0, iconSize, iconSize))
		blue := color.NRGBA{0x00, 0x78, 0xd4, 0xff}
		red := color.NRGBA{0xe0, 0x20, 0x20, 0xff}
		dark := color.NRGBA{0x33, 0x33, 0x33, 0xff}

		// dashed selection frame
		for i := 4; i < 28; i++ {
			if (i/3)%2 == 0 {
				img.SetNRGBA(i, 5, blue)
				img.SetNRGBA(i, 26, blue)
				img.SetNRGBA(4, i, blue)
				img.SetNRGBA(27, i, blue)
			}
		}
		// solid red corner, like the live selection border
		for i := 16; i < 28; i++ {
			img.SetNRGBA(i, 26, red)
			img.SetNRGBA(i, 25, red)
			img.SetNRGBA(27, i-2, red)
			img.SetNRGBA(26, i-2, red)
		}
		// equation bar
		for y := 13; y < 18; y++ {
			for x := 9; x < 23; x++ {
				if y == 15 || x == 9 || x == 22 {
					img.SetNRGBA(x, y, dark)
				}
			}
		}

		var buf bytes.Buffer
		_ = png.Encode(&buf, img)
		iconPNG = buf.Bytes()
	})
	return iconPNG
}

// IconICO wraps the PNG in a single-image ICO container, which Windows
// accepts for PNG-compressed icons.
func IconICO() []byte {
	p := IconPNG()
	var buf bytes.Buffer
	// ICONDIR
	_ = binary.Write(&buf, binary.LittleEndian, []uint16{0, 1, 1})
	// ICONDIRENTRY
	buf.Write([]byte{iconSize, iconSize, 0, 0})
	_ = binary.Write(&buf, binary.LittleEndian, []uint16{1, 32})
	_ = binary.Write(&buf, binary.LittleEndian, []uint32{uint32(len(p)), 22})
	buf.Write(p)
	return buf.Bytes()
}

// Icon returns the icon bytes in the format systray expects on this platform.
func Icon() []byte {
	if runtime.GOOS == "windows" {
		return IconICO()
	}
	return IconPNG()
}
