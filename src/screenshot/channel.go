package screenshot

// ChannelOrder is the byte order a grabber delivers pixels in.
type ChannelOrder int

const (
	OrderRGBA ChannelOrder = iota
	OrderBGRA
)

// NormalizeChannelOrder swaps byte lanes 0 and 2 of every pixel in place,
// turning B,G,R,A into R,G,B,A. Applying it twice restores the input.
func NormalizeChannelOrder(pix []byte) {
	for i := 0; i+3 < len(pix); i += 4 {
		pix[i], pix[i+2] = pix[i+2], pix[i]
	}
}
