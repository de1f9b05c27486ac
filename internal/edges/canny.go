package edges

import (
	"fmt"
	"image"
	"math"

	"github.com/kovidgoyal/imaging"
)

// Canny is the pure Go detector: grayscale, 5x5 Gaussian blur, then Canny
// with L1 gradient magnitude, matching OpenCV's defaults.
type Canny struct{}

func (Canny) DetectFile(src, dst string) error {
	img, err := imaging.Open(src)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUndecodable, src, err)
	}
	if err := imaging.Save(Detect(img), dst); err != nil {
		return fmt.Errorf("write edge map: %w", err)
	}
	return nil
}

// Detect returns the edge map of img. Edge pixels are 255, everything else 0.
func Detect(img image.Image) *image.Gray {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	return canny(blurPlane(imaging.Grayscale(img)), w, h, LowThreshold, HighThreshold)
}

// blurPlane smooths the luma of gray with the 5x5 Gaussian and returns it as
// a row-major plane. Borders are mirrored without repeating the edge pixel
// (gfedcb|abcdefgh|gfedcba), as OpenCV's GaussianBlur does.
func blurPlane(gray *image.NRGBA) []int {
	b := gray.Bounds()
	w, h := b.Dx(), b.Dy()
	plane := make([]int, w*h)
	if w == 0 || h == 0 {
		return plane
	}

	const pad = BlurSize / 2
	padded := image.NewNRGBA(image.Rect(0, 0, w+2*pad, h+2*pad))
	for y := 0; y < h+2*pad; y++ {
		src := gray.Pix[reflect101(y-pad, h)*gray.Stride:]
		dst := padded.Pix[y*padded.Stride:]
		for x := 0; x < w+2*pad; x++ {
			copy(dst[x*4:x*4+4], src[reflect101(x-pad, w)*4:])
		}
	}

	blurred := imaging.Convolve5x5(padded, gaussianKernel(BlurSigma), nil)
	for y := 0; y < h; y++ {
		row := blurred.Pix[(y+pad)*blurred.Stride:]
		for x := 0; x < w; x++ {
			plane[y*w+x] = int(row[(x+pad)*4])
		}
	}
	return plane
}

// reflect101 maps i into [0, n) by mirroring about the first and last index.
func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*(n-1) - i
		}
	}
	return i
}

func gaussianKernel(sigma float64) [25]float64 {
	var line [BlurSize]float64
	sum := 0.0
	for i := range line {
		d := float64(i - BlurSize/2)
		line[i] = math.Exp(-d * d / (2 * sigma * sigma))
		sum += line[i]
	}
	for i := range line {
		line[i] /= sum
	}

	var k [25]float64
	for y := 0; y < BlurSize; y++ {
		for x := 0; x < BlurSize; x++ {
			k[y*BlurSize+x] = line[y] * line[x]
		}
	}
	return k
}

// tan(22.5°) in 15-bit fixed point.
const (
	cannyShift = 15
	tg22       = 13573
)

func canny(plane []int, w, h, low, high int) *image.Gray {
	out := image.NewGray(image.Rect(0, 0, w, h))
	if w == 0 || h == 0 {
		return out
	}

	at := func(x, y int) int {
		x = clamp(x, 0, w-1)
		y = clamp(y, 0, h-1)
		return plane[y*w+x]
	}

	dx := make([]int, w*h)
	dy := make([]int, w*h)
	mag := make([]int, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			gx := at(x+1, y-1) + 2*at(x+1, y) + at(x+1, y+1) -
				at(x-1, y-1) - 2*at(x-1, y) - at(x-1, y+1)
			gy := at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1) -
				at(x-1, y-1) - 2*at(x, y-1) - at(x+1, y-1)
			i := y*w + x
			dx[i], dy[i] = gx, gy
			mag[i] = abs(gx) + abs(gy)
		}
	}

	m := func(x, y int) int {
		if x < 0 || y < 0 || x >= w || y >= h {
			return 0
		}
		return mag[y*w+x]
	}

	const (
		none = iota
		weak
		strong
	)
	state := make([]uint8, w*h)
	stack := make([]int, 0, w)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			v := mag[i]
			if v <= low {
				continue
			}

			ax := abs(dx[i])
			ay := abs(dy[i]) << cannyShift
			tg22x := ax * tg22

			var isMax bool
			switch {
			case ay < tg22x:
				isMax = v > m(x-1, y) && v >= m(x+1, y)
			case ay > tg22x+(ax<<(cannyShift+1)):
				isMax = v > m(x, y-1) && v >= m(x, y+1)
			default:
				s := 1
				if (dx[i] ^ dy[i]) < 0 {
					s = -1
				}
				isMax = v > m(x-s, y-1) && v > m(x+s, y+1)
			}
			if !isMax {
				continue
			}

			if v > high {
				state[i] = strong
				stack = append(stack, i)
			} else {
				state[i] = weak
			}
		}
	}

	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out.Pix[(i/w)*out.Stride+i%w] = 255

		x, y := i%w, i/w
		for ny := y - 1; ny <= y+1; ny++ {
			for nx := x - 1; nx <= x+1; nx++ {
				if nx < 0 || ny < 0 || nx >= w || ny >= h {
					continue
				}
				j := ny*w + nx
				if state[j] == weak {
					state[j] = strong
					stack = append(stack, j)
				}
			}
		}
	}

	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
