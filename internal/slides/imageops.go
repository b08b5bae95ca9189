package slides

import (
	"image"
	"image/color"
	"math"

	"github.com/nfnt/resize"
)

// prepare converts a frame to grayscale at the analysis resolution.
func prepare(img image.Image, width, height int) *image.Gray {
	b := img.Bounds()
	if g, ok := img.(*image.Gray); ok && b.Dx() == width && b.Dy() == height && b.Min == (image.Point{}) {
		return g
	}

	gray := toGray(img)
	if b.Dx() == width && b.Dy() == height {
		return gray
	}
	return toGray(resize.Resize(uint(width), uint(height), gray, resize.Bilinear))
}

func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	if g, ok := img.(*image.Gray); ok && b.Min == (image.Point{}) {
		return g
	}
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.Pix[(y-b.Min.Y)*out.Stride+(x-b.Min.X)] = color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y
		}
	}
	return out
}

// diffStats compares two equally sized frames. It returns the mean absolute
// difference and the mask of pixels whose difference exceeds threshold.
func diffStats(a, b *image.Gray, threshold uint8) (mean float64, mask []bool, changed int) {
	w, h := a.Rect.Dx(), a.Rect.Dy()
	mask = make([]bool, w*h)
	var sum int
	for y := 0; y < h; y++ {
		ra := a.Pix[y*a.Stride : y*a.Stride+w]
		rb := b.Pix[y*b.Stride : y*b.Stride+w]
		for x := 0; x < w; x++ {
			d := int(ra[x]) - int(rb[x])
			if d < 0 {
				d = -d
			}
			sum += d
			if d > int(threshold) {
				mask[y*w+x] = true
				changed++
			}
		}
	}
	if w*h == 0 {
		return 0, mask, 0
	}
	return float64(sum) / float64(w*h), mask, changed
}

// largestRegion returns the pixel count of the biggest 8-connected region of
// set cells in mask.
func largestRegion(mask []bool, w, h int) int {
	seen := make([]bool, len(mask))
	stack := make([]int, 0, 64)
	largest := 0

	for start, set := range mask {
		if !set || seen[start] {
			continue
		}
		area := 0
		seen[start] = true
		stack = append(stack[:0], start)
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			area++

			x, y := i%w, i/w
			for dy := -1; dy <= 1; dy++ {
				ny := y + dy
				if ny < 0 || ny >= h {
					continue
				}
				for dx := -1; dx <= 1; dx++ {
					nx := x + dx
					if (dx == 0 && dy == 0) || nx < 0 || nx >= w {
						continue
					}
					j := ny*w + nx
					if mask[j] && !seen[j] {
						seen[j] = true
						stack = append(stack, j)
					}
				}
			}
		}
		if area > largest {
			largest = area
		}
	}
	return largest
}

// histogram builds an intensity histogram with the given number of bins.
func histogram(g *image.Gray, bins int) []float64 {
	hist := make([]float64, bins)
	w, h := g.Rect.Dx(), g.Rect.Dy()
	for y := 0; y < h; y++ {
		row := g.Pix[y*g.Stride : y*g.Stride+w]
		for _, v := range row {
			hist[int(v)*bins/256]++
		}
	}
	return hist
}

// correlation is the Pearson correlation of two histograms, 1 for identical
// shapes.
func correlation(a, b []float64) float64 {
	n := float64(len(a))
	var ma, mb float64
	for i := range a {
		ma += a[i]
		mb += b[i]
	}
	ma /= n
	mb /= n

	var num, da, db float64
	for i := range a {
		x, y := a[i]-ma, b[i]-mb
		num += x * y
		da += x * x
		db += y * y
	}
	den := math.Sqrt(da * db)
	if den == 0 {
		if da == db {
			return 1
		}
		return 0
	}
	return num / den
}

// edgeCount runs a Canny-style detector (3x3 Sobel, L1 magnitude, non-maximum
// suppression, hysteresis between low and high) and counts edge pixels.
func edgeCount(g *image.Gray, low, high float64) int {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	if w < 3 || h < 3 {
		return 0
	}

	px := func(x, y int) float64 { return float64(g.Pix[y*g.Stride+x]) }
	mag := make([]float64, w*h)
	dir := make([]uint8, w*h)

	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			gx := -px(x-1, y-1) - 2*px(x-1, y) - px(x-1, y+1) +
				px(x+1, y-1) + 2*px(x+1, y) + px(x+1, y+1)
			gy := -px(x-1, y-1) - 2*px(x, y-1) - px(x+1, y-1) +
				px(x-1, y+1) + 2*px(x, y+1) + px(x+1, y+1)
			i := y*w + x
			mag[i] = math.Abs(gx) + math.Abs(gy)
			dir[i] = quantizeDirection(gx, gy)
		}
	}

	const (
		none = iota
		weak
		strong
	)
	class := make([]uint8, w*h)
	stack := make([]int, 0, 256)

	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := y*w + x
			m := mag[i]
			if m <= low {
				continue
			}
			var n1, n2 float64
			switch dir[i] {
			case 0:
				n1, n2 = mag[i-1], mag[i+1]
			case 1:
				n1, n2 = mag[i-w+1], mag[i+w-1]
			case 2:
				n1, n2 = mag[i-w], mag[i+w]
			default:
				n1, n2 = mag[i-w-1], mag[i+w+1]
			}
			if m < n1 || m < n2 {
				continue
			}
			if m > high {
				class[i] = strong
				stack = append(stack, i)
			} else {
				class[i] = weak
			}
		}
	}

	count := len(stack)
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := i%w, i/w
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				nx, ny := x+dx, y+dy
				if nx < 0 || ny < 0 || nx >= w || ny >= h {
					continue
				}
				j := ny*w + nx
				if class[j] == weak {
					class[j] = strong
					count++
					stack = append(stack, j)
				}
			}
		}
	}
	return count
}

// quantizeDirection maps a gradient to 0 (horizontal), 1 (45°), 2 (vertical)
// or 3 (135°).
func quantizeDirection(gx, gy float64) uint8 {
	angle := math.Atan2(gy, gx) * 180 / math.Pi
	if angle < 0 {
		angle += 180
	}
	switch {
	case angle < 22.5 || angle >= 157.5:
		return 0
	case angle < 67.5:
		return 1
	case angle < 112.5:
		return 2
	default:
		return 3
	}
}
