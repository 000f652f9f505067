package vision

import (
	"image"
	"math"
)

// binarize порог THRESH_BINARY: 255 там, где значение строго больше thresh.
func binarize(src *image.Gray, thresh uint8) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		row := src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):]
		for x := 0; x < b.Dx(); x++ {
			if row[x] > thresh {
				dst.Pix[y*dst.Stride+x] = 255
			}
		}
	}
	return dst
}

// region внешний контур одной связной области маски.
type region struct {
	bounds image.Rectangle
	area   float64
}

// moore: соседи по часовой стрелке (ось Y вниз), начиная с востока.
var moore = [8]image.Point{{1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}, {-1, -1}, {0, -1}, {1, -1}}

// externalRegions находит внешние контуры всех 8-связных областей маски.
// Площадь считается по формуле шнурков над центрами пикселей контура, как
// contourArea в OpenCV, поэтому одиночный пиксель или линия дают площадь 0.
func externalRegions(mask *image.Gray) []region {
	w, h := mask.Rect.Dx(), mask.Rect.Dy()
	fg := func(x, y int) bool {
		return x >= 0 && y >= 0 && x < w && y < h && mask.Pix[y*mask.Stride+x] != 0
	}

	seen := make([]bool, w*h)
	var regions []region
	var stack []image.Point
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if seen[y*w+x] || !fg(x, y) {
				continue
			}

			bounds := image.Rect(x, y, x+1, y+1)
			seen[y*w+x] = true
			stack = append(stack[:0], image.Pt(x, y))
			for len(stack) > 0 {
				p := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				bounds = bounds.Union(image.Rect(p.X, p.Y, p.X+1, p.Y+1))
				for _, d := range moore {
					q := p.Add(d)
					if fg(q.X, q.Y) && !seen[q.Y*w+q.X] {
						seen[q.Y*w+q.X] = true
						stack = append(stack, q)
					}
				}
			}

			// (x,y) — первый пиксель области в порядке развёртки, слева от него фон.
			regions = append(regions, region{
				bounds: bounds,
				area:   polygonArea(traceBoundary(fg, image.Pt(x, y))),
			})
		}
	}
	return regions
}

// traceBoundary обход границы Мура с критерием остановки Джейкоба.
func traceBoundary(fg func(x, y int) bool, start image.Point) []image.Point {
	pts := []image.Point{start}
	cur := start
	back := 4 // пришли с запада
	first := -1
	for {
		next := -1
		for i := 1; i <= 8; i++ {
			d := (back + i) % 8
			q := cur.Add(moore[d])
			if fg(q.X, q.Y) {
				next = d
				break
			}
		}
		if next < 0 {
			return pts
		}
		if cur == start {
			if first < 0 {
				first = next
			} else if next == first {
				return pts[:len(pts)-1]
			}
		}
		cur = cur.Add(moore[next])
		pts = append(pts, cur)
		if next%2 == 0 {
			back = (next + 6) % 8
		} else {
			back = (next + 5) % 8
		}
	}
}

func polygonArea(pts []image.Point) float64 {
	if len(pts) < 3 {
		return 0
	}
	var s int
	for i, p := range pts {
		q := pts[(i+1)%len(pts)]
		s += p.X*q.Y - q.X*p.Y
	}
	return math.Abs(float64(s)) / 2
}

// largestRegion прямоугольник области с максимальной площадью контура.
// При равенстве площадей побеждает область, найденная позже при обходе
// строк сверху вниз: findContours отдаёт контуры в обратном порядке, и
// первый максимум в его списке — последний в порядке обхода.
func largestRegion(mask *image.Gray) (image.Rectangle, bool) {
	regions := externalRegions(mask)
	if len(regions) == 0 {
		return image.Rectangle{}, false
	}
	best := 0
	for i, r := range regions[1:] {
		if r.area >= regions[best].area {
			best = i + 1
		}
	}
	return regions[best].bounds, true
}
