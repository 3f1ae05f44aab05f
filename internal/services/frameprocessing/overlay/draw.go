package overlay

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

var (
	white = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	black = color.RGBA{R: 0, G: 0, B: 0, A: 200}
	red   = color.RGBA{R: 255, G: 0, B: 0, A: 255}
)

// DrawText draws text over a filled dark background box
func DrawText(mat *gocv.Mat, text string, x, y int, textColor color.RGBA, fontScale float64, thickness int) {
	fontFace := gocv.FontHersheySimplex
	textSize := gocv.GetTextSize(text, fontFace, fontScale, thickness)

	padding := 4
	bgRect := image.Rect(x-padding, y-textSize.Y-padding, x+textSize.X+padding, y+padding)
	gocv.Rectangle(mat, clampRect(bgRect, mat.Cols(), mat.Rows()), black, -1)
	gocv.PutText(mat, text, image.Pt(x, y), fontFace, fontScale, textColor, thickness)
}

// DrawBox draws a rectangle with corner accents
func DrawBox(mat *gocv.Mat, r image.Rectangle, c color.RGBA, thickness int) {
	r = clampRect(r, mat.Cols(), mat.Rows())
	if r.Empty() {
		return
	}
	gocv.Rectangle(mat, r, c, thickness)

	corner := min(15, r.Dx()/3, r.Dy()/3)
	if corner <= 0 {
		return
	}
	ct := thickness + 1
	x1, y1, x2, y2 := r.Min.X, r.Min.Y, r.Max.X, r.Max.Y
	gocv.Line(mat, image.Pt(x1, y1), image.Pt(x1+corner, y1), c, ct)
	gocv.Line(mat, image.Pt(x1, y1), image.Pt(x1, y1+corner), c, ct)
	gocv.Line(mat, image.Pt(x2, y1), image.Pt(x2-corner, y1), c, ct)
	gocv.Line(mat, image.Pt(x2, y1), image.Pt(x2, y1+corner), c, ct)
	gocv.Line(mat, image.Pt(x1, y2), image.Pt(x1+corner, y2), c, ct)
	gocv.Line(mat, image.Pt(x1, y2), image.Pt(x1, y2-corner), c, ct)
	gocv.Line(mat, image.Pt(x2, y2), image.Pt(x2-corner, y2), c, ct)
	gocv.Line(mat, image.Pt(x2, y2), image.Pt(x2, y2-corner), c, ct)
}

// DrawBar draws a horizontal score bar of the given fill ratio with a caption
func DrawBar(mat *gocv.Mat, label string, ratio float64, x, y, width int, c color.RGBA) {
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	const height = 10
	outline := clampRect(image.Rect(x, y, x+width, y+height), mat.Cols(), mat.Rows())
	if outline.Empty() {
		return
	}
	fill := outline
	fill.Max.X = outline.Min.X + int(float64(outline.Dx())*ratio)
	gocv.Rectangle(mat, outline, white, 1)
	if fill.Dx() > 0 {
		gocv.Rectangle(mat, fill, c, -1)
	}
	gocv.PutText(mat, label, image.Pt(outline.Max.X+4, outline.Max.Y), gocv.FontHersheySimplex, 0.4, white, 1)
}

func clampRect(r image.Rectangle, width, height int) image.Rectangle {
	return r.Canon().Intersect(image.Rect(0, 0, width-1, height-1))
}
