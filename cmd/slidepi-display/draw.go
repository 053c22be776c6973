package main

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Panel geometry in landscape orientation.
const (
	displayWidth  = 320
	displayHeight = 240

	// 7x13 font
	cw = 7
	ch = 13
)

var (
	white     = color.RGBA{255, 255, 255, 255}
	yellow    = color.RGBA{255, 255, 0, 255}
	green     = color.RGBA{0, 255, 0, 255}
	red       = color.RGBA{255, 64, 64, 255}
	lightGray = color.RGBA{153, 153, 153, 255}
	darkGray  = color.RGBA{48, 48, 48, 255}
)

// thumbRect is where the slide thumbnail goes: everything between the
// header line and the footer.
var thumbRect = image.Rect(0, 2*ch+4, displayWidth, displayHeight-3*ch-4)

// drawStatus lays out st on img.
func drawStatus(img *image.RGBA, st *Status) {
	fill(img, img.Bounds(), color.Black)

	// Header: address and connection state.
	drawText(img, cw, ch, fmt.Sprintf("%s  %s", st.Hostname, st.IP), white)
	if !st.Connected {
		drawText(img, cw, 2*ch+2, "Waiting for slideshow...", yellow)
		return
	}
	label := slideLabel(st)
	drawText(img, displayWidth-(len(label)+1)*cw, ch, label, white)
	hLine(img, cw, displayWidth-cw, ch+5, lightGray)

	// Middle: thumbnail, letterboxed.
	if st.Thumb != nil {
		drawThumb(img, st.Thumb, thumbRect)
	} else {
		msg := "No images"
		if st.Count > 0 {
			msg = "No preview"
		}
		x := thumbRect.Min.X + (thumbRect.Dx()-len(msg)*cw)/2
		y := thumbRect.Min.Y + thumbRect.Dy()/2
		drawText(img, x, y, msg, lightGray)
	}

	// Footer: caption, then status icons and the progress bar.
	footer := thumbRect.Max.Y + ch + 2
	drawText(img, cw, footer, truncate(st.Title, displayWidth/cw-2), yellow)

	iconY := footer + 4
	if st.Paused {
		drawPause(img, cw, iconY, ch, white)
	} else {
		drawTriangle(img, cw, iconY, cw, ch, green)
	}
	if st.Locked {
		drawLock(img, 3*cw, iconY, red)
		if st.Pending != "" {
			drawText(img, 5*cw, iconY+ch-2, "pending: "+st.Pending, red)
		}
	}
	progressBar(img, image.Rect(cw, displayHeight-6, displayWidth-cw, displayHeight-2), st.Percent)
}

func fill(img *image.RGBA, r image.Rectangle, c color.Color) {
	draw.Draw(img, r, &image.Uniform{c}, image.Point{}, draw.Src)
}

// drawText draws text with its baseline at y.
func drawText(img *image.RGBA, x, y int, text string, col color.Color) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}

// drawThumb scales src to fit inside r, preserving its aspect ratio.
func drawThumb(img *image.RGBA, src image.Image, r image.Rectangle) {
	sb := src.Bounds()
	if sb.Dx() == 0 || sb.Dy() == 0 {
		return
	}
	w, h := r.Dx(), sb.Dy()*r.Dx()/sb.Dx()
	if h > r.Dy() {
		w, h = sb.Dx()*r.Dy()/sb.Dy(), r.Dy()
	}
	x := r.Min.X + (r.Dx()-w)/2
	y := r.Min.Y + (r.Dy()-h)/2
	draw.ApproxBiLinear.Scale(img, image.Rect(x, y, x+w, y+h), src, sb, draw.Src, nil)
}

func hLine(img *image.RGBA, x0, x1, y int, col color.Color) {
	for x := x0; x <= x1; x++ {
		img.Set(x, y, col)
	}
}

func progressBar(img *image.RGBA, r image.Rectangle, percent float64) {
	fill(img, r, darkGray)
	if percent <= 0 {
		return
	}
	if percent > 100 {
		percent = 100
	}
	w := int(float64(r.Dx()) * percent / 100)
	fill(img, image.Rect(r.Min.X, r.Min.Y, r.Min.X+w, r.Max.Y), green)
}

// drawTriangle draws a right-pointing filled triangle (play icon).
func drawTriangle(img *image.RGBA, x, y, w, h int, col color.Color) {
	for dy := 0; dy < h; dy++ {
		dx := (dy * w) / (h / 2)
		if dy >= h/2 {
			dx = ((h - dy) * w) / (h / 2)
		}
		if dx > w {
			dx = w
		}
		for i := 0; i < dx; i++ {
			img.Set(x+i, y+dy, col)
		}
	}
}

// drawPause draws two vertical bars.
func drawPause(img *image.RGBA, x, y, h int, col color.Color) {
	fill(img, image.Rect(x, y, x+2, y+h), col)
	fill(img, image.Rect(x+4, y, x+6, y+h), col)
}

// drawLock draws a small padlock.
func drawLock(img *image.RGBA, x, y int, col color.Color) {
	fill(img, image.Rect(x, y+5, x+9, y+13), col)
	for i := 1; i < 8; i++ {
		img.Set(x+i, y, col)
	}
	for dy := 0; dy < 5; dy++ {
		img.Set(x+1, y+dy, col)
		img.Set(x+7, y+dy, col)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}

// toRGB565 packs 8-bit channels as 5 bits red, 6 bits green, 5 bits blue.
func toRGB565(r, g, b uint8) uint16 {
	return uint16(r&0xF8)<<8 | uint16(g&0xFC)<<3 | uint16(b>>3)
}
