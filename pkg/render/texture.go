package render

import (
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Texture is a row-major grid of texels. Sampling repeats the texture in
// both directions and picks the nearest texel, matching the texel fetch in
// the objects shader.
type Texture struct {
	Width  int
	Height int
	Pixels []Color
}

// NewTexture returns a transparent texture of the given size.
func NewTexture(width, height int) *Texture {
	return &Texture{Width: width, Height: height, Pixels: make([]Color, width*height)}
}

// LoadTexture decodes a PNG, JPEG, BMP, TIFF or WebP file.
func LoadTexture(path string) (*Texture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open texture: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode texture %s: %w", path, err)
	}
	return TextureFromImage(img), nil
}

// TextureFromImage copies img into a texture anchored at its top-left.
func TextureFromImage(img image.Image) *Texture {
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)

	tex := NewTexture(b.Dx(), b.Dy())
	for i := range tex.Pixels {
		p := rgba.Pix[i*4 : i*4+4 : i*4+4]
		tex.Pixels[i] = Color{R: p[0], G: p[1], B: p[2], A: p[3]}
	}
	return tex
}

// NewCheckerTexture alternates a and b in square cells of size pixels.
func NewCheckerTexture(width, height, size int, a, b Color) *Texture {
	tex := NewTexture(width, height)
	for y := range height {
		for x := range width {
			c := a
			if (x/size+y/size)%2 == 1 {
				c = b
			}
			tex.Pixels[y*width+x] = c
		}
	}
	return tex
}

// NewGradientTexture blends from left to right across the width.
func NewGradientTexture(width, height int, left, right Color) *Texture {
	tex := NewTexture(width, height)
	span := float64(max(width-1, 1))
	for x := range width {
		c := mix(left, right, float64(x)/span)
		for y := range height {
			tex.Pixels[y*width+x] = c
		}
	}
	return tex
}

// SetPixel sets the texel at (x, y); out-of-range writes are dropped.
func (t *Texture) SetPixel(x, y int, c Color) {
	if x >= 0 && x < t.Width && y >= 0 && y < t.Height {
		t.Pixels[y*t.Width+x] = c
	}
}

// RGBA8 packs the texels four bytes each, in upload order.
func (t *Texture) RGBA8() []byte {
	out := make([]byte, 0, len(t.Pixels)*4)
	for _, c := range t.Pixels {
		out = append(out, c.R, c.G, c.B, c.A)
	}
	return out
}

// Sample returns the texel nearest to (u, v), where (0, 0) is the top-left
// corner and whole numbers wrap around.
func (t *Texture) Sample(u, v float64) Color {
	if t.Width == 0 || t.Height == 0 {
		return Color{}
	}
	x := int((u - math.Floor(u)) * float64(t.Width))
	y := int((v - math.Floor(v)) * float64(t.Height))
	x = max(min(x, t.Width-1), 0)
	y = max(min(y, t.Height-1), 0)
	return t.Pixels[y*t.Width+x]
}

func mix(a, b Color, t float64) Color {
	ch := func(x, y uint8) uint8 { return uint8(float64(x) + (float64(y)-float64(x))*t) }
	return Color{R: ch(a.R, b.R), G: ch(a.G, b.G), B: ch(a.B, b.B), A: ch(a.A, b.A)}
}
