// MODUL: imageproc
// ZWECK: Umwandlung zwischen Bilddateien und Bild-Tensoren in [-1, 1]
// INPUT: Dateipfad, io.Reader oder image.Image
// OUTPUT: Flacher NHWC-Puffer bzw. PNG-Bytes
// NEBENEFFEKTE: Dateisystem-Lesezugriff bei Load
// ABHAENGIGKEITEN: golang.org/x/image/draw, golang.org/x/image/webp
// HINWEISE: Hin-Transformation x/255*2-1, Rueck-Transformation (x+1)*255/2

package imageproc

import (
	"fmt"
	"image"
	"io"
	"os"

	// Standard-Decoder registrieren
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Decode dekodiert png, jpeg, gif oder webp
func Decode(r io.Reader) (image.Image, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("bild dekodieren fehlgeschlagen: %w", err)
	}
	return img, format, nil
}

// Load laedt ein Bild von einem Dateipfad
func Load(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("datei lesen fehlgeschlagen: %w", err)
	}
	defer f.Close()

	img, _, err := Decode(f)
	return img, err
}

// centerSquare returns the largest centered square inside r.
func centerSquare(r image.Rectangle) image.Rectangle {
	side := min(r.Dx(), r.Dy())
	x0 := r.Min.X + (r.Dx()-side)/2
	y0 := r.Min.Y + (r.Dy()-side)/2
	return image.Rect(x0, y0, x0+side, y0+side)
}

// FromImage center-crops img, resizes it to size x size and returns a
// [1, size, size, channels] buffer scaled to [-1, 1]. channels is 1 (luma),
// 3 (RGB) or 4 (RGBA).
func FromImage(img image.Image, size, channels int) ([]float32, error) {
	if size <= 0 {
		return nil, fmt.Errorf("imageproc: invalid size %d", size)
	}
	if channels != 1 && channels != 3 && channels != 4 {
		return nil, fmt.Errorf("imageproc: unsupported channel count %d", channels)
	}

	dst := image.NewNRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, centerSquare(img.Bounds()), draw.Src, nil)

	out := make([]float32, 0, size*size*channels)
	for y := range size {
		for x := range size {
			px := dst.NRGBAAt(x, y)
			switch channels {
			case 1:
				luma := (299*uint32(px.R) + 587*uint32(px.G) + 114*uint32(px.B) + 500) / 1000
				out = append(out, toUnit(uint8(luma)))
			case 3:
				out = append(out, toUnit(px.R), toUnit(px.G), toUnit(px.B))
			case 4:
				out = append(out, toUnit(px.R), toUnit(px.G), toUnit(px.B), toUnit(px.A))
			}
		}
	}
	return out, nil
}

func toUnit(v uint8) float32 {
	return float32(v)/255*2 - 1
}
