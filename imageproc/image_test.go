// MODUL: image_test
// ZWECK: Tests fuer Hin- und Rueck-Transformation von Bildern
// INPUT: Synthetische Bilder
// OUTPUT: Testresultate
// NEBENEFFEKTE: keine

package imageproc

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func solid(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestFromImageScale(t *testing.T) {
	data, err := FromImage(solid(8, 4, color.RGBA{255, 0, 255, 255}), 2, 3)
	if err != nil {
		t.Fatal(err)
	}

	if len(data) != 2*2*3 {
		t.Fatalf("Laenge = %d, erwartet 12", len(data))
	}

	want := []float32{1, -1, 1}
	for i, v := range data {
		if v != want[i%3] {
			t.Errorf("Wert %d = %v, erwartet %v", i, v, want[i%3])
		}
	}
}

func TestFromImageGray(t *testing.T) {
	data, err := FromImage(solid(3, 3, color.RGBA{255, 255, 255, 255}), 3, 1)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range data {
		if v != 1 {
			t.Errorf("Wert %d = %v, erwartet 1", i, v)
		}
	}
}

func TestFromImageInvalid(t *testing.T) {
	img := solid(2, 2, color.White)
	if _, err := FromImage(img, 0, 3); err == nil {
		t.Error("Groesse 0 sollte fehlschlagen")
	}
	if _, err := FromImage(img, 2, 2); err == nil {
		t.Error("2 Kanaele sollten fehlschlagen")
	}
}

func TestCenterSquare(t *testing.T) {
	got := centerSquare(image.Rect(0, 0, 10, 4))
	if want := image.Rect(3, 0, 7, 4); got != want {
		t.Errorf("centerSquare = %v, erwartet %v", got, want)
	}
}

func TestToImageClamps(t *testing.T) {
	img, err := ToImage([]float32{-3, 0, 1, 5}, 2, 2, 1)
	if err != nil {
		t.Fatal(err)
	}

	gray := img.(*image.Gray)
	want := []uint8{0, 128, 255, 255}
	for i, v := range gray.Pix {
		if v != want[i] {
			t.Errorf("Pixel %d = %d, erwartet %d", i, v, want[i])
		}
	}
}

func TestEncodePNGRoundTrip(t *testing.T) {
	nested := [][][][]float32{{
		{{1, -1, -1}, {-1, 1, -1}},
		{{-1, -1, 1}, {1, 1, 1}},
	}}

	raw, err := EncodePNG(nested)
	if err != nil {
		t.Fatal(err)
	}

	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 2 || b.Dy() != 2 {
		t.Fatalf("Groesse = %v, erwartet 2x2", b)
	}

	back, err := FromImage(img, 2, 3)
	if err != nil {
		t.Fatal(err)
	}
	flat := []float32{1, -1, -1, -1, 1, -1, -1, -1, 1, 1, 1, 1}
	for i := range flat {
		if back[i] != flat[i] {
			t.Errorf("Wert %d = %v, erwartet %v", i, back[i], flat[i])
		}
	}
}

func TestNestedToImageRagged(t *testing.T) {
	nested := [][][][]float32{{
		{{0, 0, 0}, {0, 0, 0}},
		{{0, 0, 0}},
	}}
	if _, err := NestedToImage(nested); err == nil {
		t.Error("ungleichmaessige Zeilen sollten fehlschlagen")
	}
}
