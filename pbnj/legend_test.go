package pbnj

import (
	"image"
	"image/color"
	"image/draw"
	"testing"
)

func TestDrawLegend(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	draw.Draw(img, img.Rect, image.NewUniform(color.RGBA{0, 0, 0, 255}), image.Point{}, draw.Src)

	out, err := drawLegend(img, DefaultTransferFunction())
	if err != nil {
		t.Fatalf("drawLegend: %v", err)
	}
	if out.Rect != img.Rect {
		t.Fatalf("bounds = %v, want %v", out.Rect, img.Rect)
	}
	// The bar spans x in [2, 21] and y in [42, 46]; its right end is white.
	if c := out.RGBAAt(18, 44); c.R < 100 {
		t.Errorf("legend pixel = %v, want a light gradient", c)
	}
	if c := out.RGBAAt(60, 5); c != (color.RGBA{0, 0, 0, 255}) {
		t.Errorf("pixel outside legend = %v, want untouched black", c)
	}
}

func TestDrawLegendTooSmall(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	out, err := drawLegend(img, DefaultTransferFunction())
	if err != nil {
		t.Fatal(err)
	}
	if out != img {
		t.Error("small image was redrawn")
	}
}

func TestColorMapPresets(t *testing.T) {
	names := ColorMapPresets()
	if len(names) != 4 {
		t.Fatalf("presets = %v", names)
	}
	for _, name := range names {
		p, err := ColorMapPreset(name)
		if err != nil {
			t.Fatalf("ColorMapPreset(%q): %v", name, err)
		}
		if err := checkColorMap(p); err != nil {
			t.Errorf("%v: %v", name, err)
		}
		tf := TransferFunction{ColorMap: p, OpacityMap: []float32{1}}.engineTransferFunction()
		if len(tf.Colors) != len(p)/3 {
			t.Errorf("%v: %v engine colors, want %v", name, len(tf.Colors), len(p)/3)
		}
	}
	// Presets are copied out.
	p, _ := ColorMapPreset("hot")
	p[0] = 9
	if q, _ := ColorMapPreset("hot"); q[0] == 9 {
		t.Error("ColorMapPreset returned shared storage")
	}
}
