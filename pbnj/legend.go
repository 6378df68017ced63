package pbnj

import (
	"image"
	"image/draw"

	"github.com/gogpu/gg"
)

// drawLegend overlays the color map of tf as a horizontal bar in the lower
// left corner of img.
func drawLegend(img *image.RGBA, tf TransferFunction) (*image.RGBA, error) {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	if w < 16 || h < 16 || len(tf.ColorMap) < 3 {
		return img, nil
	}

	dc := gg.NewContextForImage(img)
	defer dc.Close()

	margin := max(float64(h)/40, 2)
	bw := float64(w) * 0.3
	bh := max(float64(h)/25, 4)
	x0, y0 := margin, float64(h)-margin-bh

	grad := gg.NewLinearGradientBrush(x0, y0, x0+bw, y0)
	n := len(tf.ColorMap) / 3
	for i := 0; i < n; i++ {
		off := 0.0
		if n > 1 {
			off = float64(i) / float64(n-1)
		}
		c := tf.ColorMap[3*i : 3*i+3]
		grad.AddColorStop(off, gg.RGB(float64(c[0]), float64(c[1]), float64(c[2])))
	}
	dc.SetFillBrush(grad)
	dc.DrawRectangle(x0, y0, bw, bh)
	if err := dc.Fill(); err != nil {
		return nil, err
	}

	dc.SetRGB(0.8, 0.8, 0.8)
	dc.SetLineWidth(1)
	dc.DrawRectangle(x0, y0, bw, bh)
	if err := dc.Stroke(); err != nil {
		return nil, err
	}
	if err := dc.FlushGPU(); err != nil {
		return nil, err
	}

	out, ok := dc.Image().(*image.RGBA)
	if !ok {
		out = image.NewRGBA(img.Rect)
		draw.Draw(out, out.Rect, dc.Image(), img.Rect.Min, draw.Src)
	}
	return out, nil
}
