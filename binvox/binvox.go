// Package binvox voxelizes scalar volumes at isovalues and writes binvox files.
package binvox

import (
	"errors"
	"fmt"
	"log"

	"github.com/gmlewis/stldice/v4/binvox"
)

// Field is a 3D grid of scalar samples. *pbnj.Volume implements it.
type Field interface {
	Dims() [3]int
	At(x, y, z int) float32
}

// Export writes the voxels of field whose value is at least isovalue to
// filename. The voxel grid is centered on the origin with unit spacing,
// matching where the volume is rendered.
func Export(filename string, field Field, isovalue float32) error {
	if field == nil {
		return errors.New("binvox: nil field")
	}
	d := field.Dims()
	if d[0] < 1 || d[1] < 1 || d[2] < 1 {
		return fmt.Errorf("binvox: invalid dimensions %v", d)
	}

	scale := float64(max(d[0], d[1], d[2]))
	b := binvox.New(
		d[0],
		d[1],
		d[2],
		-float64(d[0]-1)/2,
		-float64(d[1]-1)/2,
		-float64(d[2]-1)/2,
		scale,
		false,
	)

	c := new(b, isovalue)
	for z := 0; z < d[2]; z++ {
		c.processZSlice(field, z)
	}
	if c.count == 0 {
		log.Printf("binvox: no voxels at or above isovalue %v", isovalue)
	}

	log.Printf("Writing: %v (%v voxels)", filename, c.count)
	if err := b.Write(filename, 0, 0, 0, b.NX, b.NY, b.NZ); err != nil {
		return fmt.Errorf("Write: %v", err)
	}
	return nil
}

// ExportLevels writes one binvox file per isovalue, named
// <baseFilename>-isoNN.binvox.
func ExportLevels(baseFilename string, field Field, isovalues []float32) ([]string, error) {
	var files []string
	for i, iso := range isovalues {
		filename := fmt.Sprintf("%v-iso%02d.binvox", baseFilename, i+1)
		if err := Export(filename, field, iso); err != nil {
			return files, err
		}
		files = append(files, filename)
	}
	return files, nil
}

// client accumulates thresholded voxels into a BinVOX.
type client struct {
	b        *binvox.BinVOX
	isovalue float32
	count    int
}

// new returns a new volume-to-binvox client.
func new(b *binvox.BinVOX, isovalue float32) *client {
	return &client{b: b, isovalue: isovalue}
}

func (c *client) processZSlice(field Field, z int) {
	d := field.Dims()
	for y := 0; y < d[1]; y++ {
		for x := 0; x < d[0]; x++ {
			if field.At(x, y, z) >= c.isovalue {
				c.b.Add(x, y, z)
				c.count++
			}
		}
	}
}
