package main

import (
	"os"
	"path/filepath"
	"testing"
)

type rampField struct{}

func (rampField) Dims() [3]int           { return [3]int{4, 2, 2} }
func (rampField) At(x, y, z int) float32 { return float32(x) }

func TestExportBinvox(t *testing.T) {
	dir := t.TempDir()

	files, err := exportBinvox(filepath.Join(dir, "one.binvox"), rampField{}, []float32{1})
	if err != nil {
		t.Fatalf("exportBinvox: %v", err)
	}
	if len(files) != 1 || files[0] != filepath.Join(dir, "one.binvox") {
		t.Errorf("single isovalue files = %v", files)
	}

	files, err = exportBinvox(filepath.Join(dir, "levels.binvox"), rampField{}, []float32{1, 3})
	if err != nil {
		t.Fatalf("exportBinvox: %v", err)
	}
	want := []string{
		filepath.Join(dir, "levels-iso01.binvox"),
		filepath.Join(dir, "levels-iso02.binvox"),
	}
	if len(files) != len(want) {
		t.Fatalf("files = %v, want %v", files, want)
	}
	for i, f := range files {
		if f != want[i] {
			t.Errorf("files[%v] = %v, want %v", i, f, want[i])
		}
		if _, err := os.Stat(f); err != nil {
			t.Errorf("Stat(%v): %v", f, err)
		}
	}
}
