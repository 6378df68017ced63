// pbnj renders a volume described by a JSON configuration file to a PPM or
// PNG image.
//
// Usage:
//
//	pbnj -config cfg.json [-engine software|webgpu|opengl] [-samples n]
//	     [-mode volume|isosurface] [-o out.png] [-v]
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gmlewis/pbnj/binvox"
	"github.com/gmlewis/pbnj/engine"
	"github.com/gmlewis/pbnj/engine/opengl"
	"github.com/gmlewis/pbnj/engine/software"
	"github.com/gmlewis/pbnj/engine/webgpu"
	"github.com/gmlewis/pbnj/pbnj"
)

var (
	configFile = flag.String("config", "", "JSON configuration file (required)")
	engineName = flag.String("engine", "", "Rendering engine: software, webgpu or opengl (overrides config)")
	samples    = flag.Int("samples", 0, "Samples per pixel (overrides config)")
	mode       = flag.String("mode", "", "Render mode: volume or isosurface (overrides config)")
	output     = flag.String("o", "", "Output image, .ppm or .png (overrides config)")
	verbose    = flag.Bool("v", false, "Verbose logging")
)

func main() {
	flag.Parse()
	if *configFile == "" {
		flag.Usage()
		log.Fatalf("missing -config")
	}

	if *verbose {
		pbnj.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	cfg, err := pbnj.LoadConfiguration(*configFile)
	if err != nil {
		log.Fatalf("LoadConfiguration: %v", err)
	}
	if err := applyFlags(cfg); err != nil {
		log.Fatalf("%v", err)
	}

	if err := run(cfg); err != nil {
		log.Fatalf("%v", err)
	}
}

func applyFlags(cfg *pbnj.Configuration) error {
	if *engineName != "" {
		cfg.Engine = *engineName
	}
	if *samples > 0 {
		cfg.Samples = *samples
	}
	if *mode != "" {
		m, err := pbnj.ParseRenderMode(*mode)
		if err != nil {
			return err
		}
		cfg.RenderMode = m
	}
	if *output != "" {
		cfg.ImageFilename = *output
	}
	return nil
}

func run(cfg *pbnj.Configuration) error {
	format, err := pbnj.FormatFromFilename(cfg.ImageFilename)
	if err != nil {
		return err
	}

	dev, err := openDevice(cfg.Engine)
	if err != nil {
		return fmt.Errorf("openDevice: %v", err)
	}
	defer func() {
		if err := dev.Close(); err != nil {
			log.Printf("Close %v: %v", dev.Name(), err)
		}
	}()

	log.Printf("Loading volume: %v", cfg.DataFilename)
	vol, err := cfg.LoadVolume()
	if err != nil {
		return fmt.Errorf("LoadVolume: %v", err)
	}
	defer vol.Release()

	cam, err := cfg.NewCamera(vol.Bounds())
	if err != nil {
		return fmt.Errorf("NewCamera: %v", err)
	}
	defer cam.Release()

	r, err := pbnj.NewRenderer(dev)
	if err != nil {
		return err
	}
	defer r.Close()

	if err := cfg.Apply(r, vol, cam); err != nil {
		return err
	}

	log.Printf("Rendering %v (%v, %v samples) with %v engine: %v", r.Mode(), vol.Bounds(), r.Samples(), dev.Name(), cfg.ImageFilename)
	if err := r.RenderImageFormat(cfg.ImageFilename, format); err != nil {
		return fmt.Errorf("RenderImage: %v", err)
	}

	if cfg.BinvoxFilename != "" {
		iso, err := cfg.Isovalues(vol)
		if err != nil {
			return err
		}
		if _, err := exportBinvox(cfg.BinvoxFilename, vol, iso); err != nil {
			return err
		}
	}

	log.Printf("Done.")
	return nil
}

// exportBinvox writes filename for a single isovalue. Several isovalues
// write one numbered file each, next to filename.
func exportBinvox(filename string, field binvox.Field, iso []float32) ([]string, error) {
	if len(iso) == 1 {
		if err := binvox.Export(filename, field, iso[0]); err != nil {
			return nil, fmt.Errorf("binvox.Export: %v", err)
		}
		return []string{filename}, nil
	}
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	files, err := binvox.ExportLevels(base, field, iso)
	if err != nil {
		return files, fmt.Errorf("binvox.ExportLevels: %v", err)
	}
	return files, nil
}

func openDevice(name string) (engine.Device, error) {
	switch name {
	case "", "software":
		return software.New(), nil
	case "webgpu":
		d, err := webgpu.New()
		if err != nil {
			return nil, err
		}
		return d, nil
	case "opengl":
		d, err := opengl.New()
		if err != nil {
			return nil, err
		}
		return d, nil
	}
	return nil, fmt.Errorf("unknown engine %q", name)
}
