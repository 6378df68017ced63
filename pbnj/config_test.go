package pbnj

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gmlewis/pbnj/engine/software"
	"github.com/go-gl/mathgl/mgl32"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	filename := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(filename, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return filename
}

func TestLoadConfiguration(t *testing.T) {
	filename := writeConfig(t, `{
	"dataFilename": "/data/magnetic.raw",
	"dataDimensions": [512, 256, 128],
	"imageSize": [640, 480],
	"imageFilename": "out.png"
}`)
	c, err := LoadConfiguration(filename)
	if err != nil {
		t.Fatalf("LoadConfiguration: %v", err)
	}
	if c.DataFilename != "/data/magnetic.raw" || c.ImageFilename != "out.png" {
		t.Errorf("filenames = %q %q", c.DataFilename, c.ImageFilename)
	}
	if c.DataXDim != 512 || c.DataYDim != 256 || c.DataZDim != 128 {
		t.Errorf("dims = %v %v %v", c.DataXDim, c.DataYDim, c.DataZDim)
	}
	if c.ImageWidth != 640 || c.ImageHeight != 480 {
		t.Errorf("image = %vx%v", c.ImageWidth, c.ImageHeight)
	}
	// Defaults.
	if c.DataType != Float32 || c.Samples != 1 || c.RenderMode != ModeVolume || c.OpacityAttenuation != 1 {
		t.Errorf("defaults = %v %v %v %v", c.DataType, c.Samples, c.RenderMode, c.OpacityAttenuation)
	}
	if len(c.BackgroundColor) != 0 {
		t.Errorf("BackgroundColor = %v, want empty", c.BackgroundColor)
	}
}

func TestLoadConfigurationOptional(t *testing.T) {
	filename := writeConfig(t, `{
	"dataFilename": "supernova.nc",
	"dataVariable": "bfield",
	"imageSize": [32, 32],
	"imageFilename": "out.ppm",
	"dataType": "uint8",
	"memoryMap": true,
	"colorMap": "coolwarm",
	"opacityMap": [0, 0.2, 1],
	"opacityAttenuation": 0.5,
	"backgroundColor": [255, 128, 0],
	"samples": 8,
	"renderMode": "isosurface",
	"isoValues": [0.25, 0.75],
	"camera": {"position": [0, 0, 300], "up": [0, 1, 0], "fovy": 45},
	"engine": "webgpu",
	"legend": true,
	"binvoxFilename": "out.binvox"
}`)
	c, err := LoadConfiguration(filename)
	if err != nil {
		t.Fatalf("LoadConfiguration: %v", err)
	}
	if c.DataVariable != "bfield" || c.DataType != Uint8 || !c.MemoryMap {
		t.Errorf("data = %q %v %v", c.DataVariable, c.DataType, c.MemoryMap)
	}
	if c.ColorMap != "coolwarm" || len(c.OpacityMap) != 3 || c.OpacityAttenuation != 0.5 {
		t.Errorf("transfer function = %q %v %v", c.ColorMap, c.OpacityMap, c.OpacityAttenuation)
	}
	if string(c.BackgroundColor) != string([]uint8{255, 128, 0}) {
		t.Errorf("BackgroundColor = %v", c.BackgroundColor)
	}
	if c.Samples != 8 || c.RenderMode != ModeIsosurface || len(c.IsoValues) != 2 {
		t.Errorf("render = %v %v %v", c.Samples, c.RenderMode, c.IsoValues)
	}
	if c.Camera == nil || c.Camera.Fovy != 45 || len(c.Camera.Position) != 3 {
		t.Errorf("camera = %+v", c.Camera)
	}
	if c.Engine != "webgpu" || !c.Legend || c.BinvoxFilename != "out.binvox" {
		t.Errorf("engine %q legend %v binvox %q", c.Engine, c.Legend, c.BinvoxFilename)
	}
}

func TestLoadConfigurationClampsBackground(t *testing.T) {
	filename := writeConfig(t, `{
	"dataFilename": "a.raw",
	"dataDimensions": [1, 1, 1],
	"imageSize": [1, 1],
	"imageFilename": "a.png",
	"backgroundColor": [300, -5, 128]
}`)
	c, err := LoadConfiguration(filename)
	if err != nil {
		t.Fatalf("LoadConfiguration: %v", err)
	}
	if string(c.BackgroundColor) != string([]uint8{255, 0, 128}) {
		t.Errorf("BackgroundColor = %v, want [255 0 128]", c.BackgroundColor)
	}
}

func TestLoadConfigurationErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"malformed", `{"dataFilename": `, "unexpected end"},
		{"missing data", `{"dataDimensions": [1,1,1], "imageSize": [1,1], "imageFilename": "a.png"}`, "dataFilename"},
		{"missing image", `{"dataFilename": "a", "dataDimensions": [1,1,1], "imageSize": [1,1]}`, "imageFilename"},
		{"missing size", `{"dataFilename": "a", "dataDimensions": [1,1,1], "imageFilename": "a.png"}`, "imageSize"},
		{"missing dims", `{"dataFilename": "a", "imageSize": [1,1], "imageFilename": "a.png"}`, "dataDimensions"},
		{"wrong type", `{"dataFilename": 7, "dataDimensions": [1,1,1], "imageSize": [1,1], "imageFilename": "a.png"}`, "string"},
		{"bad background", `{"dataFilename": "a", "dataDimensions": [1,1,1], "imageSize": [1,1], "imageFilename": "a.png", "backgroundColor": [1]}`, "backgroundColor"},
		{"bad mode", `{"dataFilename": "a", "dataDimensions": [1,1,1], "imageSize": [1,1], "imageFilename": "a.png", "renderMode": "points"}`, "render mode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfiguration(writeConfig(t, tt.body))
			if err == nil {
				t.Fatal("LoadConfiguration succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}

	if _, err := LoadConfiguration(filepath.Join(t.TempDir(), "missing.json")); !os.IsNotExist(err) {
		t.Errorf("missing file = %v, want not exist", err)
	}
}

func TestConfigurationSession(t *testing.T) {
	raw := writeRaw(t, 6, 6, 6, sphere(6))
	c := &Configuration{
		DataFilename:       raw,
		DataXDim:           6,
		DataYDim:           6,
		DataZDim:           6,
		ImageWidth:         8,
		ImageHeight:        6,
		ImageFilename:      "out.ppm",
		ColorMap:           "hot",
		OpacityAttenuation: 0.5,
		BackgroundColor:    []uint8{0, 0, 40},
		Samples:            16,
		RenderMode:         ModeIsosurface,
	}
	v, err := c.LoadVolume()
	if err != nil {
		t.Fatalf("LoadVolume: %v", err)
	}
	defer v.Release()
	tf := v.TransferFunction()
	if len(tf.ColorMap) != 12 || tf.OpacityMap[1] != 0.5 {
		t.Errorf("transfer function = %+v", tf)
	}

	cam, err := c.NewCamera(v.Bounds())
	if err != nil {
		t.Fatalf("NewCamera: %v", err)
	}
	defer cam.Release()
	if got := cam.Position(); !got.ApproxEqual(mgl32.Vec3{0, 0, 12}) {
		t.Errorf("Position = %v, want orbit at twice the largest extent", got)
	}

	iso, err := c.Isovalues(v)
	if err != nil {
		t.Fatal(err)
	}
	s, _ := v.Statistics()
	if len(iso) != 1 || iso[0] != float32(s.Median) {
		t.Errorf("Isovalues = %v, want the median %v", iso, s.Median)
	}

	r, _ := NewRenderer(software.New())
	defer r.Close()
	if err := c.Apply(r, v, cam); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if r.Mode() != ModeIsosurface || r.Samples() != 16 || r.BackgroundColor() != [3]uint8{0, 0, 40} {
		t.Errorf("renderer mode %v samples %v background %v", r.Mode(), r.Samples(), r.BackgroundColor())
	}
	if _, err := r.RenderToBuffer(); err != nil {
		t.Errorf("RenderToBuffer: %v", err)
	}
}

func TestConfigurationCamera(t *testing.T) {
	c := &Configuration{
		ImageWidth:  4,
		ImageHeight: 4,
		Camera: &CameraConfiguration{
			Position:    []float32{0, 3, 4},
			OrbitRadius: 10,
			Fovy:        30,
		},
	}
	cam, err := c.NewCamera([]int{8, 8, 8})
	if err != nil {
		t.Fatal(err)
	}
	if got := cam.Position(); !got.ApproxEqual(mgl32.Vec3{0, 6, 8}) {
		t.Errorf("Position = %v, want (0,6,8)", got)
	}
	if cam.Fovy() != 30 {
		t.Errorf("Fovy = %v", cam.Fovy())
	}

	c.Camera = &CameraConfiguration{Position: []float32{1, 2}}
	if _, err := c.NewCamera(nil); err == nil {
		t.Error("two component position succeeded")
	}
}
