package pbnj

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// CameraConfiguration holds the optional camera block of a configuration.
type CameraConfiguration struct {
	Position    []float32 `json:"position"`
	View        []float32 `json:"view"`
	Up          []float32 `json:"up"`
	Fovy        float32   `json:"fovy"`
	OrbitRadius float32   `json:"orbitRadius"`
}

// Configuration is a render job read from a JSON file.
type Configuration struct {
	DataFilename            string
	DataVariable            string
	DataXDim, DataYDim      int
	DataZDim                int
	DataType                SampleType
	MemoryMap               bool
	ImageWidth, ImageHeight int
	ImageFilename           string

	ColorMap           string
	ColorPoints        []float32
	OpacityMap         []float32
	OpacityAttenuation float32
	BackgroundColor    []uint8
	Samples            int
	RenderMode         RenderMode
	IsoValues          []float32
	Camera             *CameraConfiguration
	Engine             string
	Legend             bool
	BinvoxFilename     string
}

type configFile struct {
	DataFilename       *string              `json:"dataFilename"`
	DataVariable       string               `json:"dataVariable"`
	DataDimensions     []int                `json:"dataDimensions"`
	DataType           string               `json:"dataType"`
	MemoryMap          bool                 `json:"memoryMap"`
	ImageSize          []int                `json:"imageSize"`
	ImageFilename      *string              `json:"imageFilename"`
	ColorMap           string               `json:"colorMap"`
	ColorPoints        []float32            `json:"colorPoints"`
	OpacityMap         []float32            `json:"opacityMap"`
	OpacityAttenuation *float32             `json:"opacityAttenuation"`
	BackgroundColor    []int                `json:"backgroundColor"`
	Samples            int                  `json:"samples"`
	RenderMode         string               `json:"renderMode"`
	IsoValues          []float32            `json:"isoValues"`
	Camera             *CameraConfiguration `json:"camera"`
	Engine             string               `json:"engine"`
	Legend             bool                 `json:"legend"`
	BinvoxFilename     string               `json:"binvoxFilename"`
}

// LoadConfiguration reads the JSON configuration at path.
//
// dataFilename, imageSize and imageFilename are required, as is
// dataDimensions unless dataVariable names a variable of a self-describing
// file. Values are not range checked.
func LoadConfiguration(path string) (*Configuration, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f configFile
	if err := json.Unmarshal(buf, &f); err != nil {
		return nil, fmt.Errorf("%v: %w", path, err)
	}
	c, err := f.configuration()
	if err != nil {
		return nil, fmt.Errorf("%v: %w", path, err)
	}
	return c, nil
}

func (f *configFile) configuration() (*Configuration, error) {
	var errs []error
	if f.DataFilename == nil {
		errs = append(errs, errors.New("missing dataFilename"))
	}
	if f.ImageFilename == nil {
		errs = append(errs, errors.New("missing imageFilename"))
	}
	if len(f.ImageSize) != 2 {
		errs = append(errs, errors.New("imageSize must hold width and height"))
	}
	if f.DataVariable == "" && len(f.DataDimensions) != 3 {
		errs = append(errs, errors.New("dataDimensions must hold x, y and z"))
	}
	if len(f.BackgroundColor) != 0 && len(f.BackgroundColor) != 3 {
		errs = append(errs, errors.New("backgroundColor must be empty or an RGB triple"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	c := &Configuration{
		DataFilename:       *f.DataFilename,
		DataVariable:       f.DataVariable,
		MemoryMap:          f.MemoryMap,
		ImageWidth:         f.ImageSize[0],
		ImageHeight:        f.ImageSize[1],
		ImageFilename:      *f.ImageFilename,
		ColorMap:           f.ColorMap,
		ColorPoints:        f.ColorPoints,
		OpacityMap:         f.OpacityMap,
		OpacityAttenuation: 1,
		Samples:            f.Samples,
		IsoValues:          f.IsoValues,
		Camera:             f.Camera,
		Engine:             f.Engine,
		Legend:             f.Legend,
		BinvoxFilename:     f.BinvoxFilename,
	}
	if len(f.DataDimensions) == 3 {
		c.DataXDim, c.DataYDim, c.DataZDim = f.DataDimensions[0], f.DataDimensions[1], f.DataDimensions[2]
	}
	if f.OpacityAttenuation != nil {
		c.OpacityAttenuation = *f.OpacityAttenuation
	}
	if c.Samples == 0 {
		c.Samples = 1
	}
	for _, v := range f.BackgroundColor {
		c.BackgroundColor = append(c.BackgroundColor, uint8(min(max(v, 0), 255)))
	}

	var err error
	if c.DataType, err = ParseSampleType(f.DataType); err != nil {
		return nil, err
	}
	if c.RenderMode, err = ParseRenderMode(f.RenderMode); err != nil {
		return nil, err
	}
	return c, nil
}
