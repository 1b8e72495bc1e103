// Package fcaux holds the file system side of fiducube runs: configuration
// files, timestamped output folders, run manifests and STL export.
package fcaux

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/soypat/fiducube"
	"gopkg.in/yaml.v3"
)

// Config is the full description of a generation run.
type Config struct {
	Sizing fiducube.SizingParameters `yaml:"sizing"`
	Cube   fiducube.CubeOptions      `yaml:"cube"`
	Plate  fiducube.PlateOptions     `yaml:"plate"`

	Markers MarkerConfig `yaml:"markers"`
	Label   LabelConfig  `yaml:"label"`
	Mesh    MeshConfig   `yaml:"mesh"`

	// OutputPrefix starts the name of every run folder.
	OutputPrefix string `yaml:"output_prefix"`
	// Parallelism bounds concurrent part builds and exports. Zero uses GOMAXPROCS.
	Parallelism int `yaml:"parallelism"`
}

type MarkerConfig struct {
	Dictionary string `yaml:"dictionary"`
	// DictionaryFile is a YAML codebook loaded in addition to the builtin ones.
	DictionaryFile string `yaml:"dictionary_file"`
	// ImageDir reads marker images instead of a codebook when set.
	ImageDir     string `yaml:"image_dir"`
	ImagePattern string `yaml:"image_pattern"`
	IDs          []int  `yaml:"ids"`
}

type LabelConfig struct {
	Prefix string `yaml:"prefix"`
	// Font is a TrueType file. Empty uses the embedded ISO-3098 font.
	Font string `yaml:"font"`
	// Raster forces bitmap text tracing.
	Raster bool `yaml:"raster"`
}

type MeshConfig struct {
	Resolution    float32 `yaml:"resolution"`
	EnableCaching bool    `yaml:"caching"`
	// Verify triangulates every part and rejects meshes that are not
	// watertight before writing them.
	Verify bool `yaml:"verify"`
}

// DefaultConfig returns the configuration of the reference 150mm cube with
// plates for markers 0 to 4.
func DefaultConfig() Config {
	return Config{
		Sizing: fiducube.DefaultSizing(),
		Cube: fiducube.CubeOptions{
			Slots:      fiducube.SlotMitered,
			OpenTop:    false,
			OpenBottom: true,
		},
		Plate: fiducube.PlateOptions{
			Plug:  fiducube.SlotMitered,
			Bezel: true,
			Text:  fiducube.TextEmboss,
		},
		Markers: MarkerConfig{
			Dictionary:   "DICT_4X4_50",
			ImagePattern: "%d.png",
			IDs:          []int{0, 1, 2, 3, 4},
		},
		Label:        LabelConfig{Prefix: "ID "},
		Mesh:         MeshConfig{Resolution: 0.25, EnableCaching: true, Verify: true},
		OutputPrefix: "out_stls",
	}
}

// LoadConfig decodes YAML over the defaults. Fields absent from the input
// keep their default value and unknown fields are an error.
func LoadConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	err := dec.Decode(&cfg)
	if err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfigFile reads a configuration file.
func LoadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	return LoadConfig(bytes.NewReader(data))
}

// Save writes cfg as YAML.
func (cfg Config) Save(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	return enc.Close()
}

// Validate checks the settings not covered by [fiducube.Derive].
func (cfg Config) Validate() error {
	switch {
	case !(cfg.Mesh.Resolution > 0):
		return &fiducube.ParamError{Field: "mesh.resolution", Value: cfg.Mesh.Resolution, Reason: "must be positive"}
	case cfg.OutputPrefix == "":
		return &fiducube.ParamError{Field: "output_prefix", Value: cfg.OutputPrefix, Reason: "must not be empty"}
	case cfg.Parallelism < 0:
		return &fiducube.ParamError{Field: "parallelism", Value: cfg.Parallelism, Reason: "must not be negative"}
	case cfg.Markers.ImageDir == "" && cfg.Markers.Dictionary == "" && len(cfg.Markers.IDs) > 0:
		return &fiducube.ParamError{Field: "markers.dictionary", Value: "", Reason: "required without an image directory"}
	}
	return nil
}
