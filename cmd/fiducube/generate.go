package main

import (
	"fmt"
	"os"
	"time"

	"github.com/soypat/fiducube"
	"github.com/soypat/fiducube/fcaux"
	"github.com/soypat/fiducube/fcmesh"
	"github.com/soypat/fiducube/label"
	"github.com/soypat/fiducube/markers"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var (
	flagIDs            []int
	flagOut            string
	flagRes            float32
	flagDictionary     string
	flagDictionaryFile string
	flagMarkerImages   string
	flagFont           string
	flagRasterText     bool
	flagNoLabel        bool
	flagVerify         bool
	flagVerifySteps    bool
	flagParallel       int
	flagOpenTop        bool
	flagFlat           bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Build the cube and marker plates and write them as STL files",
	Long: `Builds the cube, the marker-free plate template and three parts per marker
ID (base, marker overlay, combined) and writes them to a new timestamped
folder with a run_info.yaml manifest.

Example:
  fiducube generate --ids 0,1,2 --res 0.3 --verify`,
	Args: cobra.NoArgs,
	RunE: runGenerate,
}

var dimsCmd = &cobra.Command{
	Use:   "dims",
	Short: "Print the derived slot, plate and marker dimensions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		dims, err := fiducube.Derive(cfg.Sizing)
		if err != nil {
			return err
		}
		if dims.Oversize != nil {
			logger.Warn("marker clamped to plate", zap.Error(dims.Oversize))
		}
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		if err := enc.Encode(fcaux.Summarize(dims)); err != nil {
			return err
		}
		return enc.Close()
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return cfg.Save(cmd.OutOrStdout())
	},
}

func init() {
	for _, c := range []*cobra.Command{generateCmd, dimsCmd, configCmd} {
		c.Flags().BoolVar(&flagOpenTop, "open-top", false, "Cut the top slot floor open and add the perimeter ramp")
		c.Flags().BoolVar(&flagFlat, "flat", false, "Use flat-ledge slots and plugs instead of mitered ones")
	}
	f := generateCmd.Flags()
	f.IntSliceVar(&flagIDs, "ids", nil, "Marker IDs to build plates for")
	f.StringVarP(&flagOut, "out", "o", "", "Run folder prefix")
	f.Float32Var(&flagRes, "res", 0, "Triangulation resolution in millimeters")
	f.StringVar(&flagDictionary, "dictionary", "", "Marker dictionary name")
	f.StringVar(&flagDictionaryFile, "dictionary-file", "", "YAML marker codebook to load")
	f.StringVar(&flagMarkerImages, "marker-images", "", "Directory of marker images named by the configured pattern")
	f.StringVar(&flagFont, "font", "", "TrueType font for plate labels")
	f.BoolVar(&flagRasterText, "raster-text", false, "Trace labels from a bitmap instead of glyph outlines")
	f.BoolVar(&flagNoLabel, "no-label", false, "Build plates without ID labels")
	f.BoolVar(&flagVerify, "verify", false, "Reject parts whose meshes are not watertight (on by default, --verify=false to skip)")
	f.BoolVar(&flagVerifySteps, "verify-steps", false, "Triangulate and check after every boolean step (slow)")
	f.IntVarP(&flagParallel, "parallel", "j", 0, "Concurrent part builds (default: number of CPUs)")
}

// loadConfig reads the configuration file and applies command line
// overrides on top of it.
func loadConfig(cmd *cobra.Command) (fcaux.Config, error) {
	cfg := fcaux.DefaultConfig()
	if configPath != "" {
		var err error
		cfg, err = fcaux.LoadConfigFile(configPath)
		if err != nil {
			return cfg, err
		}
	}
	flags := cmd.Flags()
	if flags.Changed("open-top") {
		cfg.Cube.OpenTop = flagOpenTop
	}
	if flags.Changed("flat") && flagFlat {
		cfg.Cube.Slots = fiducube.SlotFlatLedge
		cfg.Plate.Plug = fiducube.SlotFlatLedge
	}
	if flags.Changed("ids") {
		cfg.Markers.IDs = flagIDs
	}
	if flags.Changed("out") {
		cfg.OutputPrefix = flagOut
	}
	if flags.Changed("res") {
		cfg.Mesh.Resolution = flagRes
	}
	if flags.Changed("dictionary") {
		cfg.Markers.Dictionary = flagDictionary
	}
	if flags.Changed("dictionary-file") {
		cfg.Markers.DictionaryFile = flagDictionaryFile
	}
	if flags.Changed("marker-images") {
		cfg.Markers.ImageDir = flagMarkerImages
	}
	if flags.Changed("font") {
		cfg.Label.Font = flagFont
	}
	if flags.Changed("raster-text") {
		cfg.Label.Raster = flagRasterText
	}
	if flags.Changed("no-label") && flagNoLabel {
		cfg.Plate.Text = fiducube.TextNone
	}
	if flags.Changed("verify") {
		cfg.Mesh.Verify = flagVerify
	}
	if flags.Changed("parallel") {
		cfg.Parallelism = flagParallel
	}
	return cfg, cfg.Validate()
}

func bitSource(cfg fcaux.Config) (fiducube.BitSource, error) {
	if cfg.Markers.ImageDir != "" {
		return markers.ImageDir{
			Dir:     cfg.Markers.ImageDir,
			Pattern: cfg.Markers.ImagePattern,
			Cells:   cfg.Sizing.GridCells,
		}, nil
	}
	set, err := markers.Builtin()
	if err != nil {
		return nil, err
	}
	if cfg.Markers.DictionaryFile != "" {
		d, err := markers.LoadDictionaryFile(cfg.Markers.DictionaryFile)
		if err != nil {
			return nil, err
		}
		set.Add(d)
	}
	d, ok := set.Dictionary(cfg.Markers.Dictionary)
	if !ok {
		return nil, fmt.Errorf("dictionary %q not found", cfg.Markers.Dictionary)
	}
	if d.Cells() != cfg.Sizing.GridCells {
		logger.Warn("dictionary grid differs from sizing grid_cells",
			zap.String("dictionary", d.Name), zap.Int("cells", d.Cells()), zap.Int("grid_cells", cfg.Sizing.GridCells))
	}
	return set, nil
}

func textSource(cfg fcaux.Config) (fiducube.TextSource, error) {
	if cfg.Plate.Text == fiducube.TextNone {
		return nil, nil
	}
	var ttf []byte
	if cfg.Label.Font != "" {
		var err error
		ttf, err = os.ReadFile(cfg.Label.Font)
		if err != nil {
			return nil, fmt.Errorf("reading font: %w", err)
		}
	}
	fallback := label.NewRaster(nil)
	if cfg.Label.Raster {
		if ttf == nil {
			return fallback, nil
		}
		r, err := label.NewRasterTTF(ttf, 48)
		if err != nil {
			return nil, err
		}
		return label.Fallback{r, fallback}, nil
	}
	v, err := label.NewVector(ttf, 0)
	if err != nil {
		logger.Warn("vector font unavailable, using raster labels", zap.Error(err))
		return fallback, nil
	}
	return label.Fallback{v, fallback}, nil
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	bits, err := bitSource(cfg)
	if err != nil {
		return err
	}
	text, err := textSource(cfg)
	if err != nil {
		return err
	}
	meshCfg := fcmesh.Config{
		Resolution:    cfg.Mesh.Resolution,
		EnableCaching: cfg.Mesh.EnableCaching,
		Log:           logger,
	}
	gen := fiducube.Generator{
		Params:      cfg.Sizing,
		Cube:        cfg.Cube,
		Plate:       cfg.Plate,
		Dictionary:  cfg.Markers.Dictionary,
		Bits:        bits,
		Text:        text,
		LabelPrefix: cfg.Label.Prefix,
		Parallelism: cfg.Parallelism,
		Log:         logger,
	}
	gen.Assembler.Engine.Log = logger
	if flagVerifySteps {
		gen.Assembler.Engine.Verify = fcmesh.Verifier(meshCfg)
	}

	start := time.Now()
	result, err := gen.Generate(cfg.Markers.IDs)
	if err != nil {
		return err
	}
	dir, err := fcaux.MakeRunDir(cfg.OutputPrefix, start)
	if err != nil {
		return err
	}
	exported, exportErr := fcaux.Export(cmd.Context(), dir, result, fcaux.ExportOptions{
		Mesh:        meshCfg,
		Verify:      cfg.Mesh.Verify,
		Parallelism: cfg.Parallelism,
		Log:         logger,
	})
	manifest := fcaux.NewManifest(cfg, result, exported, start)
	path, err := manifest.WriteFile(dir)
	if err != nil {
		return err
	}
	logger.Info("run complete",
		zap.String("dir", dir),
		zap.String("manifest", path),
		zap.Stringer("run_id", manifest.RunID),
		zap.Int("written", len(exported)),
		zap.Int("failed", len(result.Failures)),
		zap.Duration("elapsed", time.Since(start)),
	)
	if exportErr != nil {
		return exportErr
	}
	return result.Err()
}
