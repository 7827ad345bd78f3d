// Command darkroom applies a photo edit preset to an image file.
//
// The preset is a TOML file mirroring darkroom.EditParams:
//
//	rotation = 90.0
//	target_resolution = 0.5
//	compute_histogram = true
//
//	[adjustments]
//	exposure = 0.4
//	contrast = 0.2
//
//	[[curve]]
//	x = 0.0
//	y = 0.0
//	[[curve]]
//	x = 1.0
//	y = 1.0
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"golang.org/x/image/tiff"

	"github.com/gogpu/darkroom"
)

// preset is the TOML form of an edit.
type preset struct {
	Rotation         float32              `toml:"rotation"`
	TargetResolution float32              `toml:"target_resolution"`
	ComputeHistogram bool                 `toml:"compute_histogram"`
	Adjustments      presetAdjust         `toml:"adjustments"`
	Curve            []presetCurvePoint   `toml:"curve"`
	LinearMasks      []presetLinearMask   `toml:"linear_mask"`
	RadialMasks      []presetRadialMask   `toml:"radial_mask"`
}

type presetAdjust struct {
	Temperature float32 `toml:"temperature"`
	Tint        float32 `toml:"tint"`
	Exposure    float32 `toml:"exposure"`
	Contrast    float32 `toml:"contrast"`
	Highlights  float32 `toml:"highlights"`
	Shadows     float32 `toml:"shadows"`
	Whites      float32 `toml:"whites"`
	Blacks      float32 `toml:"blacks"`
	Vibrance    float32 `toml:"vibrance"`
	Saturation  float32 `toml:"saturation"`
}

type presetCurvePoint struct {
	X float32 `toml:"x"`
	Y float32 `toml:"y"`
}

type presetLinearMask struct {
	X0     float32      `toml:"x0"`
	Y0     float32      `toml:"y0"`
	X1     float32      `toml:"x1"`
	Y1     float32      `toml:"y1"`
	Invert bool         `toml:"invert"`
	Adjust presetAdjust `toml:"adjustments"`
}

type presetRadialMask struct {
	CenterX float32      `toml:"center_x"`
	CenterY float32      `toml:"center_y"`
	RadiusX float32      `toml:"radius_x"`
	RadiusY float32      `toml:"radius_y"`
	Feather float32      `toml:"feather"`
	Invert  bool         `toml:"invert"`
	Adjust  presetAdjust `toml:"adjustments"`
}

func (a presetAdjust) toParams() darkroom.Adjustments {
	return darkroom.Adjustments{
		Temperature: a.Temperature,
		Tint:        a.Tint,
		Exposure:    a.Exposure,
		Contrast:    a.Contrast,
		Highlights:  a.Highlights,
		Shadows:     a.Shadows,
		Whites:      a.Whites,
		Blacks:      a.Blacks,
		Vibrance:    a.Vibrance,
		Saturation:  a.Saturation,
	}
}

func (p preset) toParams() darkroom.EditParams {
	params := darkroom.EditParams{
		Rotation:         p.Rotation,
		Adjustments:      p.Adjustments.toParams(),
		TargetResolution: p.TargetResolution,
		ComputeHistogram: p.ComputeHistogram,
		OutputFormat:     darkroom.FormatRGBA,
	}
	for _, c := range p.Curve {
		params.ToneCurvePoints = append(params.ToneCurvePoints, darkroom.CurvePoint{X: c.X, Y: c.Y})
	}
	for _, m := range p.LinearMasks {
		params.Masks.Linear = append(params.Masks.Linear, darkroom.LinearMask{
			Enabled: true,
			X0:      m.X0, Y0: m.Y0, X1: m.X1, Y1: m.Y1,
			Invert: m.Invert,
			Adjust: m.Adjust.toParams(),
		})
	}
	for _, m := range p.RadialMasks {
		params.Masks.Radial = append(params.Masks.Radial, darkroom.RadialMask{
			Enabled: true,
			CenterX: m.CenterX, CenterY: m.CenterY,
			RadiusX: m.RadiusX, RadiusY: m.RadiusY,
			Feather: m.Feather,
			Invert:  m.Invert,
			Adjust:  m.Adjust.toParams(),
		})
	}
	return params
}

func main() {
	var (
		in         = flag.String("in", "", "input image (jpeg, png or tiff)")
		out        = flag.String("out", "out.png", "output PNG file")
		presetPath = flag.String("preset", "", "TOML edit preset (identity when empty)")
		cpu        = flag.Bool("cpu", false, "force the CPU reference path")
		verbose    = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	if *in == "" {
		log.Fatal("missing -in")
	}
	if *verbose {
		darkroom.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	input, err := loadImage(*in)
	if err != nil {
		log.Fatalf("Failed to load %s: %v", *in, err)
	}

	var params darkroom.EditParams
	params.OutputFormat = darkroom.FormatRGBA
	if *presetPath != "" {
		params, err = loadPreset(*presetPath)
		if err != nil {
			log.Fatalf("Failed to load preset %s: %v", *presetPath, err)
		}
	}

	pipeline := darkroom.New(darkroom.Config{UseCPUFallback: *cpu})
	defer pipeline.Destroy()

	ctx := context.Background()
	gpu, err := pipeline.Initialize(ctx)
	if err != nil {
		log.Fatalf("Failed to initialize pipeline: %v", err)
	}
	backend := "cpu"
	if gpu {
		backend = "gpu"
	}

	result, err := pipeline.Process(ctx, input, params)
	if err != nil {
		log.Fatalf("Failed to process: %v", err)
	}

	if err := savePNG(*out, result); err != nil {
		log.Fatalf("Failed to save %s: %v", *out, err)
	}

	log.Printf("Wrote %s (%dx%d, %s backend)", *out, result.Width, result.Height, backend)
	for _, s := range result.Stages {
		if s.GPUValid {
			log.Printf("  %-12s cpu=%v gpu=%v", s.Stage, s.CPU, s.GPU)
		} else {
			log.Printf("  %-12s cpu=%v", s.Stage, s.CPU)
		}
	}
	if result.Histogram != nil {
		log.Printf("  histogram: %d pixels binned", result.Histogram.Total())
	}
}

// loadImage decodes a JPEG, PNG or TIFF file into an RGBA EditInput.
func loadImage(path string) (darkroom.EditInput, error) {
	f, err := os.Open(path)
	if err != nil {
		return darkroom.EditInput{}, err
	}
	defer f.Close()

	var img image.Image
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		img, err = jpeg.Decode(f)
	case ".png":
		img, err = png.Decode(f)
	case ".tif", ".tiff":
		img, err = tiff.Decode(f)
	default:
		img, _, err = image.Decode(f)
	}
	if err != nil {
		return darkroom.EditInput{}, err
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	pixels := make([]byte, w*h*4)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, a := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			i := (y*w + x) * 4
			pixels[i+0] = byte(r >> 8)
			pixels[i+1] = byte(g >> 8)
			pixels[i+2] = byte(b >> 8)
			pixels[i+3] = byte(a >> 8)
		}
	}
	return darkroom.EditInput{
		Pixels: pixels,
		Width:  w,
		Height: h,
		Format: darkroom.FormatRGBA,
	}, nil
}

func loadPreset(path string) (darkroom.EditParams, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return darkroom.EditParams{}, err
	}
	var p preset
	if err := toml.Unmarshal(data, &p); err != nil {
		return darkroom.EditParams{}, fmt.Errorf("parse preset: %w", err)
	}
	return p.toParams(), nil
}

func savePNG(path string, result *darkroom.EditResult) error {
	img := image.NewRGBA(image.Rect(0, 0, result.Width, result.Height))
	switch result.Format {
	case darkroom.FormatRGBA:
		copy(img.Pix, result.Pixels)
	default:
		for i := 0; i < result.Width*result.Height; i++ {
			img.Pix[i*4+0] = result.Pixels[i*3+0]
			img.Pix[i*4+1] = result.Pixels[i*3+1]
			img.Pix[i*4+2] = result.Pixels[i*3+2]
			img.Pix[i*4+3] = 0xFF
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}
