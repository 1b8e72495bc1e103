// Package fcmesh turns fiducube solids into triangle meshes and checks that
// the meshes are fit for slicing: closed, manifold, consistently wound and
// free of self intersections.
package fcmesh

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/soypat/geometry/ms3"
	"github.com/soypat/gsdf/glbuild"
	"github.com/soypat/gsdf/gleval"
	"github.com/soypat/gsdf/glrender"
	"go.uber.org/zap"
)

// Config controls triangulation.
type Config struct {
	// Resolution is the marching cube edge length in millimeters.
	Resolution float32
	// EvalBufferSize is the number of positions evaluated per batch.
	// Zero uses 4096.
	EvalBufferSize int
	// EnableCaching caches SDF evaluations on a grid of half the resolution.
	EnableCaching bool
	Log           *zap.Logger
}

// DefaultConfig returns a configuration suitable for FDM printing.
func DefaultConfig() Config {
	return Config{Resolution: 0.25, EvalBufferSize: 1 << 12, EnableCaching: true}
}

func (cfg Config) logger() *zap.Logger {
	if cfg.Log != nil {
		return cfg.Log
	}
	return zap.NewNop()
}

// Checker returns a mesh checker matched to the triangulation resolution.
func (cfg Config) Checker() Checker {
	return Checker{Tol: cfg.Resolution * 1e-3, CellSize: cfg.Resolution}
}

// Triangulate renders the zero level surface of s with outward facing
// triangles.
func Triangulate(s glbuild.Shader3D, cfg Config) ([]ms3.Triangle, error) {
	if s == nil {
		return nil, errors.New("nil shape")
	}
	if !(cfg.Resolution > 0) {
		return nil, fmt.Errorf("invalid resolution %g", cfg.Resolution)
	}
	bufsize := cfg.EvalBufferSize
	if bufsize == 0 {
		bufsize = 1 << 12
	}
	start := time.Now()
	sdf, err := gleval.NewCPUSDF3(s)
	if err != nil {
		return nil, fmt.Errorf("instantiating SDF: %w", err)
	}
	var cache *gleval.BlockCachedSDF3
	if cfg.EnableCaching {
		cache = new(gleval.BlockCachedSDF3)
		res := cfg.Resolution / 2
		if err := cache.Reset(sdf, res, res, res); err != nil {
			return nil, err
		}
		sdf = cache
	}
	renderer, err := glrender.NewOctreeRenderer(sdf, cfg.Resolution, bufsize)
	if err != nil {
		return nil, err
	}
	vp, _ := gleval.GetVecPool(sdf)
	tris, err := glrender.RenderAll(renderer, vp)
	if err != nil {
		return nil, fmt.Errorf("rendering triangles: %w", err)
	}
	flipped := Orient(tris)
	fields := []zap.Field{
		zap.Int("triangles", len(tris)),
		zap.Duration("elapsed", time.Since(start)),
		zap.Bool("flipped", flipped),
	}
	if cache != nil {
		fields = append(fields, zap.Uint64("evaluations", cache.Evaluations()), zap.Uint64("cache_hits", cache.CacheHits()))
	}
	cfg.logger().Debug("triangulated", fields...)
	return tris, nil
}

// Orient makes the enclosed volume of tris positive by reversing every
// triangle when it is negative. It reports whether triangles were reversed.
func Orient(tris []ms3.Triangle) bool {
	if signedVolume(tris) >= 0 {
		return false
	}
	for i := range tris {
		tris[i][1], tris[i][2] = tris[i][2], tris[i][1]
	}
	return true
}

func signedVolume(tris []ms3.Triangle) float64 {
	var v float64
	for _, t := range tris {
		a, b, c := t[0], t[1], t[2]
		v += float64(ms3.Dot(a, ms3.Cross(b, c)))
	}
	return v / 6
}

// WriteSTL writes tris as a binary STL file.
func WriteSTL(w io.Writer, tris []ms3.Triangle) error {
	_, err := glrender.WriteBinarySTL(w, tris)
	return err
}

// Verifier returns a check that triangulates a shape and fails when the
// mesh is not printable. It plugs into fiducube.Engine.Verify.
func Verifier(cfg Config) func(glbuild.Shader3D) error {
	return func(s glbuild.Shader3D) error {
		tris, err := Triangulate(s, cfg)
		if err != nil {
			return err
		}
		return cfg.Checker().Check(tris).Err()
	}
}
