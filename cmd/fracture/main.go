// fracture is a CLI for inspecting and breaking tetrahedral lattices and 2D
// breakable grids.
package main

import (
	"context"
	"fmt"
	gomath "math"
	"os"
	"strconv"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/Faultbox/shatter/internal/breakable"
	"github.com/Faultbox/shatter/internal/config"
	"github.com/Faultbox/shatter/internal/geom"
	"github.com/Faultbox/shatter/internal/lattice"
	"github.com/Faultbox/shatter/internal/logger"
	"github.com/Faultbox/shatter/internal/world"
	"github.com/Faultbox/shatter/pkg/formats"
	"github.com/Faultbox/shatter/pkg/math"
)

func main() {
	config.ParseFlags()
	args := config.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	fileCfg := logger.FileConfig{}
	if cfg.Logging.LogFile != "" {
		fileCfg = logger.DefaultFileConfig(cfg.Logging.LogFile)
		fileCfg.Format = cfg.Logging.Format
	}
	if err := logger.InitWithFileConfig(cfg.Logging.Level, fileCfg, true); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	command, rest := args[0], args[1:]
	switch command {
	case "info":
		err = cmdInfo(cfg, rest)
	case "check":
		err = cmdCheck(cfg, rest, false)
	case "shatter":
		err = cmdCheck(cfg, rest, true)
	case "grid2d":
		err = cmdGrid2D(cfg, rest)
	case "params":
		err = cmdParams(cfg, rest)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`fracture - structural fracture toolkit

Usage:
  fracture [flags] <command> [arguments]

Commands:
  info <mesh>               Show TetGen mesh statistics and mass properties
  check <mesh> [impulse]    Pin the lowest layer and run one structural check
  shatter <mesh> [impulse]  Check and propagate cracks through a box surface
  grid2d <width> <height>   Generate a breakable rectangle and break it
  params <out.bin>          Write the lattice parameter block

<mesh> is a TetGen prefix: mesh.node and mesh.ele are read.

Examples:
  fracture info models/beam
  fracture -debug shatter models/beam 25
  fracture -seed 7 grid2d 4 2`)
}

func loadLattice(cfg *config.Config, prefix string) (*lattice.Lattice, error) {
	mesh, err := formats.LoadTetGen(prefix)
	if err != nil {
		return nil, err
	}
	return lattice.New(mesh.Points, mesh.Tets, cfg.Lattice)
}

func cmdInfo(cfg *config.Config, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: fracture info <mesh>")
	}
	l, err := loadLattice(cfg, args[0])
	if err != nil {
		return err
	}

	st := l.Stats()
	mp := l.MassProperties()
	lo, hi := l.Bounds().AABB()
	fmt.Printf("Mesh: %s\n", args[0])
	fmt.Printf("  Vertices:     %d\n", st.Vertices)
	fmt.Printf("  Tetrahedra:   %d\n", st.Tets)
	fmt.Printf("  Skin faces:   %d\n", len(l.SkinFaces()))
	fmt.Printf("  Grid cells:   %d (%d entries)\n", st.Cells, st.GridEntries)
	fmt.Printf("  Bounds:       %v - %v\n", lo, hi)
	fmt.Printf("  Mass:         %.6g\n", mp.Mass)
	fmt.Printf("  Centre:       %v\n", mp.Center)
	fmt.Printf("  Inertia:      %.6g %.6g %.6g\n", mp.Inertia[0], mp.Inertia[1], mp.Inertia[2])
	return nil
}

// defaultCrack registers a unit crack pattern for an equilateral triangle: a
// sphere at its centre joined with smaller ones at the corners. It returns the
// crack id.
func defaultCrack(geoms *geom.Manager, radius float64) (int, error) {
	tri := [3]mgl64.Vec3{{0, 0, 0}, {1, 0, 0}, {0.5, gomath.Sqrt(3) / 2, 0}}

	core, err := geom.NewSphere(radius)
	if err != nil {
		return 0, err
	}
	corner, err := geom.NewSphere(radius / 2)
	if err != nil {
		return 0, err
	}
	centre := tri[0].Add(tri[1]).Add(tri[2]).Mul(1.0 / 3)
	parts := make([]*geom.Solid, len(tri))
	for i, p := range tri {
		parts[i] = corner.Place(math.Translation(p))
	}
	h := geoms.Register(core.Place(math.Translation(centre)).Union(parts...))
	defer geoms.Release(h)

	return geoms.RegisterCrack(h, tri, 0)
}

func cmdCheck(cfg *config.Config, args []string, carve bool) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: fracture check <mesh> [impulse]")
	}
	l, err := loadLattice(cfg, args[0])
	if err != nil {
		return err
	}
	impulse := 0.0
	if len(args) > 1 {
		if impulse, err = strconv.ParseFloat(args[1], 64); err != nil {
			return fmt.Errorf("invalid impulse %q: %w", args[1], err)
		}
	}

	geoms := geom.NewManager(cfg.Crack)
	w := world.New(geoms, world.Options{
		Workers: cfg.World.Workers,
		Budget:  cfg.Solver.IterationBudget,
		Gravity: cfg.Solver.GravityVec(),
	})

	lo, hi := l.Bounds().AABB()
	var surface *geom.Surface
	crack := -1
	if carve {
		box, err := geom.NewBox(hi.Sub(lo))
		if err != nil {
			return err
		}
		surface = geom.NewSurface(box.Place(math.Translation(lo.Add(hi).Mul(0.5))))
		if crack, err = defaultCrack(geoms, 0.25); err != nil {
			return err
		}
	}
	id := w.AddBody(l, surface, 0)

	if impulse != 0 {
		top := mgl64.Vec3{(lo[0] + hi[0]) / 2, (lo[1] + hi[1]) / 2, hi[2] - (hi[2]-lo[2])*0.1}
		if _, err := w.ApplyImpulse(id, top, mgl64.Vec3{0, 0, impulse}, 0); err != nil {
			return err
		}
	}

	// pin everything touching the lowest layer
	env := world.Environment{
		Gravity: cfg.Solver.GravityVec(),
		Ground:  []math.Plane{math.GroundPlane(lo[2] + 1e-3*(hi[2]-lo[2]))},
	}
	events, err := w.Step(context.Background(), env, cfg.Solver.Dt)
	if err != nil {
		return err
	}

	if len(events) == 0 {
		fmt.Println("No fracture")
	}
	for _, ev := range events {
		r := ev.Result
		fmt.Printf("Fracture at tet %d face %d: %s, tension %.3f, stress %.3f, cracks %d\n",
			r.Tet, r.Face, r.Mode, r.Tension, r.Stress, r.Cracks)
	}
	if surface != nil {
		fmt.Printf("Surface cuts: %d, volume %.6g\n", surface.Cuts(), surface.Volume())
	}
	logger.Info("check finished", zap.Int("events", len(events)), zap.Int("crack_patterns", geoms.Cracks()))

	if err := w.Close(); err != nil {
		return err
	}
	if crack >= 0 {
		if err := geoms.UnregisterCrack(crack); err != nil {
			return err
		}
	}
	return geoms.Close()
}

func cmdGrid2D(cfg *config.Config, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: fracture grid2d <width> <height>")
	}
	var size [2]float64
	for i := range size {
		v, err := strconv.ParseFloat(args[i], 64)
		if err != nil || v <= 0 {
			return fmt.Errorf("invalid size %q", args[i])
		}
		size[i] = v
	}

	b := cfg.Breakable
	ring := orb.Ring{{0, 0}, {size[0], 0}, {size[0], size[1]}, {0, size[1]}, {0, 0}}
	g, err := breakable.Generate(ring, [2]int{b.CellsX, b.CellsY}, b.Seed, b.GenerateOptions())
	if err != nil {
		return err
	}
	fmt.Printf("Grid: %dx%d quads, %d triangles\n", g.Cells()[0], g.Cells()[1], g.Triangles())

	centre := orb.Point{size[0] / 2, size[1] / 2}
	res := g.BreakIntoChunks(centre, min(size[0], size[1])/3, b.MaxPatchTris, b.JoinThreshold, b.Seed, b.BreakOptions())
	fmt.Printf("Chunks: %d (%d grown patches), remains %d triangles\n",
		len(res.Chunks), res.GrownPatches, len(res.Remains.Triangles))
	for i, ch := range res.Chunks {
		kind := "patch"
		if ch.Island {
			kind = "island"
		}
		fmt.Printf("  %3d  %-6s %3d triangles, %d loops\n", i, kind, len(ch.Triangles), len(ch.Loops))
	}
	fmt.Printf("Available: %d\n", g.Available())
	return nil
}

func cmdParams(cfg *config.Config, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: fracture params <out.bin>")
	}
	if err := formats.WriteParamsFile(args[0], cfg.Lattice.Block()); err != nil {
		return err
	}
	fmt.Printf("Wrote params v%s to %s\n", formats.CurrentParamsVersion, args[0])
	return nil
}
