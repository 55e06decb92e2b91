// Package config handles simulation configuration loading and management.
package config

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
	"go.uber.org/multierr"

	"github.com/Faultbox/shatter/internal/breakable"
	"github.com/Faultbox/shatter/internal/geom"
	"github.com/Faultbox/shatter/internal/lattice"
)

// Config holds all simulation settings.
type Config struct {
	Lattice   lattice.Params   `yaml:"lattice"`
	Crack     geom.MatchConfig `yaml:"crack"`
	Solver    SolverConfig     `yaml:"solver"`
	Breakable BreakableConfig  `yaml:"breakable"`
	World     WorldConfig      `yaml:"world"`
	Logging   LoggingConfig    `yaml:"logging"`
}

// SolverConfig holds per-step structural check settings.
type SolverConfig struct {
	IterationBudget int        `yaml:"iteration_budget"` // total face updates per check
	Gravity         [3]float64 `yaml:"gravity"`
	Dt              float64    `yaml:"dt"` // seconds per step
}

// GravityVec returns the gravity vector.
func (s SolverConfig) GravityVec() mgl64.Vec3 {
	return mgl64.Vec3(s.Gravity)
}

// BreakableConfig holds 2D breakable grid settings.
type BreakableConfig struct {
	CellsX        int     `yaml:"cells_x"`
	CellsY        int     `yaml:"cells_y"`
	MaxPatchTris  int     `yaml:"max_patch_tris"`
	JoinThreshold float64 `yaml:"join_threshold"`
	FilterAngle   float64 `yaml:"filter_angle"` // radians, 0 disables spike cropping
	EarSine       float64 `yaml:"ear_sine"`
	DiagSine      float64 `yaml:"diag_sine"`
	Seed          uint64  `yaml:"seed"`
}

// GenerateOptions converts to generator options.
func (b BreakableConfig) GenerateOptions() breakable.GenerateOptions {
	return breakable.GenerateOptions{DiagSine: b.DiagSine}
}

// BreakOptions converts to chunking options.
func (b BreakableConfig) BreakOptions() breakable.BreakOptions {
	return breakable.BreakOptions{FilterAngle: b.FilterAngle, EarSine: b.EarSine}
}

// WorldConfig holds scheduling settings.
type WorldConfig struct {
	Workers int `yaml:"workers"` // concurrent lattice checks, 0 means GOMAXPROCS
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
	Format  string `yaml:"format"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Lattice: lattice.DefaultParams(),
		Crack:   geom.DefaultMatchConfig(),
		Solver: SolverConfig{
			IterationBudget: 20000,
			Gravity:         [3]float64{0, 0, -9.81},
			Dt:              0.01,
		},
		Breakable: BreakableConfig{
			CellsX:        16,
			CellsY:        16,
			MaxPatchTris:  12,
			JoinThreshold: 0.3,
			FilterAngle:   0,
			EarSine:       0.5,
			DiagSine:      0.2,
			Seed:          1,
		},
		World: WorldConfig{
			Workers: 0,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
			Format:  "console",
		},
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var err error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			err = multierr.Append(err, fmt.Errorf(format, args...))
		}
	}

	l := c.Lattice
	check(l.Density > 0, "lattice.density must be positive, got %v", l.Density)
	check(l.MaxCracks >= 0, "lattice.max_cracks must not be negative, got %d", l.MaxCracks)
	check(l.CrackWeaken > 0 && l.CrackWeaken <= 1, "lattice.crack_weaken must be in (0,1], got %v", l.CrackWeaken)
	for _, limit := range []struct {
		name string
		v    float64
	}{
		{"max_force_push", l.MaxForcePush},
		{"max_force_pull", l.MaxForcePull},
		{"max_force_shift", l.MaxForceShift},
		{"max_torque_twist", l.MaxTorqueTwist},
		{"max_torque_bend", l.MaxTorqueBend},
	} {
		check(limit.v > 0, "lattice.%s must be positive, got %v", limit.name, limit.v)
	}
	check(l.CoplanarCos >= 0 && l.CoplanarCos <= 1, "lattice.coplanar_cos must be in [0,1], got %v", l.CoplanarCos)
	check(l.Strengthen >= 1, "lattice.strengthen must be at least 1, got %v", l.Strengthen)
	check(l.CrackQueue > 0, "lattice.crack_queue must be positive, got %d", l.CrackQueue)

	check(c.Crack.PosWeight >= 0 && c.Crack.ScaleWeight >= 0, "crack weights must not be negative")
	check(c.Crack.MaxDistance > 0, "crack.max_distance must be positive, got %v", c.Crack.MaxDistance)

	check(c.Solver.IterationBudget > 0, "solver.iteration_budget must be positive, got %d", c.Solver.IterationBudget)
	check(c.Solver.Dt > 0, "solver.dt must be positive, got %v", c.Solver.Dt)

	b := c.Breakable
	check(b.CellsX > 0 && b.CellsY > 0, "breakable cells must be positive, got %dx%d", b.CellsX, b.CellsY)
	check(b.JoinThreshold >= 0 && b.JoinThreshold <= 1, "breakable.join_threshold must be in [0,1], got %v", b.JoinThreshold)

	check(c.World.Workers >= 0, "world.workers must not be negative, got %d", c.World.Workers)

	switch c.Logging.Format {
	case "", "console", "json":
	default:
		check(false, "logging.format must be console or json, got %q", c.Logging.Format)
	}
	return err
}
