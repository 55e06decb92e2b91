package lattice

import (
	"github.com/Faultbox/shatter/pkg/formats"
)

// Params are the material and crack tuning parameters of a lattice.
type Params struct {
	Density        float64 `yaml:"density"`
	MaxCracks      int     `yaml:"max_cracks"`   // crack attempts per check
	CrackWeaken    float64 `yaml:"crack_weaken"` // strength kept by coplanar neighbours of a crack
	MaxForcePush   float64 `yaml:"max_force_push"`
	MaxForcePull   float64 `yaml:"max_force_pull"`
	MaxForceShift  float64 `yaml:"max_force_shift"`
	MaxTorqueTwist float64 `yaml:"max_torque_twist"`
	MaxTorqueBend  float64 `yaml:"max_torque_bend"`

	CoplanarCos float64 `yaml:"coplanar_cos"`
	Strengthen  float64 `yaml:"strengthen"` // applied to a face whose crack failed
	CrackQueue  int     `yaml:"crack_queue"`
}

// DefaultParams returns the default material.
func DefaultParams() Params {
	return Params{
		Density:        1,
		MaxCracks:      4,
		CrackWeaken:    0.4,
		MaxForcePush:   0.01,
		MaxForcePull:   0.01,
		MaxForceShift:  0.01,
		MaxTorqueTwist: 0.01,
		MaxTorqueBend:  0.01,
		CoplanarCos:    0.75,
		Strengthen:     1.5,
		CrackQueue:     32,
	}
}

// Block converts the parameters to the binary params block.
func (p Params) Block() *formats.ParamsBlock {
	return &formats.ParamsBlock{
		Version:        formats.CurrentParamsVersion,
		Density:        p.Density,
		MaxCracks:      int32(p.MaxCracks),
		CrackWeaken:    p.CrackWeaken,
		MaxForcePush:   p.MaxForcePush,
		MaxForcePull:   p.MaxForcePull,
		MaxForceShift:  p.MaxForceShift,
		MaxTorqueTwist: p.MaxTorqueTwist,
		MaxTorqueBend:  p.MaxTorqueBend,
		CoplanarCos:    p.CoplanarCos,
		Strengthen:     p.Strengthen,
		CrackQueue:     int32(p.CrackQueue),
	}
}

// ParamsFromBlock converts a binary params block. Blocks older than 1.1 get
// the default crack tuning.
func ParamsFromBlock(b *formats.ParamsBlock) Params {
	p := DefaultParams()
	p.Density = b.Density
	p.MaxCracks = int(b.MaxCracks)
	p.CrackWeaken = b.CrackWeaken
	p.MaxForcePush = b.MaxForcePush
	p.MaxForcePull = b.MaxForcePull
	p.MaxForceShift = b.MaxForceShift
	p.MaxTorqueTwist = b.MaxTorqueTwist
	p.MaxTorqueBend = b.MaxTorqueBend
	if b.Version.AtLeast(1, 1) {
		p.CoplanarCos = b.CoplanarCos
		p.Strengthen = b.Strengthen
		p.CrackQueue = int(b.CrackQueue)
	}
	return p
}

// Params returns the current parameters.
func (l *Lattice) Params() Params {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.params
}

// SetParams replaces the parameters. A density change rescales the element
// masses and inertias, and also every force limit left equal to its current
// value.
func (l *Lattice) SetParams(p Params) {
	l.mu.Lock()
	defer l.mu.Unlock()

	old := l.params
	if p.Density > 0 && old.Density > 0 && p.Density != old.Density {
		diff := p.Density / old.Density
		for i := range l.tets {
			t := &l.tets[i]
			t.M *= diff
			t.Minv /= diff
			t.Iinv = t.Iinv.Mul(1 / diff)
		}
		rescale := func(next *float64, prev float64) {
			if *next == prev {
				*next = prev * diff
			}
		}
		rescale(&p.MaxForcePush, old.MaxForcePush)
		rescale(&p.MaxForcePull, old.MaxForcePull)
		rescale(&p.MaxForceShift, old.MaxForceShift)
		rescale(&p.MaxTorqueTwist, old.MaxTorqueTwist)
		rescale(&p.MaxTorqueBend, old.MaxTorqueBend)
	} else if p.Density <= 0 {
		p.Density = old.Density
	}
	l.params = p
}
