package formats

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
)

// Lattice parameter block errors.
var (
	ErrInvalidParamsMagic       = errors.New("invalid params magic: expected 'LPRM'")
	ErrUnsupportedParamsVersion = errors.New("unsupported params version")
	ErrTruncatedParamsData      = errors.New("truncated params data")
)

// ParamsVersion represents the params block version.
type ParamsVersion struct {
	Major uint8
	Minor uint8
}

// String returns the version as "Major.Minor".
func (v ParamsVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// AtLeast reports whether v is major.minor or newer.
func (v ParamsVersion) AtLeast(major, minor uint8) bool {
	return v.Major > major || (v.Major == major && v.Minor >= minor)
}

// CurrentParamsVersion is written by Bytes.
var CurrentParamsVersion = ParamsVersion{Major: 1, Minor: 1}

// ParamsBlock is the flat, versioned lattice configuration record.
// Version 1.0 carries the material block only; 1.1 adds crack tuning.
type ParamsBlock struct {
	Version ParamsVersion

	Density        float64
	MaxCracks      int32
	CrackWeaken    float64
	MaxForcePush   float64
	MaxForcePull   float64
	MaxForceShift  float64
	MaxTorqueTwist float64
	MaxTorqueBend  float64

	// 1.1
	CoplanarCos float64
	Strengthen  float64
	CrackQueue  int32
}

// ParseParams parses a params block from raw bytes.
func ParseParams(data []byte) (*ParamsBlock, error) {
	if len(data) < 6 {
		return nil, ErrTruncatedParamsData
	}

	if string(data[0:4]) != "LPRM" {
		return nil, ErrInvalidParamsMagic
	}

	// Version is stored as [minor, major]
	version := ParamsVersion{
		Major: data[5],
		Minor: data[4],
	}
	if version.Major != 1 || version.Minor > 1 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedParamsVersion, version)
	}

	r := bytes.NewReader(data[6:])
	p := &ParamsBlock{Version: version}

	material := []any{
		&p.Density, &p.MaxCracks, &p.CrackWeaken,
		&p.MaxForcePush, &p.MaxForcePull, &p.MaxForceShift,
		&p.MaxTorqueTwist, &p.MaxTorqueBend,
	}
	for i, field := range material {
		if err := binary.Read(r, binary.LittleEndian, field); err != nil {
			return nil, fmt.Errorf("%w: reading field %d", ErrTruncatedParamsData, i)
		}
	}

	if version.AtLeast(1, 1) {
		for i, field := range []any{&p.CoplanarCos, &p.Strengthen, &p.CrackQueue} {
			if err := binary.Read(r, binary.LittleEndian, field); err != nil {
				return nil, fmt.Errorf("%w: reading crack field %d", ErrTruncatedParamsData, i)
			}
		}
	}

	return p, nil
}

// ParseParamsFile parses a params block from disk.
func ParseParamsFile(path string) (*ParamsBlock, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading params file: %w", err)
	}
	return ParseParams(data)
}

// Bytes encodes the block at CurrentParamsVersion.
func (p *ParamsBlock) Bytes() []byte {
	buf := new(bytes.Buffer)
	buf.WriteString("LPRM")
	buf.WriteByte(CurrentParamsVersion.Minor)
	buf.WriteByte(CurrentParamsVersion.Major)

	for _, field := range []any{
		p.Density, p.MaxCracks, p.CrackWeaken,
		p.MaxForcePush, p.MaxForcePull, p.MaxForceShift,
		p.MaxTorqueTwist, p.MaxTorqueBend,
		p.CoplanarCos, p.Strengthen, p.CrackQueue,
	} {
		// bytes.Buffer writes never fail
		_ = binary.Write(buf, binary.LittleEndian, field)
	}
	return buf.Bytes()
}

// WriteParamsFile writes the block to disk.
func WriteParamsFile(path string, p *ParamsBlock) error {
	return os.WriteFile(path, p.Bytes(), 0644)
}
