package formats

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
)

// TetGen mesh errors.
var (
	ErrInvalidNodeHeader = errors.New("invalid .node header")
	ErrInvalidEleHeader  = errors.New("invalid .ele header")
	ErrTruncatedMesh     = errors.New("truncated mesh data")
	ErrInvalidMeshIndex  = errors.New("mesh index out of range")
)

// TetMesh is a tetrahedral mesh read from a TetGen .node/.ele pair.
// Tets index Points starting from zero.
type TetMesh struct {
	Points []mgl64.Vec3
	Tets   [][4]int32
	Base   int // first point number used in the source files
}

// lineReader yields non-empty, comment-stripped lines split into fields.
type lineReader struct {
	sc   *bufio.Scanner
	line int
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{sc: bufio.NewScanner(r)}
}

func (lr *lineReader) next() ([]string, bool) {
	for lr.sc.Scan() {
		lr.line++
		text := lr.sc.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		if fields := strings.Fields(text); len(fields) > 0 {
			return fields, true
		}
	}
	return nil, false
}

func atoi(fields []string, i int) (int, error) {
	if i >= len(fields) {
		return 0, ErrTruncatedMesh
	}
	return strconv.Atoi(fields[i])
}

// ParseNode parses a .node file. It returns the points and the number of the
// first point, which .ele indices are relative to.
func ParseNode(r io.Reader) ([]mgl64.Vec3, int, error) {
	lr := newLineReader(r)
	header, ok := lr.next()
	if !ok {
		return nil, 0, ErrInvalidNodeHeader
	}
	n, err := atoi(header, 0)
	if err != nil || n < 0 {
		return nil, 0, fmt.Errorf("%w: point count", ErrInvalidNodeHeader)
	}
	if len(header) > 1 {
		if dim, err := atoi(header, 1); err != nil || dim != 3 {
			return nil, 0, fmt.Errorf("%w: dimension must be 3", ErrInvalidNodeHeader)
		}
	}

	points := make([]mgl64.Vec3, n)
	base := 0
	for i := 0; i < n; i++ {
		fields, ok := lr.next()
		if !ok || len(fields) < 4 {
			return nil, 0, fmt.Errorf("%w: point %d", ErrTruncatedMesh, i)
		}
		id, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, 0, fmt.Errorf("line %d: %w", lr.line, err)
		}
		if i == 0 {
			base = id
		}
		for k := 0; k < 3; k++ {
			v, err := strconv.ParseFloat(fields[k+1], 64)
			if err != nil {
				return nil, 0, fmt.Errorf("line %d: %w", lr.line, err)
			}
			points[i][k] = v
		}
	}
	if err := lr.sc.Err(); err != nil {
		return nil, 0, err
	}
	return points, base, nil
}

// ParseEle parses an .ele file. base is subtracted from every node index.
// Only the four corner nodes of quadratic elements are kept.
func ParseEle(r io.Reader, base int) ([][4]int32, error) {
	lr := newLineReader(r)
	header, ok := lr.next()
	if !ok {
		return nil, ErrInvalidEleHeader
	}
	n, err := atoi(header, 0)
	if err != nil || n < 0 {
		return nil, fmt.Errorf("%w: tetrahedron count", ErrInvalidEleHeader)
	}
	if len(header) > 1 {
		if per, err := atoi(header, 1); err != nil || (per != 4 && per != 10) {
			return nil, fmt.Errorf("%w: nodes per tetrahedron", ErrInvalidEleHeader)
		}
	}

	tets := make([][4]int32, n)
	for i := 0; i < n; i++ {
		fields, ok := lr.next()
		if !ok || len(fields) < 5 {
			return nil, fmt.Errorf("%w: tetrahedron %d", ErrTruncatedMesh, i)
		}
		for k := 0; k < 4; k++ {
			v, err := strconv.Atoi(fields[k+1])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lr.line, err)
			}
			tets[i][k] = int32(v - base)
		}
	}
	if err := lr.sc.Err(); err != nil {
		return nil, err
	}
	return tets, nil
}

// LoadTetGen reads prefix.node and prefix.ele.
func LoadTetGen(prefix string) (*TetMesh, error) {
	nf, err := os.Open(prefix + ".node")
	if err != nil {
		return nil, fmt.Errorf("opening node file: %w", err)
	}
	defer nf.Close()

	points, base, err := ParseNode(nf)
	if err != nil {
		return nil, fmt.Errorf("parsing %s.node: %w", prefix, err)
	}

	ef, err := os.Open(prefix + ".ele")
	if err != nil {
		return nil, fmt.Errorf("opening ele file: %w", err)
	}
	defer ef.Close()

	tets, err := ParseEle(ef, base)
	if err != nil {
		return nil, fmt.Errorf("parsing %s.ele: %w", prefix, err)
	}

	mesh := &TetMesh{Points: points, Tets: tets, Base: base}
	if err := mesh.Validate(); err != nil {
		return nil, err
	}
	return mesh, nil
}

// Validate checks that every tetrahedron references an existing point.
func (m *TetMesh) Validate() error {
	for i, t := range m.Tets {
		for _, v := range t {
			if v < 0 || int(v) >= len(m.Points) {
				return fmt.Errorf("%w: tetrahedron %d references %d", ErrInvalidMeshIndex, i, v)
			}
		}
	}
	return nil
}

// WriteNode writes points in .node format numbered from base.
func WriteNode(w io.Writer, points []mgl64.Vec3, base int) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%d 3 0 0\n", len(points))
	for i, p := range points {
		fmt.Fprintf(bw, "%d %g %g %g\n", i+base, p[0], p[1], p[2])
	}
	return bw.Flush()
}

// WriteEle writes tetrahedra in .ele format numbered from base.
func WriteEle(w io.Writer, tets [][4]int32, base int) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%d 4 0\n", len(tets))
	for i, t := range tets {
		fmt.Fprintf(bw, "%d %d %d %d %d\n", i+base, int(t[0])+base, int(t[1])+base, int(t[2])+base, int(t[3])+base)
	}
	return bw.Flush()
}

// SaveTetGen writes prefix.node and prefix.ele.
func SaveTetGen(prefix string, m *TetMesh) error {
	nf, err := os.Create(prefix + ".node")
	if err != nil {
		return err
	}
	defer nf.Close()
	if err := WriteNode(nf, m.Points, m.Base); err != nil {
		return err
	}

	ef, err := os.Create(prefix + ".ele")
	if err != nil {
		return err
	}
	defer ef.Close()
	return WriteEle(ef, m.Tets, m.Base)
}
