package logger_test

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/paulmach/orb"

	"github.com/Faultbox/shatter/internal/breakable"
	"github.com/Faultbox/shatter/internal/geom"
	"github.com/Faultbox/shatter/internal/lattice"
	"github.com/Faultbox/shatter/internal/logger"
	"github.com/Faultbox/shatter/internal/world"
)

// entries decodes one JSON object per log line.
func entries(t *testing.T, path string) []map[string]any {
	t.Helper()
	logger.Sync()
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatalf("failed to open log: %v", err)
	}
	defer f.Close()

	var out []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e map[string]any
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("log line %q is not JSON: %v", sc.Text(), err)
		}
		out = append(out, e)
	}
	return out
}

func find(es []map[string]any, component, msg string) map[string]any {
	for _, e := range es {
		if e["logger"] == component && e["msg"] == msg {
			return e
		}
	}
	return nil
}

func TestComponentLoggers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "components.log")
	cfg := logger.DefaultFileConfig(path)
	cfg.Format = logger.FormatJSON
	if err := logger.InitWithFileConfig("debug", cfg, false); err != nil {
		t.Fatalf("InitWithFileConfig failed: %v", err)
	}

	ring := orb.Ring{{0, 0}, {4, 0}, {4, 4}, {0, 4}, {0, 0}}
	if _, err := breakable.Generate(ring, [2]int{4, 4}, 1, breakable.DefaultGenerateOptions()); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	l, err := lattice.New([]mgl64.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {0, 0, 1}}, [][4]int32{{0, 1, 2, 3}}, lattice.DefaultParams())
	if err != nil {
		t.Fatalf("lattice.New failed: %v", err)
	}
	w := world.New(geom.NewManager(geom.DefaultMatchConfig()), world.Options{Workers: 1, Budget: 100})
	w.AddBody(l, nil, 0)
	if _, err := w.Step(context.Background(), world.Environment{}, 0.01); err != nil {
		t.Fatalf("Step failed: %v", err)
	}

	es := entries(t, path)
	tests := []struct {
		component, msg string
		fields         map[string]float64
	}{
		{"breakable", "generated grid", map[string]float64{"cells_x": 4, "cells_y": 4, "triangles": 32}},
		{"lattice", "structure checked", map[string]float64{"tets": 1, "faces": 0}},
		{"world", "step", map[string]float64{"bodies": 1, "fractured": 0}},
	}
	for _, tt := range tests {
		e := find(es, tt.component, tt.msg)
		if e == nil {
			t.Errorf("no %q entry from the %s logger", tt.msg, tt.component)
			continue
		}
		if e["level"] != "DEBUG" {
			t.Errorf("%s %q logged at %v, want DEBUG", tt.component, tt.msg, e["level"])
		}
		for k, want := range tt.fields {
			if got, ok := e[k].(float64); !ok || got != want {
				t.Errorf("%s %q: field %s = %v, want %v", tt.component, tt.msg, k, e[k], want)
			}
		}
	}
}

func TestComponentDebugHiddenAtInfo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quiet.log")
	cfg := logger.DefaultFileConfig(path)
	cfg.Format = logger.FormatJSON
	if err := logger.InitWithFileConfig("info", cfg, false); err != nil {
		t.Fatalf("InitWithFileConfig failed: %v", err)
	}

	w := world.New(geom.NewManager(geom.DefaultMatchConfig()), world.Options{Workers: 1, Budget: 100})
	if _, err := w.Step(context.Background(), world.Environment{}, 0.01); err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	if e := find(entries(t, path), "world", "step"); e != nil {
		t.Errorf("debug step entry written at info level: %v", e)
	}
}
