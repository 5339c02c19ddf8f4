package sequence

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keagan/kitchencam/internal/dirindex"
	"github.com/keagan/kitchencam/internal/layout"
)

func set(names ...string) map[string]struct{} {
	return dirindex.Set(names)
}

func TestNextIndex(t *testing.T) {
	tmpl := layout.Template("x", "20240101", ".h264")

	tests := []struct {
		name     string
		existing map[string]struct{}
		want     int
	}{
		{"empty", set(), 0},
		{"continues after two", set("x_20240101_0.h264", "x_20240101_1.h264"), 2},
		{"other recipe only", set("y_20240101_0.h264", "y_20240101_1.h264"), 0},
		{"other extension", set("x_20240101_0.jpg"), 0},
		{"mixed recipes", set("x_20240101_0.h264", "y_20240101_0.h264", "y_20240101_1.h264"), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextIndex(tt.existing, tmpl))
		})
	}
}

// For gap-free listings the result is the smallest unused index.
func TestNextIndexGapFreeProperty(t *testing.T) {
	tmpl := layout.Template("bean_soup", "20240101", ".h264")
	r := rand.New(rand.NewSource(7))

	for trial := 0; trial < 200; trial++ {
		n := r.Intn(40)
		names := make([]string, 0, n+5)
		for i := 0; i < n; i++ {
			names = append(names, tmpl(i))
		}
		for j := r.Intn(5); j > 0; j-- {
			names = append(names, fmt.Sprintf("noise_%d.txt", r.Int()))
		}

		got := NextIndex(set(names...), tmpl)
		require.Equal(t, n, got, "trial %d", trial)
		_, taken := set(names...)[tmpl(got)]
		require.False(t, taken)
	}
}

// With gaps the lowest free index is returned rather than one past the
// highest, so a run that numbers forward from it reaches existing files.
func TestNextIndexWithGaps(t *testing.T) {
	tmpl := layout.Template("x", "20240101", ".h264")

	existing := set("x_20240101_1.h264", "x_20240101_2.h264")
	start := NextIndex(existing, tmpl)
	assert.Equal(t, 0, start)

	_, collides := existing[tmpl(start+1)]
	assert.True(t, collides, "second file of the run lands on an existing name")

	assert.Equal(t, 1, NextIndex(set("x_20240101_0.h264", "x_20240101_2.h264"), tmpl))
}

// Reaching the bound means 0..n-1 are all present, so the returned count
// itself is always free.
func TestNextIndexBoundIsFree(t *testing.T) {
	tmpl := layout.Template("x", "20240101", ".h264")
	existing := set(tmpl(0), tmpl(1), tmpl(2))

	got := NextIndex(existing, tmpl)
	assert.Equal(t, len(existing), got)
	_, taken := existing[tmpl(got)]
	assert.False(t, taken)
}

func TestAllocate(t *testing.T) {
	idx := dirindex.NewMem()
	idx.Add("/day/videos", "x_20240101_0.h264", "x_20240101_1.h264")

	got, err := Allocate(idx, "/day/videos", layout.Template("x", "20240101", ".h264"))
	require.NoError(t, err)
	assert.Equal(t, 2, got)

	_, err = Allocate(idx, "/missing", layout.Template("x", "20240101", ".h264"))
	assert.Error(t, err)
}
