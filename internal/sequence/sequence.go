package sequence

import (
	"github.com/keagan/kitchencam/internal/dirindex"
)

// NextIndex returns the first index whose templated name is absent from
// existing, searching no further than len(existing).
//
// With gaps the result is the lowest gap, not one past the highest index.
// Callers that number several files from that start can then run into
// files that already exist above the gap.
func NextIndex(existing map[string]struct{}, template func(int) string) int {
	i := 0
	for i < len(existing) {
		if _, ok := existing[template(i)]; !ok {
			break
		}
		i++
	}
	return i
}

// Allocate snapshots the regular files in dir once and returns the next index.
func Allocate(idx dirindex.Index, dir string, template func(int) string) (int, error) {
	names, err := idx.Files(dir)
	if err != nil {
		return 0, err
	}
	return NextIndex(dirindex.Set(names), template), nil
}
