package transpose

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/eunmann/tabular-index/pkg/format"
)

// mergeGroup reconciles the per-worker local dictionaries of one column
// group into per-column global dictionaries, relabels the matrix in place,
// and optionally persists the columns. It returns the greatest global id
// assigned in the group.
func mergeGroup(outDir string, cStart int, data [][]int32, locals [][]map[string]int32, ranges []rowRange, cfg Config) (uint32, error) {
	var maxID uint32
	for j := range data {
		globalOrder := relabelColumn(data[j], locals, ranges, j)
		if n := len(globalOrder); n > 0 && uint32(n-1) > maxID {
			maxID = uint32(n - 1)
		}
		if cfg.WriteColumns {
			if err := persistColumn(outDir, cStart+j, data[j], globalOrder); err != nil {
				return 0, err
			}
		}
	}
	return maxID, nil
}

// relabelColumn builds the global dictionary for column j and rewrites its
// local ids to global ids. Workers are visited in index order and each
// worker's keys in lexicographic order, which fixes the id assignment.
// It returns the dictionary values in global id order.
func relabelColumn(col []int32, locals [][]map[string]int32, ranges []rowRange, j int) []string {
	global := make(map[string]int32)
	var order []string
	luts := make([][]int32, len(locals))

	for t, local := range locals {
		dict := local[j]
		keys := make([]string, 0, len(dict))
		for k := range dict {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		lut := make([]int32, len(dict))
		for _, k := range keys {
			gid, ok := global[k]
			if !ok {
				gid = int32(len(global))
				global[k] = gid
				order = append(order, k)
			}
			lut[dict[k]] = gid
		}
		luts[t] = lut
	}

	for t, rng := range ranges {
		lut := luts[t]
		for r := rng.start; r < rng.end; r++ {
			col[r] = lut[col[r]]
		}
	}
	return order
}

// persistColumn writes one encoded column and its dictionary.
func persistColumn(outDir string, c int, col []int32, dict []string) error {
	aw, err := format.NewArrayWriter(filepath.Join(outDir, fmt.Sprintf("col_%d.i32", c)), 4)
	if err != nil {
		return fmt.Errorf("create column %d: %w", c, err)
	}
	for _, v := range col {
		if err := aw.WriteI32(v); err != nil {
			aw.Close()
			return fmt.Errorf("write column %d: %w", c, err)
		}
	}
	if err := aw.Close(); err != nil {
		return fmt.Errorf("close column %d: %w", c, err)
	}

	bw, err := format.NewBlobWriter(
		filepath.Join(outDir, fmt.Sprintf("col_%d_dict.blob", c)),
		filepath.Join(outDir, fmt.Sprintf("col_%d_dict_offsets.u64", c)),
	)
	if err != nil {
		return fmt.Errorf("create dictionary %d: %w", c, err)
	}
	for _, s := range dict {
		if err := bw.WriteString(s); err != nil {
			bw.Close()
			return fmt.Errorf("write dictionary %d: %w", c, err)
		}
	}
	if err := bw.Close(); err != nil {
		return fmt.Errorf("close dictionary %d: %w", c, err)
	}
	return nil
}
