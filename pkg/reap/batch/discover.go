package batch

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"

	"github.com/jamesainslie/reap/pkg/reap/archive"
	"github.com/jamesainslie/reap/pkg/reap/deleter"
)

// Item is one discovered archive awaiting processing.
type Item struct {
	Path string
	Size int64
}

// discover walks root collecting archives whose base name matches an
// include pattern and no exclude pattern. Pending-delete artifacts and
// files inside partial extraction directories are never work items.
func discover(root string, include, exclude []string) ([]Item, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root: %w", err)
	}

	var (
		mu    sync.Mutex
		items []Item
		conf  = fastwalk.Config{Follow: false}
	)

	err = fastwalk.Walk(&conf, absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		name := d.Name()
		if strings.HasSuffix(name, deleter.PendingSuffix) {
			return nil
		}
		if strings.Contains(path, archive.PartialSuffix+string(filepath.Separator)) {
			return nil
		}
		if !matchesAny(name, include) || matchesAny(name, exclude) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}

		mu.Lock()
		items = append(items, Item{Path: path, Size: info.Size()})
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", absRoot, err)
	}

	return items, nil
}

// matchesAny reports whether name matches any doublestar pattern.
func matchesAny(name string, patterns []string) bool {
	for _, p := range patterns {
		if ok, err := doublestar.Match(p, name); err == nil && ok {
			return true
		}
	}
	return false
}

// sortItems orders items by size, ascending or descending, with path as a
// deterministic tie-break.
func sortItems(items []Item, order string) {
	descending := strings.EqualFold(order, "desc")
	sort.Slice(items, func(i, j int) bool {
		if items[i].Size != items[j].Size {
			if descending {
				return items[i].Size > items[j].Size
			}
			return items[i].Size < items[j].Size
		}
		return items[i].Path < items[j].Path
	})
}
