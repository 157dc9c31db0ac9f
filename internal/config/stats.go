package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// CreatureStats are the per-kind values the simulation derives index queries
// from. Sizes and ranges are in subtiles.
type CreatureStats struct {
	VisualRange uint32 `yaml:"visual_range"`
	SolidSize   int32  `yaml:"solid_size"`
	Speed       int32  `yaml:"speed"` // subtiles per game turn
}

// MaxVisualRange bounds visual_range: twice the range still fits the int32
// subtile plane.
const MaxVisualRange = 1 << 30

// StatsTable maps a creature kind name to its stats.
type StatsTable map[string]CreatureStats

type statsFile struct {
	Creatures StatsTable `yaml:"creatures"`
}

// DefaultCreatureStats returns a small built-in bestiary.
func DefaultCreatureStats() StatsTable {
	return StatsTable{
		"imp":       {VisualRange: 2560, SolidSize: 256, Speed: 48},
		"troll":     {VisualRange: 3072, SolidSize: 384, Speed: 40},
		"dragon":    {VisualRange: 4608, SolidSize: 640, Speed: 32},
		"archer":    {VisualRange: 5120, SolidSize: 256, Speed: 44},
		"knight":    {VisualRange: 3328, SolidSize: 320, Speed: 36},
		"tunneller": {VisualRange: 2048, SolidSize: 256, Speed: 56},
	}
}

// Kinds returns the kind names in sorted order.
func (t StatsTable) Kinds() []string {
	kinds := make([]string, 0, len(t))
	for k := range t {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Validate rejects kinds that could not be indexed.
func (t StatsTable) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("no creature kinds defined")
	}
	for _, k := range t.Kinds() {
		s := t[k]
		if s.SolidSize < 0 {
			return fmt.Errorf("creature %q: negative solid_size", k)
		}
		if s.VisualRange > MaxVisualRange {
			return fmt.Errorf("creature %q: visual_range %d exceeds %d", k, s.VisualRange, MaxVisualRange)
		}
		if s.Speed < 0 {
			return fmt.Errorf("creature %q: negative speed", k)
		}
	}
	return nil
}

// LoadCreatureStats reads a stats table from a YAML file of the form
//
//	creatures:
//	  imp: {visual_range: 2560, solid_size: 256, speed: 48}
func LoadCreatureStats(path string) (StatsTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var f statsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("config: unmarshal %s: %w", path, err)
	}
	if err := f.Creatures.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return f.Creatures, nil
}

// StatsWatcher reloads a stats file whenever it changes on disk. Successful
// reloads are sent on Updates, failures on Errors.
type StatsWatcher struct {
	watcher *fsnotify.Watcher
	path    string
	Updates chan StatsTable
	Errors  chan error
	closeCh chan struct{}
	done    chan struct{}
	once    sync.Once
}

// NewStatsWatcher watches the directory holding path, so editors that replace
// the file instead of writing it in place are still noticed.
func NewStatsWatcher(path string) (*StatsWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}

	sw := &StatsWatcher{
		watcher: w,
		path:    filepath.Clean(path),
		Updates: make(chan StatsTable, 1),
		Errors:  make(chan error, 1),
		closeCh: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go sw.run()
	return sw, nil
}

// Close stops watching and closes Updates and Errors.
func (w *StatsWatcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.closeCh)
		err = w.watcher.Close()
		<-w.done
		close(w.Updates)
		close(w.Errors)
	})
	return err
}

func (w *StatsWatcher) run() {
	defer close(w.done)

	// Reload once the file has been quiet for a moment: a single save often
	// produces a truncate and one or more writes.
	const settle = 100 * time.Millisecond
	timer := time.NewTimer(settle)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(settle)
		case <-timer.C:
			table, err := LoadCreatureStats(w.path)
			if err != nil {
				w.send(nil, err)
				continue
			}
			w.send(table, nil)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.send(nil, err)
		case <-w.closeCh:
			return
		}
	}
}

// send never blocks the watch loop: a stale pending value is replaced.
func (w *StatsWatcher) send(table StatsTable, err error) {
	if err != nil {
		select {
		case w.Errors <- err:
		case <-w.closeCh:
		default:
		}
		return
	}
	for {
		select {
		case w.Updates <- table:
			return
		case <-w.closeCh:
			return
		default:
			select {
			case <-w.Updates:
			default:
			}
		}
	}
}
