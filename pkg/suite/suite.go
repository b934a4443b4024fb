// Package suite resolves suite names into the ordered list of runs they
// contain, from the run configuration file and directory scans.
package suite

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// AdhocSuite collects runs given literally on the command line.
const AdhocSuite = "adhoc"

var (
	// ErrSuiteNotFound is returned for an unknown or disabled suite.
	ErrSuiteNotFound = errors.New("suite not found")

	// ErrEmptySuite is returned when a suite resolves to no runs.
	ErrEmptySuite = errors.New("suite has no runs")
)

// Run identifies one test script.
type Run struct {
	Suite string
	// Name is the script path relative to the script root. It is what the
	// child process receives on its command line.
	Name string
	Path string
}

// ShortName returns the script file name without directory or extension.
func (r Run) ShortName() string {
	base := filepath.Base(filepath.FromSlash(r.Name))

	return strings.TrimSuffix(base, filepath.Ext(base))
}

// File is a parsed run configuration file.
type File struct {
	Suites []Definition `yaml:"suites"`
}

// Definition is one named suite.
type Definition struct {
	Name    string `yaml:"name"`
	Enabled *bool  `yaml:"enabled,omitempty"`
	// Directory, relative to the script root, is scanned recursively for
	// run scripts.
	Directory string     `yaml:"directory,omitempty"`
	Runs      []RunEntry `yaml:"runs,omitempty"`
}

// RunEntry is a run listed explicitly in a suite.
type RunEntry struct {
	Name    string `yaml:"name"`
	Enabled *bool  `yaml:"enabled,omitempty"`
}

// IsEnabled reports whether the suite is enabled. Suites are enabled unless
// marked otherwise.
func (d Definition) IsEnabled() bool {
	return d.Enabled == nil || *d.Enabled
}

// IsEnabled reports whether the run is enabled.
func (r RunEntry) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// Scan controls how runs are located on disk.
type Scan struct {
	Root string
	// Ext is the run script extension including the dot.
	Ext string
	// Ignored names are skipped when they match a file stem or any path
	// component, case-insensitively.
	Ignored []string
	// SuiteFile is the run configuration file. Scans never return it.
	SuiteFile string
}

// Load parses a run configuration file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading suite file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing suite file %s: %w", path, err)
	}

	return &f, nil
}

// Lookup returns the enabled suite called name.
func (f *File) Lookup(name string) (*Definition, error) {
	if f != nil {
		for i := range f.Suites {
			if f.Suites[i].Name == name && f.Suites[i].IsEnabled() {
				return &f.Suites[i], nil
			}
		}
	}

	return nil, fmt.Errorf("%w: %q", ErrSuiteNotFound, name)
}

// Resolve returns the runs of the named suite: listed runs first, then the
// scripts found under its directory in lexical order. Duplicates are
// collapsed.
func (f *File) Resolve(name string, scan Scan) ([]Run, error) {
	def, err := f.Lookup(name)
	if err != nil {
		return nil, err
	}

	var names []string

	for _, entry := range def.Runs {
		if entry.IsEnabled() && entry.Name != "" {
			names = append(names, entry.Name)
		}
	}

	if def.Directory != "" {
		found, err := scanDir(scan, def.Directory)
		if err != nil {
			return nil, fmt.Errorf("scanning suite %q: %w", name, err)
		}

		names = append(names, found...)
	}

	runs := toRuns(name, names, scan)
	if len(runs) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrEmptySuite, name)
	}

	return runs, nil
}

// Group is the ordered runs of one suite in a batch.
type Group struct {
	Suite string
	Runs  []Run
}

// Expand turns command-line arguments into suite groups. Arguments carrying
// the script extension are literal runs and go to the adhoc suite; anything
// else names a suite. Groups keep the order in which they first appear.
func Expand(f *File, args []string, scan Scan) ([]Group, error) {
	var (
		groups []Group
		index  = map[string]int{}
	)

	add := func(suiteName string, runs []Run) {
		i, ok := index[suiteName]
		if !ok {
			i = len(groups)
			index[suiteName] = i
			groups = append(groups, Group{Suite: suiteName})
		}

		groups[i].Runs = dedupe(append(groups[i].Runs, runs...))
	}

	for _, arg := range args {
		if scan.Ext != "" && strings.EqualFold(filepath.Ext(arg), scan.Ext) {
			add(AdhocSuite, toRuns(AdhocSuite, []string{arg}, scan))

			continue
		}

		runs, err := f.Resolve(arg, scan)
		if err != nil {
			return nil, err
		}

		add(arg, runs)
	}

	return groups, nil
}

func toRuns(suiteName string, names []string, scan Scan) []Run {
	runs := make([]Run, 0, len(names))
	for _, name := range names {
		runs = append(runs, Run{
			Suite: suiteName,
			Name:  name,
			Path:  filepath.Join(scan.Root, filepath.FromSlash(name)),
		})
	}

	return dedupe(runs)
}

func dedupe(runs []Run) []Run {
	seen := make(map[string]struct{}, len(runs))
	out := runs[:0]

	for _, r := range runs {
		if _, ok := seen[r.Name]; ok {
			continue
		}

		seen[r.Name] = struct{}{}
		out = append(out, r)
	}

	return out
}

// scanDir returns run names under dir (relative to scan.Root), skipping
// ignored names, the suite file and files without the script extension. A
// missing dir scans as empty.
func scanDir(scan Scan, dir string) ([]string, error) {
	ignored := make(map[string]struct{}, len(scan.Ignored))
	for _, name := range scan.Ignored {
		ignored[strings.ToLower(name)] = struct{}{}
	}

	isIgnored := func(name string) bool {
		_, ok := ignored[strings.ToLower(name)]

		return ok
	}

	base := filepath.Join(scan.Root, filepath.FromSlash(dir))

	suiteFile := ""
	if scan.SuiteFile != "" {
		suiteFile = filepath.Clean(scan.SuiteFile)
	}

	var names []string

	err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == base && errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}

			return err
		}

		if d.IsDir() {
			if path != base && isIgnored(d.Name()) {
				return filepath.SkipDir
			}

			return nil
		}

		ext := filepath.Ext(d.Name())
		if !strings.EqualFold(ext, scan.Ext) || isIgnored(strings.TrimSuffix(d.Name(), ext)) {
			return nil
		}

		if filepath.Clean(path) == suiteFile {
			return nil
		}

		rel, err := filepath.Rel(scan.Root, path)
		if err != nil {
			return err
		}

		for _, part := range strings.Split(filepath.Dir(rel), string(filepath.Separator)) {
			if isIgnored(part) {
				return nil
			}
		}

		names = append(names, filepath.ToSlash(rel))

		return nil
	})
	if err != nil {
		return nil, err
	}

	return names, nil
}
