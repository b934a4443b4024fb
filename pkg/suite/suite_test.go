package suite

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSuiteFile = `
suites:
  - name: smoke
    runs:
      - name: basic/add_image.yaml
      - name: basic/disabled.yaml
        enabled: false
      - name: basic/add_image.yaml
  - name: regression
    directory: regression
    runs:
      - name: basic/add_image.yaml
  - name: off
    enabled: false
    runs:
      - name: basic/add_image.yaml
  - name: hollow
    directory: empty
  - name: mixed
    directory: gone
    runs:
      - name: basic/add_image.yaml
  - name: everything
    directory: .
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func setupTestSuite(t *testing.T) (*File, Scan) {
	t.Helper()

	root := t.TempDir()

	for _, name := range []string{
		"regression/a_make.yaml",
		"regression/b_save.yaml",
		"regression/nested/c_preview.yaml",
		"regression/Include/helper.yaml",
		"regression/nested/IGNORE/skipped.yaml",
		"regression/__init__.yaml",
		"regression/readme.txt",
	} {
		writeFile(t, filepath.Join(root, filepath.FromSlash(name)), "name: x\n")
	}

	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), 0o755))

	suitePath := filepath.Join(root, "runconfig.yaml")
	writeFile(t, suitePath, testSuiteFile)

	f, err := Load(suitePath)
	require.NoError(t, err)

	return f, Scan{
		Root:      root,
		Ext:       ".yaml",
		Ignored:   []string{"include", "ignore", "includes", "__init__"},
		SuiteFile: suitePath,
	}
}

func runNames(runs []Run) []string {
	names := make([]string, 0, len(runs))
	for _, r := range runs {
		names = append(names, r.Name)
	}

	return names
}

func TestResolve(t *testing.T) {
	f, scan := setupTestSuite(t)

	tests := []struct {
		name    string
		suite   string
		want    []string
		wantErr error
	}{
		{
			name:  "listed runs skip disabled and duplicates",
			suite: "smoke",
			want:  []string{"basic/add_image.yaml"},
		},
		{
			name:  "directory scan honours ignore names and extension",
			suite: "regression",
			want: []string{
				"basic/add_image.yaml",
				"regression/a_make.yaml",
				"regression/b_save.yaml",
				"regression/nested/c_preview.yaml",
			},
		},
		{
			name:  "missing directory keeps listed runs",
			suite: "mixed",
			want:  []string{"basic/add_image.yaml"},
		},
		{
			name:  "root scan skips the suite file",
			suite: "everything",
			want: []string{
				"regression/a_make.yaml",
				"regression/b_save.yaml",
				"regression/nested/c_preview.yaml",
			},
		},
		{
			name:    "unknown suite",
			suite:   "nope",
			wantErr: ErrSuiteNotFound,
		},
		{
			name:    "disabled suite is not found",
			suite:   "off",
			wantErr: ErrSuiteNotFound,
		},
		{
			name:    "suite with no runs",
			suite:   "hollow",
			wantErr: ErrEmptySuite,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs, err := f.Resolve(tt.suite, scan)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, runNames(runs))

			for _, r := range runs {
				assert.Equal(t, tt.suite, r.Suite)
				assert.Equal(t, filepath.Join(scan.Root, filepath.FromSlash(r.Name)), r.Path)
			}
		})
	}
}

func TestExpand_MixedArgs(t *testing.T) {
	f, scan := setupTestSuite(t)

	groups, err := Expand(f, []string{"extra/one.yaml", "smoke", "extra/one.yaml", "extra/two.yaml"}, scan)
	require.NoError(t, err)
	require.Len(t, groups, 2)

	assert.Equal(t, AdhocSuite, groups[0].Suite)
	assert.Equal(t, []string{"extra/one.yaml", "extra/two.yaml"}, runNames(groups[0].Runs))

	assert.Equal(t, "smoke", groups[1].Suite)
	assert.Equal(t, []string{"basic/add_image.yaml"}, runNames(groups[1].Runs))
}

func TestExpand_LiteralRunsWithoutSuiteFile(t *testing.T) {
	groups, err := Expand(nil, []string{"a.yaml"}, Scan{Root: "/scripts", Ext: ".yaml"})
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "/scripts/a.yaml", filepath.ToSlash(groups[0].Runs[0].Path))

	_, err = Expand(nil, []string{"smoke"}, Scan{Ext: ".yaml"})
	assert.ErrorIs(t, err, ErrSuiteNotFound)
}

func TestRun_ShortName(t *testing.T) {
	assert.Equal(t, "c_preview", Run{Name: "regression/nested/c_preview.yaml"}.ShortName())
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	writeFile(t, path, "suites: [")

	_, err = Load(path)
	require.Error(t, err)
}
