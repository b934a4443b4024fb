package stubs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/docker/go-units"
	"github.com/sirupsen/logrus"
)

// Mapping rewrites a path prefix, matched case-insensitively.
type Mapping struct {
	From string
	To   string
}

// Normalizer converts script paths, which may be written Windows-style,
// into local paths.
type Normalizer struct {
	mappings []Mapping
}

// NewNormalizer creates a normalizer. The first matching mapping wins.
func NewNormalizer(mappings []Mapping) *Normalizer {
	return &Normalizer{mappings: mappings}
}

// Normalize applies the first matching prefix mapping and converts
// backslashes to slashes.
func (n *Normalizer) Normalize(path string) string {
	if n != nil {
		for _, m := range n.mappings {
			if m.From == "" {
				continue
			}

			if rest, ok := trimPrefixFold(path, m.From); ok {
				path = m.To + rest

				break
			}
		}
	}

	return strings.ReplaceAll(path, `\`, "/")
}

// trimPrefixFold removes prefix from s, ignoring case.
func trimPrefixFold(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || !strings.EqualFold(s[:len(prefix)], prefix) {
		return s, false
	}

	return s[len(prefix):], true
}

// Prefetcher fills a local media cache from a remote media store. Paths
// under LocalRoot are copied from the same relative path under RemoteRoot
// when they are missing or their size differs.
type Prefetcher struct {
	LocalRoot  string
	RemoteRoot string
	Log        logrus.FieldLogger
}

// NewPrefetcher creates a prefetcher. It is a no-op when either root is
// empty.
func NewPrefetcher(log logrus.FieldLogger, localRoot, remoteRoot string) *Prefetcher {
	return &Prefetcher{
		LocalRoot:  localRoot,
		RemoteRoot: remoteRoot,
		Log:        log.WithField("component", "prefetch"),
	}
}

// Prefetch copies every path under the local root that is stale. Failures
// are logged; the stub using the file reports the problem.
func (p *Prefetcher) Prefetch(paths ...string) {
	if p.LocalRoot == "" || p.RemoteRoot == "" {
		return
	}

	for _, dest := range paths {
		rel, ok := p.relative(dest)
		if !ok {
			continue
		}

		src := filepath.Join(p.RemoteRoot, rel)

		copied, size, err := syncFile(src, dest)
		if err != nil {
			p.Log.WithError(err).WithField("path", dest).Warn("Failed to prefetch media")

			continue
		}

		if copied {
			p.Log.WithFields(logrus.Fields{
				"src":  src,
				"dest": dest,
				"size": units.HumanSize(float64(size)),
			}).Info("Copied media")
		}
	}
}

func (p *Prefetcher) relative(path string) (string, bool) {
	root := filepath.Clean(p.LocalRoot) + string(filepath.Separator)

	rel, ok := trimPrefixFold(filepath.Clean(path), root)
	if !ok {
		return "", false
	}

	return rel, true
}

// syncFile copies src to dest unless dest exists with the same size.
func syncFile(src, dest string) (bool, int64, error) {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return false, 0, fmt.Errorf("stat remote media: %w", err)
	}

	if destInfo, err := os.Stat(dest); err == nil && destInfo.Size() == srcInfo.Size() {
		return false, srcInfo.Size(), nil
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return false, 0, fmt.Errorf("creating media dir: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return false, 0, err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return false, 0, err
	}

	n, err := io.Copy(out, in)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		return false, 0, fmt.Errorf("copying media: %w", err)
	}

	return true, n, nil
}
