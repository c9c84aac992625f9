package resource

import (
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/percy/percy-go/iox"
	"github.com/percy/percy-go/log"
)

// MaxFileSize is the largest asset Gather will include (15 MiB).
const MaxFileSize = 15 * 1024 * 1024

// GatherOptions configures Gather.
type GatherOptions struct {
	// BaseURLPath is prepended to every resource URL, e.g. "/assets".
	// A trailing slash is ignored.
	BaseURLPath string
	// SkipPatterns exclude files whose unescaped URL matches any pattern.
	SkipPatterns []*regexp.Regexp
	// FollowLinks includes symlinked files and descends into symlinked
	// directories. When false, symlinks are skipped.
	FollowLinks bool
	// Cache avoids re-hashing unchanged files. Optional.
	Cache *HashCache
	// Logger receives warnings about skipped files. Defaults to log.Nop().
	Logger *log.Logger
}

// GatherStats summarizes a Gather call.
type GatherStats struct {
	Files     int
	Bytes     int64
	Skipped   int
	TooLarge  int
	CacheHits int
}

// Gather walks root and returns one Resource per regular file, in lexical
// path order. Content is not retained: each Resource carries its SHA and
// LocalPath and is read again at upload time.
func Gather(root string, opts GatherOptions) ([]*Resource, GatherStats, error) {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	g := &gatherer{
		opts:    opts,
		base:    strings.TrimRight(opts.BaseURLPath, "/"),
		visited: make(map[string]bool),
	}
	if err := g.walk(root, ""); err != nil {
		return nil, g.stats, err
	}
	return g.resources, g.stats, nil
}

type gatherer struct {
	opts      GatherOptions
	base      string
	visited   map[string]bool
	resources []*Resource
	stats     GatherStats
}

func (g *gatherer) walk(dir, rel string) error {
	real, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return fmt.Errorf("gather: %w", err)
	}
	if g.visited[real] {
		return nil
	}
	g.visited[real] = true

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("gather: %w", err)
	}

	for _, entry := range entries {
		abs := filepath.Join(dir, entry.Name())
		childRel := path.Join(rel, entry.Name())

		var info fs.FileInfo
		if entry.Type()&fs.ModeSymlink != 0 {
			if !g.opts.FollowLinks {
				continue
			}
			info, err = os.Stat(abs)
			if err != nil {
				g.opts.Logger.Warn("skipping broken symlink", map[string]any{"path": abs})
				continue
			}
		} else {
			info, err = entry.Info()
			if err != nil {
				return fmt.Errorf("gather: %w", err)
			}
		}

		if info.IsDir() {
			if err := g.walk(abs, childRel); err != nil {
				return err
			}
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}
		if err := g.addFile(abs, childRel, info); err != nil {
			return err
		}
	}
	return nil
}

func (g *gatherer) addFile(abs, rel string, info fs.FileInfo) error {
	rawURL := g.base + "/" + rel

	for _, re := range g.opts.SkipPatterns {
		if re.MatchString(rawURL) {
			g.stats.Skipped++
			return nil
		}
	}

	if info.Size() > MaxFileSize {
		g.stats.TooLarge++
		g.opts.Logger.Warn("skipping large build resource", map[string]any{
			"url":  rawURL,
			"size": info.Size(),
		})
		return nil
	}

	sha, ok := g.opts.Cache.Lookup(abs, info)
	if ok {
		g.stats.CacheHits++
	} else {
		var err error
		sha, err = hashFile(abs)
		if err != nil {
			return err
		}
		g.opts.Cache.Store(abs, info, sha)
	}

	r, err := New(Options{
		URL:       EscapeURLPath(rawURL),
		SHA:       sha,
		LocalPath: abs,
	})
	if err != nil {
		return fmt.Errorf("gather: %w", err)
	}
	g.resources = append(g.resources, r)
	g.stats.Files++
	g.stats.Bytes += info.Size()
	return nil
}

func hashFile(abs string) (string, error) {
	f, err := os.Open(abs)
	if err != nil {
		return "", fmt.Errorf("gather: %w", err)
	}
	defer iox.DiscardClose(f)

	sha, _, err := SHA256Reader(f)
	if err != nil {
		return "", fmt.Errorf("gather: hash %s: %w", abs, err)
	}
	return sha, nil
}

// EscapeURLPath percent-encodes each "/"-separated segment of p.
func EscapeURLPath(p string) string {
	segments := strings.Split(p, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
