// Package archive finds the per-ticker tar archives under the data root and
// walks their compressed daily members.
package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"tickflow/logger"
	"tickflow/models"
)

// ErrMissingRoot reports that the kind directory under the data root does
// not exist. This is a configuration-level failure, fatal before any
// archive is opened.
var ErrMissingRoot = errors.New("data root missing")

// Locate scans root/<kind> and resolves one archive per ticker. Tickers
// without an archive are skipped with a warning. Candidate archives are
// sorted lexicographically before the first is chosen, so selection does
// not depend on directory-listing order.
func Locate(root string, kind models.Kind, archiveExt string) (map[string]string, error) {
	log := logger.GetLogger().WithComponent("archive")

	dir := filepath.Join(root, kind.String())
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingRoot, dir)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrMissingRoot, dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	located := make(map[string]string)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		ticker := entry.Name()

		candidates, err := listArchives(filepath.Join(dir, ticker), archiveExt)
		if err != nil {
			log.WithError(err).WithFields(logger.Fields{"ticker": ticker}).Warn("failed to list ticker directory, skipping")
			continue
		}
		if len(candidates) == 0 {
			log.WithFields(logger.Fields{"ticker": ticker, "kind": kind.String()}).Warn("no archive found for ticker")
			continue
		}
		if len(candidates) > 1 {
			log.WithFields(logger.Fields{
				"ticker":     ticker,
				"candidates": len(candidates),
				"chosen":     filepath.Base(candidates[0]),
			}).Debug("multiple archives for ticker, taking first in sorted order")
		}
		located[ticker] = candidates[0]
	}

	return located, nil
}

func listArchives(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ext) {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// Tickers returns the directory names under root/<kind>, used to discover
// the universe when no explicit ticker list is configured.
func Tickers(root string, kind models.Kind) ([]string, error) {
	dir := filepath.Join(root, kind.String())
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingRoot, dir)
	}
	var tickers []string
	for _, e := range entries {
		if e.IsDir() {
			tickers = append(tickers, e.Name())
		}
	}
	sort.Strings(tickers)
	return tickers, nil
}

// Selector is the member allow-list: a member is decoded only when its name
// carries one of the configured month prefixes and the compressed-CSV
// suffix. Anything else inside the archive is silently excluded.
type Selector struct {
	MonthPrefixes []string
	MemberExt     string
}

func (s Selector) Match(name string) bool {
	if !strings.HasSuffix(name, s.MemberExt) {
		return false
	}
	base := filepath.Base(name)
	for _, prefix := range s.MonthPrefixes {
		if strings.HasPrefix(base, prefix) {
			return true
		}
	}
	return false
}

// Member identifies one selected archive member.
type Member struct {
	Name string
	Size int64
}

// Walk opens the tar archive at path and invokes fn for every member the
// selector admits, in archive order. The archive handle is always released,
// including when fn fails. Per-member decode failures must be absorbed
// inside fn so one bad member never hides its siblings; an error returned
// from fn aborts the walk, as does an archive-level read error.
func Walk(path string, sel Selector, fn func(m Member, r io.Reader) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open archive %s: %w", path, err)
	}
	defer f.Close()

	tr := tar.NewReader(f)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read archive %s: %w", path, err)
		}
		if hdr.Typeflag != tar.TypeReg || !sel.Match(hdr.Name) {
			continue
		}
		if err := fn(Member{Name: hdr.Name, Size: hdr.Size}, tr); err != nil {
			return err
		}
	}
}
