// Package repo walks zipped source repositories and analyses them with the LLM.
package repo

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
)

// ErrNoFiles is returned when an archive holds no file that passes the filters.
var ErrNoFiles = errors.New("no matching files in archive")

var errEntryTooLarge = errors.New("entry exceeds the size limit")

var defaultSkipDirs = []string{
	".git", ".svn", ".hg", ".idea", ".vscode", "node_modules", "vendor", "__pycache__",
	".venv", "venv", "dist", "build", "target", "bin", "obj", ".next", "coverage",
}

type WalkOptions struct {
	// Extensions are lower-case with a leading dot. Empty accepts every text file.
	Extensions   []string
	SkipDirs     []string
	MaxFileBytes int
	MaxFiles     int
}

// File is a text file read from the archive.
type File struct {
	Path    string
	Content string
	Size    int
	Hash    string
}

// Stats reports what the walk skipped.
type Stats struct {
	Entries   int
	Accepted  int
	Skipped   int
	Truncated bool
}

// Walk opens the zip archive at zipPath and returns its text files ordered by path.
func Walk(zipPath string, opts WalkOptions) ([]File, Stats, error) {
	zr, err := zip.OpenReader(zipPath)
	if err != nil && !(errors.Is(err, zip.ErrInsecurePath) && zr != nil) {
		return nil, Stats{}, fmt.Errorf("open zip %q: %w", zipPath, err)
	}
	defer zr.Close()
	return walkZip(&zr.Reader, opts)
}

// WalkBytes is Walk over an in-memory archive (an HTTP upload).
func WalkBytes(data []byte, opts WalkOptions) ([]File, Stats, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	// insecure names are filtered per entry below
	if err != nil && !(errors.Is(err, zip.ErrInsecurePath) && zr != nil) {
		return nil, Stats{}, fmt.Errorf("read zip: %w", err)
	}
	return walkZip(zr, opts)
}

func walkZip(zr *zip.Reader, opts WalkOptions) ([]File, Stats, error) {
	skip := map[string]bool{}
	dirs := opts.SkipDirs
	if len(dirs) == 0 {
		dirs = defaultSkipDirs
	}
	for _, d := range dirs {
		skip[strings.ToLower(d)] = true
	}
	exts := map[string]bool{}
	for _, e := range opts.Extensions {
		exts[strings.ToLower(e)] = true
	}

	var stats Stats
	var files []File
	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		if !f.FileInfo().IsDir() {
			names = append(names, f.Name)
		}
	}
	root := commonRoot(names)

	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		stats.Entries++
		name, ok := cleanName(f.Name)
		if ok && root != "" {
			name = strings.TrimPrefix(name, root+"/")
		}
		// The shared top folder is gone, so a root named like a skipped dir is not skipped.
		if !ok || inSkippedDir(name, skip) {
			stats.Skipped++
			continue
		}
		if len(exts) > 0 && !exts[strings.ToLower(path.Ext(name))] {
			stats.Skipped++
			continue
		}
		if opts.MaxFileBytes > 0 && f.UncompressedSize64 > uint64(opts.MaxFileBytes) {
			stats.Skipped++
			continue
		}
		if opts.MaxFiles > 0 && len(files) >= opts.MaxFiles {
			stats.Truncated = true
			stats.Skipped++
			continue
		}
		data, err := readEntry(f, opts.MaxFileBytes)
		if errors.Is(err, errEntryTooLarge) {
			stats.Skipped++
			continue
		}
		if err != nil {
			return nil, stats, fmt.Errorf("read %s: %w", name, err)
		}
		if isBinary(data) {
			stats.Skipped++
			continue
		}
		sum := sha256.Sum256(data)
		files = append(files, File{
			Path:    name,
			Content: strings.ToValidUTF8(string(data), "\uFFFD"),
			Size:    len(data),
			Hash:    hex.EncodeToString(sum[:]),
		})
	}
	stats.Accepted = len(files)
	if len(files) == 0 {
		return nil, stats, ErrNoFiles
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, stats, nil
}

func readEntry(f *zip.File, limit int) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	var r io.Reader = rc
	if limit > 0 {
		// headers can lie about the uncompressed size
		r = io.LimitReader(rc, int64(limit)+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(data) > limit {
		return nil, errEntryTooLarge
	}
	return data, nil
}

// cleanName normalises an entry name and rejects absolute or escaping paths.
func cleanName(name string) (string, bool) {
	name = strings.ReplaceAll(name, "\\", "/")
	if strings.HasPrefix(name, "/") || (len(name) > 1 && name[1] == ':') {
		return "", false
	}
	cleaned := path.Clean(name)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", false
	}
	return cleaned, true
}

func inSkippedDir(name string, skip map[string]bool) bool {
	parts := strings.Split(name, "/")
	for _, p := range parts[:len(parts)-1] {
		if skip[strings.ToLower(p)] {
			return true
		}
	}
	return false
}

// commonRoot returns the single top-level folder shared by every entry, if any.
func commonRoot(names []string) string {
	root := ""
	for _, n := range names {
		n, ok := cleanName(n)
		if !ok {
			continue
		}
		i := strings.Index(n, "/")
		if i <= 0 {
			return ""
		}
		top := n[:i]
		if root == "" {
			root = top
		} else if root != top {
			return ""
		}
	}
	return root
}

func isBinary(data []byte) bool {
	head := data
	if len(head) > 8000 {
		head = head[:8000]
	}
	return bytes.IndexByte(head, 0) >= 0
}
