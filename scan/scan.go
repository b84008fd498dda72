// Package scan discovers convertible files under a folder and maps them to
// output paths, preserving the relative directory structure.
package scan

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Entry is one discovered file and the output path it converts to.
type Entry struct {
	Input  string
	Output string
}

// Walk returns one Entry per file under inputFolder whose extension is in
// exts, in deterministic lexical order. Output paths mirror the relative
// structure under outputFolder; when outputExt is non-empty it replaces the
// original extension. A missing or empty folder yields an empty batch, not an
// error. AppleDouble "._" files are skipped.
func Walk(inputFolder, outputFolder, outputExt string, recursive bool, exts map[string]struct{}) ([]Entry, error) {
	stat, err := os.Stat(inputFolder)
	if err != nil || !stat.IsDir() {
		return nil, nil
	}

	var entries []Entry
	err = filepath.WalkDir(inputFolder, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if !recursive && path != inputFolder {
				return fs.SkipDir
			}
			return nil
		}
		name := d.Name()
		if strings.HasPrefix(name, "._") {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(name))
		if _, ok := exts[ext]; !ok {
			return nil
		}

		rel, err := filepath.Rel(inputFolder, path)
		if err != nil {
			return err
		}
		out := rel
		if outputExt != "" {
			out = strings.TrimSuffix(rel, filepath.Ext(rel)) + outputExt
		}
		entries = append(entries, Entry{Input: path, Output: filepath.Join(outputFolder, out)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}
