package api

import (
	"io/fs"
	"net/http"
	"path"
	"strings"
)

// csvFileSystem exposes only CSV snapshots and the directories holding them.
// Dot entries and every other file, database files included, read as missing.
type csvFileSystem struct {
	root http.FileSystem
}

func (c csvFileSystem) Open(name string) (http.File, error) {
	for _, part := range strings.Split(name, "/") {
		if strings.HasPrefix(part, ".") && part != "." && part != ".." {
			return nil, fs.ErrNotExist
		}
	}
	f, err := c.root.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if info.IsDir() {
		return csvDir{File: f}, nil
	}
	if !isCSV(path.Base(name)) {
		_ = f.Close()
		return nil, fs.ErrNotExist
	}
	return f, nil
}

// csvDir filters directory listings down to what csvFileSystem would open.
type csvDir struct {
	http.File
}

func (d csvDir) Readdir(count int) ([]fs.FileInfo, error) {
	entries, err := d.File.Readdir(count)
	kept := entries[:0]
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if e.IsDir() || isCSV(e.Name()) {
			kept = append(kept, e)
		}
	}
	return kept, err
}

func isCSV(name string) bool {
	return strings.EqualFold(path.Ext(name), ".csv")
}
