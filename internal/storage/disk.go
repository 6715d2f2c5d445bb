package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// Usage is the on-disk footprint of the catalogue stores.
type Usage struct {
	Database     int64 `json:"database"`
	KeywordIndex int64 `json:"keyword_index"`
	VectorIndex  int64 `json:"vector_index"`
}

// Total returns the summed size of all stores.
func (u Usage) Total() int64 {
	return u.Database + u.KeywordIndex + u.VectorIndex
}

// MeasureUsage sizes the database file, the bleve index directory and the saved
// vector index. Paths that do not exist count as zero.
func MeasureUsage(databasePath, keywordPath, vectorPath string) (Usage, error) {
	var u Usage
	var err error
	if u.Database, err = pathSize(databasePath); err != nil {
		return Usage{}, err
	}
	// sqlite keeps WAL and shared-memory files beside the database
	for _, suffix := range []string{"-wal", "-shm"} {
		n, err := pathSize(databasePath + suffix)
		if err != nil {
			return Usage{}, err
		}
		u.Database += n
	}
	if u.KeywordIndex, err = pathSize(keywordPath); err != nil {
		return Usage{}, err
	}
	if u.VectorIndex, err = pathSize(vectorPath); err != nil {
		return Usage{}, err
	}
	return u, nil
}

func pathSize(p string) (int64, error) {
	if p == "" || p == ":memory:" {
		return 0, nil
	}
	info, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if !info.IsDir() {
		return info.Size(), nil
	}
	var total int64
	err = filepath.WalkDir(p, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		total += fi.Size()
		return nil
	})
	return total, err
}
