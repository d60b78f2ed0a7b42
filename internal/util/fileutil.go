package util

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
)

const PartSuffix = ".flexport.part"

// PartFile is written next to its destination and only moved into place by
// Commit, so an interrupted transfer never leaves a file under the final name.
type PartFile struct {
	dst string
	tmp string
	f   *os.File
}

func CreatePart(dst string) (*PartFile, error) {
	tmp := dst + PartSuffix
	f, err := os.Create(tmp)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}

	return &PartFile{dst: dst, tmp: tmp, f: f}, nil
}

func (p *PartFile) Write(b []byte) (int, error) {
	return p.f.Write(b)
}

func (p *PartFile) Commit() error {
	if err := p.f.Close(); err != nil {
		_ = os.Remove(p.tmp)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(p.tmp, p.dst); err != nil {
		_ = os.Remove(p.tmp)
		return fmt.Errorf("failed to rename: %w", err)
	}

	return nil
}

func (p *PartFile) Abort() {
	_ = p.f.Close()
	_ = os.Remove(p.tmp)
}

func RemoveIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}

	return nil
}

// Created records the files and directories a transfer brought into
// existence so that a failed transfer can remove them again.
type Created struct {
	paths []string
}

func (c *Created) Add(path string) {
	c.paths = append(c.paths, path)
}

// MkdirAll creates dir and its missing parents, recording each new directory.
func (c *Created) MkdirAll(dir string) error {
	var missing []string
	for d := filepath.Clean(dir); ; d = filepath.Dir(d) {
		info, err := os.Stat(d)
		if err == nil {
			if !info.IsDir() {
				return fmt.Errorf("%s is not a directory", d)
			}
			break
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return err
		}

		missing = append(missing, d)
		if filepath.Dir(d) == d {
			break
		}
	}

	for _, d := range slices.Backward(missing) {
		if err := os.Mkdir(d, 0755); err != nil && !errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("failed to create dir: %w", err)
		}
		c.Add(d)
	}

	return nil
}

// Rollback removes recorded paths, newest first.
func (c *Created) Rollback() {
	for _, p := range slices.Backward(c.paths) {
		_ = RemoveIfExists(p)
	}
	c.paths = nil
}
