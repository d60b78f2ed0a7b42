package driver

import (
	"context"
	"errors"
	"flexport/internal/model"
	"flexport/internal/util"
	"fmt"
	"io"
	"path"
	"path/filepath"
)

type meter struct {
	done   int64
	total  int64
	report ProgressFunc
}

func newMeter(total int64, report ProgressFunc) *meter {
	return &meter{total: max(total, 0), report: report}
}

func (m *meter) add(n int) {
	m.done += int64(n)
	if m.report != nil {
		m.report(m.done, m.total)
	}
}

// copyChunks streams src into dst one buffer at a time. The context is checked
// before every write, which is where a cancelled transfer stops.
func copyChunks(ctx context.Context, dst io.Writer, src io.Reader, buf []byte, name string, onChunk func(int)) error {
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if err := ctx.Err(); err != nil {
				return cancelled(err)
			}

			if _, err := dst.Write(buf[:n]); err != nil {
				return localIO(name, err)
			}
			onChunk(n)
		}

		if errors.Is(rerr, io.EOF) {
			return nil
		}
		if rerr != nil {
			if err := ctx.Err(); err != nil {
				return cancelled(err)
			}
			return fmt.Errorf("%w: reading %s: %w", ErrConnection, name, rerr)
		}
	}
}

// fetchFile downloads one remote file to localPath through a part file.
func fetchFile(ctx context.Context, localPath string, open func() (io.ReadCloser, error), buf []byte, m *meter, created *util.Created) error {
	if err := ctx.Err(); err != nil {
		return cancelled(err)
	}

	if err := created.MkdirAll(filepath.Dir(localPath)); err != nil {
		return localIO(localPath, err)
	}

	src, err := open()
	if err != nil {
		return err
	}

	defer func(src io.ReadCloser) {
		_ = src.Close()
	}(src)

	part, err := util.CreatePart(localPath)
	if err != nil {
		return localIO(localPath, err)
	}

	if err := copyChunks(ctx, part, src, buf, localPath, m.add); err != nil {
		part.Abort()
		return err
	}

	if err := ctx.Err(); err != nil {
		part.Abort()
		return cancelled(err)
	}

	if err := part.Commit(); err != nil {
		return localIO(localPath, err)
	}
	created.Add(localPath)

	return nil
}

type treeStep struct {
	rel  string
	dir  bool
	size int64
}

// walkTree lists the remote tree under root depth-first with an explicit
// stack and returns the steps in download order plus the total file size.
func walkTree(ctx context.Context, root string, list func(dir string) ([]model.RemoteEntry, error), ignoreList []string) ([]treeStep, int64, error) {
	push := func(stack []treeStep, parent string, entries []model.RemoteEntry) ([]treeStep, error) {
		for i := len(entries) - 1; i >= 0; i-- {
			e := entries[i]
			if e.Name == "." || e.Name == ".." || ignored(e.Name, ignoreList) {
				continue
			}
			if !localName(e.Name) {
				return nil, fmt.Errorf("%w: unsafe entry name %q in %s", ErrProtocol, e.Name, path.Join(root, parent))
			}
			stack = append(stack, treeStep{
				rel:  path.Join(parent, e.Name),
				dir:  e.IsDir(),
				size: e.Size,
			})
		}
		return stack, nil
	}

	entries, err := list(root)
	if err != nil {
		return nil, 0, err
	}

	var (
		steps []treeStep
		total int64
	)
	stack, err := push(nil, "", entries)
	if err != nil {
		return nil, 0, err
	}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, 0, cancelled(err)
		}

		step := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		steps = append(steps, step)

		if !step.dir {
			total += step.size
			continue
		}

		entries, err := list(path.Join(root, step.rel))
		if err != nil {
			return nil, 0, err
		}
		if stack, err = push(stack, step.rel, entries); err != nil {
			return nil, 0, err
		}
	}

	return steps, total, nil
}

// mirrorTree replays steps under localRoot. Everything it created is removed
// again if it fails or is cancelled.
func mirrorTree(ctx context.Context, localRoot string, steps []treeStep, total int64, open func(rel string) (io.ReadCloser, error), buf []byte, progress ProgressFunc) (err error) {
	created := &util.Created{}
	defer func() {
		if err != nil {
			created.Rollback()
		}
	}()

	if err := created.MkdirAll(localRoot); err != nil {
		return localIO(localRoot, err)
	}

	m := newMeter(total, progress)
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return cancelled(err)
		}

		rel := filepath.FromSlash(step.rel)
		if !filepath.IsLocal(rel) {
			return fmt.Errorf("%w: %q escapes %s", ErrProtocol, step.rel, localRoot)
		}

		local := filepath.Join(localRoot, rel)
		if step.dir {
			if err := created.MkdirAll(local); err != nil {
				return localIO(local, err)
			}
			continue
		}

		err := fetchFile(ctx, local, func() (io.ReadCloser, error) {
			return open(step.rel)
		}, buf, m, created)
		if err != nil {
			return err
		}
	}

	return nil
}

// fetchSingle downloads one file and removes anything it created on failure.
func fetchSingle(ctx context.Context, localPath string, open func() (io.ReadCloser, error), buf []byte, m *meter) error {
	created := &util.Created{}
	if err := fetchFile(ctx, localPath, open, buf, m, created); err != nil {
		created.Rollback()
		return err
	}

	return nil
}
