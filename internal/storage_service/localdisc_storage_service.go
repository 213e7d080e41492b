package storage_service

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/AnishMulay/namestore/internal/fspath"
	"github.com/AnishMulay/namestore/internal/log_service"
)

// LocalDiscStorageService serves files from a root directory on the local
// filesystem. Paths map directly onto the directory layout under the root.
type LocalDiscStorageService struct {
	root string
	ls   log_service.LogService
}

func NewLocalDiscStorageService(root string, ls log_service.LogService) *LocalDiscStorageService {
	return &LocalDiscStorageService{root: root, ls: ls}
}

func (ss *LocalDiscStorageService) filePath(p fspath.Path) string {
	return filepath.Join(ss.root, filepath.FromSlash(p.String()))
}

// statFile resolves a path to a regular file, treating directories the same
// as missing files.
func (ss *LocalDiscStorageService) statFile(p fspath.Path) (os.FileInfo, error) {
	info, err := os.Stat(ss.filePath(p))
	if err != nil || info.IsDir() {
		return nil, ErrFileNotFound
	}
	return info, nil
}

func (ss *LocalDiscStorageService) Size(p fspath.Path) (int64, error) {
	info, err := ss.statFile(p)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (ss *LocalDiscStorageService) Read(p fspath.Path, offset, length int64) ([]byte, error) {
	info, err := ss.statFile(p)
	if err != nil {
		return nil, err
	}

	if offset < 0 || length < 0 || offset+length > info.Size() {
		return nil, ErrOutOfRange
	}

	file, err := os.Open(ss.filePath(p))
	if err != nil {
		return nil, ErrFileNotFound
	}
	defer file.Close()

	data := make([]byte, length)
	if _, err := file.ReadAt(data, offset); err != nil && err != io.EOF {
		return nil, err
	}

	return data, nil
}

// Write puts data at offset, extending the file when the write runs past the
// current end. Writes that start beyond the end are rejected; a seek past the
// end would otherwise leave an implicit hole.
func (ss *LocalDiscStorageService) Write(p fspath.Path, offset int64, data []byte) error {
	info, err := ss.statFile(p)
	if err != nil {
		return err
	}

	if offset < 0 || offset > info.Size() {
		return ErrOutOfRange
	}

	file, err := os.OpenFile(ss.filePath(p), os.O_WRONLY, 0644)
	if err != nil {
		return ErrFileNotFound
	}
	defer file.Close()

	if _, err := file.WriteAt(data, offset); err != nil {
		return err
	}

	return nil
}

// Create makes an empty file, synthesizing any missing parent directories.
// Returns false when the path is the root or the file already exists.
func (ss *LocalDiscStorageService) Create(p fspath.Path) (bool, error) {
	if p.IsRoot() {
		return false, nil
	}

	full := ss.filePath(p)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return false, err
	}

	file, err := os.OpenFile(full, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, err
	}
	file.Close()

	return true, nil
}

// Delete removes a file or a whole directory tree. Returns false when the
// path is the root or nothing exists at it.
func (ss *LocalDiscStorageService) Delete(p fspath.Path) (bool, error) {
	if p.IsRoot() {
		return false, nil
	}

	full := ss.filePath(p)
	if _, err := os.Stat(full); os.IsNotExist(err) {
		return false, nil
	}

	if err := os.RemoveAll(full); err != nil {
		return false, err
	}

	ss.ls.Debug(log_service.LogEvent{
		Message:  "Deleted local path",
		Metadata: map[string]any{"path": p.String()},
	})

	return true, nil
}

// PruneEmptyDirs removes every directory under the root that contains no
// files, deepest first. The root itself always stays.
func (ss *LocalDiscStorageService) PruneEmptyDirs() error {
	var dirs []string
	err := filepath.WalkDir(ss.root, func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && name != ss.root {
			dirs = append(dirs, name)
		}
		return nil
	})
	if err != nil {
		return err
	}

	// Deepest paths first so emptied parents get removed too.
	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })

	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		if len(entries) == 0 {
			os.Remove(dir)
		}
	}

	return nil
}
