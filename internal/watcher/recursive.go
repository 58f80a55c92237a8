package watcher

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// addTree watches root and every directory below it. Directories matching
// the filter are skipped along with their contents. When found is non-nil
// the regular files seen during the walk are appended to it.
func (s *Subscription) addTree(root string, found *[]string) error {
	return filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil // Skip errors
		}

		if !entry.IsDir() {
			if found != nil && entry.Type().IsRegular() {
				*found = append(*found, path)
			}
			return nil
		}

		if path != s.target.Root && ignored(s.filter, path) {
			return filepath.SkipDir
		}

		if err := s.addDir(path); err != nil {
			if path != root && errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipDir
			}
			return err
		}
		return nil
	})
}

func (s *Subscription) addDir(path string) error {
	if s.watching[path] {
		return nil
	}
	if err := s.fsw.Add(path); err != nil {
		return err
	}
	s.watching[path] = true
	delete(s.goneDirs, path)
	s.setDirCount(len(s.watching))
	s.logger.Debug("watch added", zap.String("path", path))
	return nil
}

// removeTree forgets root and every watched directory below it. The kernel
// drops watches on deleted directories by itself, so Remove errors are
// expected and only logged at debug level.
func (s *Subscription) removeTree(root string) {
	prefix := root + string(filepath.Separator)
	for path := range s.watching {
		if path != root && !strings.HasPrefix(path, prefix) {
			continue
		}
		if err := s.fsw.Remove(path); err != nil {
			s.logger.Debug("watch remove failed", zap.String("path", path), zap.Error(err))
		}
		delete(s.watching, path)
		s.goneDirs[path] = true
	}
	s.setDirCount(len(s.watching))
}

// isWatchedDir reports whether path is, or recently was, a watched
// directory. Deleted paths cannot be stat'ed, so this is the only way to
// tell a removed directory from a removed file.
func (s *Subscription) isWatchedDir(path string) bool {
	return s.watching[path] || s.goneDirs[path]
}

func (s *Subscription) setDirCount(n int) {
	s.mu.Lock()
	s.dirCount = n
	s.mu.Unlock()
	if s.observer != nil {
		s.observer.WatchedDirectories(n)
	}
}
