package scanner

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 8 * time.Second

// ExecuteWatch watches every scan root recursively and triggers a pass a
// short while after the filesystem settles. it blocks until CancelWatch.
func (s *Scanner) ExecuteWatch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	for _, root := range s.roots {
		if err := watchDirs(watcher, root.Path); err != nil {
			log.Printf("warning: watching %q: %v", root.Path, err)
		}
	}

	// debounce timer starts drained so the first tick only ever follows an
	// event
	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-s.watchDone:
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := watchDirs(watcher, event.Name); err != nil {
						log.Printf("warning: watching new dir %q: %v", event.Name, err)
					}
				}
			}
			resetDebounce(timer, watchDebounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("warning: watcher: %v", err)
		case <-timer.C:
			if _, err := s.ScanAndReconcile(ScanOptions{}); err != nil && err != ErrAlreadyScanning {
				log.Printf("error scanning after filesystem change: %v", err)
			}
		}
	}
}

// resetDebounce arms timer for d. a fired-but-unconsumed timer holds a stale
// tick which Reset alone would leave behind, firing the next wait instantly.
func resetDebounce(timer *time.Timer, d time.Duration) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	timer.Reset(d)
}

func (s *Scanner) CancelWatch() {
	close(s.watchDone)
}

func watchDirs(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if name := filepath.Base(path); len(name) > 1 && name[0] == '.' {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}
