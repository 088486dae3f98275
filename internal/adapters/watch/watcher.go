package watch

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// FileWatcher signals when any of a fixed set of files is written or
// replaced. Parent directories are watched so atomic renames are seen.
type FileWatcher struct {
	w      *fsnotify.Watcher
	files  map[string]struct{}
	notify chan string
	errs   func(error)

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// New watches paths. onError receives watcher errors and may be nil.
func New(paths []string, onError func(error)) (*FileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	fw := &FileWatcher{
		w:      w,
		files:  make(map[string]struct{}, len(paths)),
		notify: make(chan string, 1),
		errs:   onError,
		done:   make(chan struct{}),
	}

	dirs := map[string]struct{}{}
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			_ = w.Close()
			return nil, err
		}
		abs = filepath.Clean(abs)
		fw.files[abs] = struct{}{}
		dirs[filepath.Dir(abs)] = struct{}{}
	}
	for dir := range dirs {
		if err := w.Add(dir); err != nil {
			_ = w.Close()
			return nil, fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	fw.wg.Add(1)
	go fw.loop()
	return fw, nil
}

// C delivers the path of a changed file. Bursts collapse into one pending
// notification.
func (fw *FileWatcher) C() <-chan string { return fw.notify }

func (fw *FileWatcher) Close() error {
	var err error
	fw.once.Do(func() {
		close(fw.done)
		err = fw.w.Close()
		fw.wg.Wait()
	})
	return err
}

func (fw *FileWatcher) loop() {
	defer fw.wg.Done()
	for {
		select {
		case <-fw.done:
			return
		case ev, ok := <-fw.w.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			name := filepath.Clean(ev.Name)
			if _, ok := fw.files[name]; !ok {
				continue
			}
			select {
			case fw.notify <- name:
			default:
			}
		case err, ok := <-fw.w.Errors:
			if !ok {
				return
			}
			if fw.errs != nil {
				fw.errs(err)
			}
		}
	}
}
