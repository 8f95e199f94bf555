package config

import (
	"github.com/agilira/argus"

	"github.com/reactorforge/evloop/internal/logx"
)

// fileWatcher wraps an argus watcher bound to a single config file path,
// reloading and republishing Values on every on-disk change.
type fileWatcher struct {
	w    *argus.Watcher
	path string
	log  *logx.Logger
}

// WatchFile loads path once to seed the Store, then starts an argus
// watcher that reloads and republishes Values on every on-disk change
// (§3.3: argus replaces the teacher's manual ConfigStore.SetConfig
// call with a real file-watch-and-reload loop).
func (s *Store) WatchFile(path string, log *logx.Logger) error {
	if log == nil {
		log = logx.Default
	}
	initial, err := loadFile(path)
	if err != nil {
		return err
	}
	s.SetValues(initial)

	w := argus.New(argus.Config{
		PollInterval: 0, // 0 selects argus's default OS-native watch strategy
	})
	fw := &fileWatcher{w: w, path: path, log: log}

	if err := w.Watch(path, func(event argus.ChangeEvent) {
		v, err := loadFile(path)
		if err != nil {
			log.Warnf("config reload from %s failed: %v", path, err)
			return
		}
		s.SetValues(v)
	}); err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		return err
	}

	s.mu.Lock()
	s.watcher = fw
	s.mu.Unlock()
	return nil
}

func (fw *fileWatcher) Stop() error {
	return fw.w.Stop()
}
