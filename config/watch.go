package config

import (
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch re-parses the config file whenever it changes on disk and invokes
// onChange with the newly loaded Config. It returns a stop function that
// closes the underlying watcher; callers should defer it. Watch is a
// no-op (returning a no-op stop func) if Load found no config file, since
// there is nothing on disk to watch.
func Watch(c *Config, onChange func(*Config)) (stop func(), err error) {
	path := c.ConfigFileUsed()
	if path == "" {
		return func() {}, nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: starting watcher: %w", err)
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return nil, fmt.Errorf("config: watching %s: %w", path, err)
	}

	done := make(chan struct{})
	go func() {
		var last time.Time
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if since := time.Since(last); since < WatchInterval {
					continue
				}
				last = time.Now()
				if next, err := Load(); err == nil {
					onChange(next)
				}
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		w.Close()
	}, nil
}
