package auth

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/navio/ally/cmd/utils"
)

// Watch reloads the store whenever the credentials file changes and calls
// onChange when the token differs from the previous one. It returns once
// the watcher is running; watching stops when ctx is done.
func (s *Store) Watch(ctx context.Context, onChange func(Credentials)) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create credentials directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	// The file is replaced by rename and removed on logout, so watch its
	// directory rather than the file itself.
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch credentials directory: %w", err)
	}

	go func() {
		defer watcher.Close()
		last := s.Token()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(s.path) {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
					!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
					continue
				}
				if err := s.Reload(); err != nil {
					utils.LogDebug(fmt.Sprintf("auth: failed to reload credentials: %v", err))
					continue
				}
				creds := s.Credentials()
				if creds.AccessToken == last {
					continue
				}
				last = creds.AccessToken
				if onChange != nil {
					onChange(creds)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				utils.LogDebug(fmt.Sprintf("auth: watcher error: %v", err))
			}
		}
	}()
	return nil
}
