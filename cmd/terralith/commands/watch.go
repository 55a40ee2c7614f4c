package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newWatchCommand() *cobra.Command {
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch [path...]",
		Short: "Revalidate and replan on every document change",
		Long: `Watch the given files or directories and rebuild the reference graph
whenever a .cue file changes. Useful while authoring documents: cycle and
reference errors surface the moment the file is saved.`,
		Example: `  # Watch the current directory
  terralith watch

  # Watch a directory with a longer settle time
  terralith watch --debounce 2s ./deploy`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				args = []string{"."}
			}

			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return fmt.Errorf("cannot create watcher: %w", err)
			}
			defer watcher.Close()

			for _, path := range args {
				info, err := os.Stat(path)
				if err != nil {
					return fmt.Errorf("cannot stat %s: %w", path, err)
				}
				dir := path
				if !info.IsDir() {
					dir = filepath.Dir(path)
				}
				if err := watcher.Add(dir); err != nil {
					return fmt.Errorf("cannot watch %s: %w", dir, err)
				}
				log.Info().Str("path", dir).Msg("watching")
			}

			check(args)

			var timer *time.Timer
			pending := make(chan struct{}, 1)
			for {
				select {
				case <-cmd.Context().Done():
					return nil
				case event, ok := <-watcher.Events:
					if !ok {
						return nil
					}
					if !strings.HasSuffix(event.Name, ".cue") {
						continue
					}
					if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
						continue
					}
					// Editors fire bursts of events per save; let them settle.
					if timer != nil {
						timer.Stop()
					}
					timer = time.AfterFunc(debounce, func() {
						select {
						case pending <- struct{}{}:
						default:
						}
					})
				case err, ok := <-watcher.Errors:
					if !ok {
						return nil
					}
					log.Error().Err(err).Msg("watch error")
				case <-pending:
					check(args)
				}
			}
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", 300*time.Millisecond, "settle time after a change before revalidating")

	return cmd
}

// check reloads the documents and reports the outcome without stopping the
// watch loop.
func check(args []string) {
	store, graph, err := loadDocument(args)
	if err != nil {
		fmt.Printf("invalid: %v\n", err)
		return
	}
	fmt.Printf("ok: %d declarations across %d levels\n", store.Len(), graph.Depth)
}
