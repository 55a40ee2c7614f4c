package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadDir registers every *.rego file in a directory as an enabled policy
// named after the file. Severity defaults to error; the violation's own
// severity field still decides how each finding is graded.
func (e *Engine) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("cannot read policy directory %s: %w", dir, err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".rego") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("cannot read policy %s: %w", path, err)
		}
		name := strings.TrimSuffix(entry.Name(), ".rego")
		if err := e.Add(Policy{
			Name:     name,
			Severity: SeverityError,
			Enabled:  true,
			Rego:     string(content),
		}); err != nil {
			return fmt.Errorf("policy %s: %w", path, err)
		}
		loaded++
	}
	e.logger.Info().Int("policies", loaded).Str("dir", dir).Msg("policies loaded")
	return nil
}
