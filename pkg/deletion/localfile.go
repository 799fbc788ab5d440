package deletion

import (
	"fmt"
	"os"
	"path/filepath"
)

// logPath mirrors the naming convention used by pkg/dialoglog so the
// deletion worker can locate and remove a chat's dialog trace without
// importing that package for a single filename helper.
func logPath(logDir, chatID string) string {
	return filepath.Join(logDir, fmt.Sprintf("llm_dialog_%s.log", chatID))
}

func removeIfExists(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
