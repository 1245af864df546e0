package sync

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// copyBufferSize bounds the in-memory buffer used to stream file contents;
// spec §4.4 forbids a full in-memory slurp.
const copyBufferSize = 256 * 1024

// copyFile streams src's contents to dst, creating dst's parent
// directories (permissive but not world-writable) and replicating src's
// mtime on dst after a successful copy. The write is committed atomically
// via renameio so a crash mid-copy cannot leave a partial file that a
// later sweep would mistake for a valid destination.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create destination dir: %w", err)
	}

	pending, err := renameio.NewPendingFile(dst, renameio.WithPermissions(0o644), renameio.WithExistingPermissions())
	if err != nil {
		return fmt.Errorf("open pending destination: %w", err)
	}
	defer pending.Cleanup()

	buf := make([]byte, copyBufferSize)
	if _, err := io.CopyBuffer(pending, in, buf); err != nil {
		return fmt.Errorf("copy contents: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("commit destination: %w", err)
	}

	if err := os.Chtimes(dst, info.ModTime(), info.ModTime()); err != nil {
		return fmt.Errorf("replicate mtime: %w", err)
	}
	return nil
}

// ensureDir creates dst as a directory if it does not already exist. No
// mtime propagation is required for directories (spec §4.4).
func ensureDir(dst string) error {
	return os.MkdirAll(dst, 0o755)
}
