package service

import (
	"fmt"
	"html"
	"os"
	"path/filepath"
)

// Paths under the tenant root. Suspension parks the live entry point at
// the held name and serves the static page in its place; resume swaps
// them back.
const (
	entryFileName = "content/index.html"
	heldEntryName = "content/index.html.live"
)

const placeholderPage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Site suspended</title>
</head>
<body>
<h1>This site is currently suspended</h1>
<p>%s</p>
<p>If you are the site owner, contact support to restore access.</p>
</body>
</html>
`

// writePlaceholder covers the tenant's entry point with the static
// suspension page, keeping the original aside for resume. Re-suspending
// never overwrites an already parked original.
func writePlaceholder(root, reason string) error {
	entry := filepath.Join(root, filepath.FromSlash(entryFileName))
	held := filepath.Join(root, filepath.FromSlash(heldEntryName))

	if _, err := os.Stat(entry); err == nil {
		if _, err := os.Stat(held); os.IsNotExist(err) {
			if err := os.Rename(entry, held); err != nil {
				return fmt.Errorf("park entry point: %w", err)
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(entry), 0o755); err != nil {
		return fmt.Errorf("ensure content dir: %w", err)
	}
	body := fmt.Sprintf(placeholderPage, html.EscapeString(reason))
	if err := os.WriteFile(entry, []byte(body), 0o644); err != nil {
		return fmt.Errorf("write placeholder page: %w", err)
	}
	return nil
}

// restoreEntryPoint undoes writePlaceholder. When no original was
// parked, the placeholder is simply removed.
func restoreEntryPoint(root string) error {
	entry := filepath.Join(root, filepath.FromSlash(entryFileName))
	held := filepath.Join(root, filepath.FromSlash(heldEntryName))

	if _, err := os.Stat(held); err == nil {
		if err := os.Rename(held, entry); err != nil {
			return fmt.Errorf("restore entry point: %w", err)
		}
		return nil
	}
	if err := os.Remove(entry); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove placeholder page: %w", err)
	}
	return nil
}
