package prompts

import (
	"embed"
	"fmt"
	"io/fs"
)

//go:embed templates/*.txt.tmpl
var promptsFS embed.FS

// Template names.
const (
	AddressSystem = "address_system"
	AddressUser   = "address_user"
)

// FS returns the embedded templates directory.
func FS() fs.FS {
	if sub, err := fs.Sub(promptsFS, "templates"); err == nil {
		return sub
	}
	return promptsFS
}

// PathFor maps a logical name to its file, e.g. "address_user@v2" -> address_user@v2.txt.tmpl.
func PathFor(name string) string {
	return fmt.Sprintf("%s.txt.tmpl", name)
}
