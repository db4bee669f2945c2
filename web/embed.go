package web

import (
	"embed"
	"io/fs"
)

//go:embed sounds/*.wav
var soundFS embed.FS

// Sounds returns the built-in alert sounds, rooted so catalog paths resolve directly.
func Sounds() (fs.FS, error) {
	return fs.Sub(soundFS, "sounds")
}
