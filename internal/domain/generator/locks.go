package generator

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"

	"commesse/internal/core/numerator"
)

// FolderLockName derives a stable lock name from an absolute order folder path.
func FolderLockName(folder string) string {
	abs, err := filepath.Abs(folder)
	if err != nil {
		abs = folder
	}
	sum := sha256.Sum256([]byte(filepath.Clean(abs)))
	return "ddt-folder-" + hex.EncodeToString(sum[:])[:16]
}

// CounterLockName is the fixed lock guarding one class counter.
func CounterLockName(class numerator.Class) string {
	return "ddt-counter-" + class.String()
}

// LockNames lists the locks a generate call takes, in acquisition order.
// Entrata serialises per folder and then on its counter, so different folders
// still draw consecutive numbers. Uscita uses the global counter lock only.
func LockNames(class numerator.Class, folder string) []string {
	if class == numerator.Entrata {
		return []string{FolderLockName(folder), CounterLockName(class)}
	}
	return []string{CounterLockName(class)}
}
