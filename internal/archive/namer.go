package archive

import (
	"fmt"
	"path"
	"strings"
	"unicode"
)

// namer assigns bundle entry names. Missing names become foto_{index}.jpg
// and collisions get a " (n)" suffix before the extension, compared
// case-insensitively.
type namer struct {
	used map[string]bool
}

func newNamer() *namer {
	return &namer{used: make(map[string]bool)}
}

func (n *namer) name(filename string, index int) string {
	base := cleanName(filename)
	if base == "" {
		base = fmt.Sprintf("foto_%d.jpg", index)
	}

	candidate := base
	ext := path.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	for i := 2; n.used[strings.ToLower(candidate)]; i++ {
		candidate = fmt.Sprintf("%s (%d)%s", stem, i, ext)
	}
	n.used[strings.ToLower(candidate)] = true
	return candidate
}

// cleanName keeps only the final path element and drops control characters.
func cleanName(filename string) string {
	filename = strings.ReplaceAll(filename, "\\", "/")
	filename = path.Base(strings.TrimSpace(filename))
	filename = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, filename)
	switch filename {
	case ".", "..", "/":
		return ""
	}
	return filename
}
