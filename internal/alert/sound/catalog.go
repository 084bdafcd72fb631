package sound

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultDirs are searched for theme tones, in order.
var DefaultDirs = []string{
	"/usr/share/sounds/freedesktop/stereo",
	"/usr/share/sounds",
}

// defaultNames maps each kind to freedesktop sound theme names, best first.
var defaultNames = map[Kind][]string{
	KindAlarm:        {"alarm-clock-elapsed"},
	KindNotification: {"message-new-instant", "message"},
	KindRingtone:     {"phone-incoming-call"},
}

var extensions = []string{".oga", ".ogg", ".wav", ".flac", ".mp3"}

// Catalog looks tones up in a list of directories.
type Catalog struct {
	Dirs []string
}

// NewCatalog returns a catalog over dirs, or DefaultDirs when dirs is empty.
func NewCatalog(dirs ...string) *Catalog {
	if len(dirs) == 0 {
		dirs = DefaultDirs
	}
	return &Catalog{Dirs: dirs}
}

// DefaultURI returns the theme tone for kind, or "" if none is installed.
func (c *Catalog) DefaultURI(kind Kind) string {
	for _, dir := range c.Dirs {
		for _, name := range defaultNames[kind] {
			for _, ext := range extensions {
				p := filepath.Join(dir, name+ext)
				if fi, err := os.Stat(p); err == nil && fi.Mode().IsRegular() {
					return URI(p)
				}
			}
		}
	}
	return ""
}

// Sounds lists every playable file directly inside the catalog directories,
// sorted by title. Missing directories are skipped.
func (c *Catalog) Sounds() ([]Sound, error) {
	seen := make(map[string]bool)
	var out []Sound
	for _, dir := range c.Dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		for _, e := range entries {
			if !isTone(e) {
				continue
			}
			p := filepath.Join(dir, e.Name())
			if seen[p] {
				continue
			}
			seen[p] = true
			out = append(out, Sound{Title: Title(e.Name()), URI: URI(p)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

func isTone(e fs.DirEntry) bool {
	if !e.Type().IsRegular() {
		return false
	}
	ext := strings.ToLower(filepath.Ext(e.Name()))
	for _, x := range extensions {
		if ext == x {
			return true
		}
	}
	return false
}

// Title turns "alarm-clock-elapsed.oga" into "Alarm Clock Elapsed".
func Title(file string) string {
	base := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	base = strings.NewReplacer("-", " ", "_", " ").Replace(base)
	return cases.Title(language.Und).String(strings.Join(strings.Fields(base), " "))
}
