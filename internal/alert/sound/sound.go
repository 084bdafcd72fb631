// Package sound resolves alarm tones from the freedesktop sound theme.
package sound

import (
	"net/url"
	"path/filepath"
	"strings"
)

// Kind selects one of the platform default tones.
type Kind int

const (
	KindAlarm Kind = iota
	KindNotification
	KindRingtone
)

func (k Kind) String() string {
	switch k {
	case KindAlarm:
		return "alarm"
	case KindNotification:
		return "notification"
	case KindRingtone:
		return "ringtone"
	}
	return "unknown"
}

// Fallback is used when neither a selected tone nor any platform default is
// available.
const Fallback = "file:///usr/share/sounds/freedesktop/stereo/bell.oga"

// Sound is a selectable tone.
type Sound struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

// Candidate yields a tone URI, or "" when it has none.
type Candidate func() string

// Resolve evaluates candidates in order and returns the first non-empty URI.
// It returns Fallback when every candidate is empty.
func Resolve(candidates ...Candidate) string {
	for _, c := range candidates {
		if c == nil {
			continue
		}
		if uri := c(); uri != "" {
			return uri
		}
	}
	return Fallback
}

// Valid reports whether uri is usable as a tone reference: a non-blank,
// parseable URI or absolute path.
func Valid(uri string) bool {
	if strings.TrimSpace(uri) == "" {
		return false
	}
	u, err := url.Parse(uri)
	if err != nil {
		return false
	}
	if u.Scheme == "" {
		return filepath.IsAbs(uri)
	}
	if u.Scheme == "file" {
		return u.Path != ""
	}
	return true
}

// Path converts a file URI or absolute path into a filesystem path.
func Path(uri string) (string, bool) {
	if filepath.IsAbs(uri) {
		return uri, true
	}
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "file" || u.Path == "" {
		return "", false
	}
	return u.Path, true
}

// URI converts a filesystem path into a file URI.
func URI(path string) string {
	return (&url.URL{Scheme: "file", Path: path}).String()
}
