package book

import (
	"fmt"
	"regexp"
	"strings"
)

var unsafeFilenameChars = regexp.MustCompile(`[<>:"/\\|?*]`)

// SanitizeTitle strips characters that are unsafe in file names on common
// filesystems and collapses the result to something usable.
func SanitizeTitle(title string) string {
	s := unsafeFilenameChars.ReplaceAllString(title, "")
	s = strings.Join(strings.Fields(s), " ")
	s = strings.Trim(s, " .")
	return s
}

// OutputFileName is a pure function of chapter index and title, so re-runs
// always target the same path.
func OutputFileName(index int, title string) string {
	safe := SanitizeTitle(title)
	if safe == "" {
		safe = fmt.Sprintf("Chapter_%d", index+1)
	}
	return fmt.Sprintf("%03d_%s.mp3", index, safe)
}
