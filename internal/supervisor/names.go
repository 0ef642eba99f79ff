package supervisor

import "strings"

const maxNameLen = 64

// IsSafeName reports whether s can be used as a server name. Names become
// directory and file names, so only A-Z a-z 0-9 . _ - are allowed, without
// ".." and not starting with a dot.
func IsSafeName(s string) bool {
	if s == "" || len(s) > maxNameLen {
		return false
	}
	if strings.Contains(s, "..") || strings.HasPrefix(s, ".") {
		return false
	}
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '_' || r == '-' {
			continue
		}
		return false
	}
	return true
}
