package journal

import (
	"regexp"
	"strings"
)

var rinclude = regexp.MustCompile(`^\s*!?include\s+(.+?)\s*$`)

// Includes lists the paths included by the manifest, in order.
func Includes(manifest string) []string {
	var out []string
	for _, line := range strings.Split(manifest, "\n") {
		if m := rinclude.FindStringSubmatch(line); m != nil {
			out = append(out, strings.Trim(m[1], `"`))
		}
	}
	return out
}

// AddInclude returns manifest with `!include p` added after the last include
// line, or at the end when there is none. changed is false when p is already
// included.
func AddInclude(manifest, p string) (updated string, changed bool) {
	lines := strings.Split(manifest, "\n")
	last := -1
	for i, line := range lines {
		m := rinclude.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if strings.Trim(m[1], `"`) == p {
			return manifest, false
		}
		last = i
	}
	include := "!include " + p
	if last >= 0 {
		lines = append(lines[:last+1], append([]string{include}, lines[last+1:]...)...)
		return strings.Join(lines, "\n"), true
	}
	switch {
	case manifest == "":
		return include + "\n", true
	case strings.HasSuffix(manifest, "\n"):
		return manifest + include + "\n", true
	default:
		return manifest + "\n" + include + "\n", true
	}
}
