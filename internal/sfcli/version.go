package sfcli

import (
	"regexp"
	"strconv"
	"strings"
)

var cliVersionPattern = regexp.MustCompile(`@salesforce/cli/(\d+\.\d+\.\d+)`)

// ParseCLIVersion extracts the sf CLI version from `sf --version` output.
func ParseCLIVersion(output string) (string, bool) {
	m := cliVersionPattern.FindStringSubmatch(output)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// CompareVersions compares dotted versions component by component as numbers.
// Missing or non-numeric components count as 0. It returns 1 if a > b, -1 if
// a < b and 0 otherwise.
func CompareVersions(a, b string) int {
	pa := strings.Split(a, ".")
	pb := strings.Split(b, ".")

	n := len(pa)
	if len(pb) > n {
		n = len(pb)
	}

	for i := 0; i < n; i++ {
		na := versionComponent(pa, i)
		nb := versionComponent(pb, i)
		switch {
		case na > nb:
			return 1
		case na < nb:
			return -1
		}
	}
	return 0
}

func versionComponent(parts []string, i int) int {
	if i >= len(parts) {
		return 0
	}
	s := strings.TrimSpace(parts[i])
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}
