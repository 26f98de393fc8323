// Package vercmp implements the package version ordering used by
// pacman-style distributions.
//
// A full version string has the form [epoch SEP]pkgver[-pkgrel] where the
// epoch separator is "~" (repositories that avoid ":" in file names) or
// ":" (classic pacman). The epoch dominates, then the upstream version,
// then the release; the release only participates when both sides carry
// one, so "1.0" and "1.0-2" compare equal.
//
// Within one component, comparison follows the rpm/pacman rules: the
// string is cut into maximal runs of digits, letters, and separators,
// runs are compared pairwise, and a digit run always beats a non-digit
// run. Numeric runs compare by value, letter runs lexically, separator
// runs by length. A trailing letter run loses against a shorter string
// ("1.0rc" sorts before "1.0").
package vercmp

import "strings"

// Compare returns -1, 0, or 1 when a is older than, equal to, or newer
// than b.
func Compare(a, b string) int {
	ea, va, ra, hasRA := split(a)
	eb, vb, rb, hasRB := split(b)

	if c := rpmvercmp(ea, eb); c != 0 {
		return c
	}
	if c := rpmvercmp(va, vb); c != 0 {
		return c
	}
	if hasRA && hasRB {
		return rpmvercmp(ra, rb)
	}
	return 0
}

// Newer reports whether a is strictly newer than b.
func Newer(a, b string) bool { return Compare(a, b) > 0 }

// ExtractUpstream reduces a full package version to the plain upstream
// version: the release, any "+" build suffix, and the epoch are removed.
// "1~4.2.1+22-3" becomes "4.2.1".
func ExtractUpstream(version string) string {
	v := version
	if i := strings.IndexByte(v, '-'); i >= 0 {
		v = v[:i]
	}
	if i := strings.IndexByte(v, '+'); i >= 0 {
		v = v[:i]
	}
	if i := strings.IndexByte(v, '~'); i >= 0 {
		v = v[i+1:]
	}
	if i := strings.IndexByte(v, ':'); i >= 0 {
		v = v[i+1:]
	}
	return v
}

// vcsSuffixes are the VCS markers recipe names carry for packages built
// from a repository snapshot instead of a release tarball.
var vcsSuffixes = []string{"-cvs", "-svn", "-hg", "-darcs", "-bzr", "-git"}

// StripVCS removes a trailing VCS marker from a package name, so that
// "foo-git" matches upstream trackers reporting "foo".
func StripVCS(name string) string {
	for _, s := range vcsSuffixes {
		if strings.HasSuffix(name, s) {
			return name[:len(name)-len(s)]
		}
	}
	return name
}

// split cuts a full version into epoch, upstream version, and release.
// The epoch defaults to "0"; hasRel records whether a release was present
// since an absent release compares equal to everything.
func split(v string) (epoch, ver, rel string, hasRel bool) {
	epoch = "0"
	if i := strings.IndexByte(v, '~'); i >= 0 {
		epoch, v = v[:i], v[i+1:]
	} else if i := strings.IndexByte(v, ':'); i >= 0 {
		epoch, v = v[:i], v[i+1:]
	}
	if i := strings.LastIndexByte(v, '-'); i >= 0 {
		return epoch, v[:i], v[i+1:], true
	}
	return epoch, v, "", false
}

type runType int

const (
	typeDigit runType = iota
	typeAlpha
	typeOther
)

func classify(c byte) runType {
	switch {
	case c >= '0' && c <= '9':
		return typeDigit
	case c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z':
		return typeAlpha
	default:
		return typeOther
	}
}

// runs cuts s into maximal substrings of one run type.
func runs(s string) []string {
	if s == "" {
		return nil
	}
	var parts []string
	start := 0
	for i := 1; i <= len(s); i++ {
		if i == len(s) || classify(s[i]) != classify(s[start]) {
			parts = append(parts, s[start:i])
			start = i
		}
	}
	return parts
}

func rpmvercmp(a, b string) int {
	pa, pb := runs(a), runs(b)
	for i := 0; i < len(pa) || i < len(pb); i++ {
		// One side ran out: the longer side is newer unless its next
		// run is alphabetic ("1.0rc" < "1.0").
		if i >= len(pa) {
			if classify(pb[i][0]) == typeAlpha {
				return 1
			}
			return -1
		}
		if i >= len(pb) {
			if classify(pa[i][0]) == typeAlpha {
				return -1
			}
			return 1
		}

		ta, tb := classify(pa[i][0]), classify(pb[i][0])
		if ta != tb {
			switch {
			case ta == typeDigit:
				return 1
			case tb == typeDigit:
				return -1
			case ta == typeOther:
				return 1
			default:
				return -1
			}
		}

		var c int
		switch ta {
		case typeDigit:
			c = compareNumeric(pa[i], pb[i])
		case typeAlpha:
			c = strings.Compare(pa[i], pb[i])
		default:
			c = compareInt(len(pa[i]), len(pb[i]))
		}
		if c != 0 {
			return c
		}
	}
	return 0
}

// compareNumeric compares two digit runs by value without converting,
// so arbitrarily long (timestamp-style) components cannot overflow.
func compareNumeric(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if c := compareInt(len(a), len(b)); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}

func compareInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
