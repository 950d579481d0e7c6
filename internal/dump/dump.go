package dump

import (
	"fmt"
	"regexp"
	"sort"
)

// LatestToken is the version spec string that selects the newest version.
const LatestToken = "latest"

var versionPattern = regexp.MustCompile(`^\d{8}$`)

// Version identifies one dated run of a dump, e.g. "20230301".
type Version string

// ParseVersion validates s as an 8 digit version.
func ParseVersion(s string) (Version, error) {
	if !versionPattern.MatchString(s) {
		return "", fmt.Errorf("invalid version %q: must be 8 numerical digits (e.g. \"20230301\")", s)
	}
	return Version(s), nil
}

func (v Version) String() string {
	return string(v)
}

// VersionSpec selects either the latest version of a dump or an exact one.
// The zero value selects the latest version.
type VersionSpec struct {
	version Version
}

// Latest returns a spec resolved against the canonical version index.
func Latest() VersionSpec {
	return VersionSpec{}
}

// Exact returns a spec for a known version.
func Exact(v Version) VersionSpec {
	return VersionSpec{version: v}
}

// ParseVersionSpec parses "latest" or an 8 digit version.
func ParseVersionSpec(s string) (VersionSpec, error) {
	if s == LatestToken {
		return Latest(), nil
	}
	v, err := ParseVersion(s)
	if err != nil {
		return VersionSpec{}, fmt.Errorf("invalid version spec %q: must be 8 numerical digits (e.g. \"20230301\") or the string \"latest\"", s)
	}
	return Exact(v), nil
}

// IsLatest reports whether the spec needs resolving.
func (s VersionSpec) IsLatest() bool {
	return s.version == ""
}

// Version returns the exact version and true, or false for Latest.
func (s VersionSpec) Version() (Version, bool) {
	return s.version, s.version != ""
}

func (s VersionSpec) String() string {
	if s.IsLatest() {
		return LatestToken
	}
	return string(s.version)
}

// FileMeta describes one file of a job as published by the canonical metadata.
type FileMeta struct {
	// Name is the file name, unique within a job listing.
	Name string `json:"name"`

	// URL is the path fragment relative to the host root,
	// e.g. "/enwiki/20230301/enwiki-20230301-pages-articles.xml.bz2".
	URL string `json:"url"`

	// Size is the expected length in bytes.
	Size int64 `json:"size"`

	// Checksums as published. They are not verified.
	MD5  string `json:"md5,omitempty"`
	SHA1 string `json:"sha1,omitempty"`
}

// FilterFiles returns the files whose name matches re, preserving order.
// A nil re matches everything.
func FilterFiles(files []FileMeta, re *regexp.Regexp) []FileMeta {
	if re == nil {
		return files
	}
	out := make([]FileMeta, 0, len(files))
	for _, f := range files {
		if re.MatchString(f.Name) {
			out = append(out, f)
		}
	}
	return out
}

// SortFiles orders files by name.
func SortFiles(files []FileMeta) {
	sort.Slice(files, func(i, j int) bool {
		return files[i].Name < files[j].Name
	})
}
