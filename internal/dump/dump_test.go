package dump

import (
	"regexp"
	"testing"
)

func TestParseVersionSpec(t *testing.T) {
	tests := []struct {
		input   string
		latest  bool
		version Version
		wantErr bool
	}{
		{"latest", true, "", false},
		{"20230301", false, "20230301", false},
		{"00000000", false, "00000000", false},
		{"2023030", false, "", true},
		{"202303011", false, "", true},
		{"2023-03-01", false, "", true},
		{"Latest", false, "", true},
		{"", false, "", true},
		{"２０２３０３０１", false, "", true},
	}

	for _, tt := range tests {
		spec, err := ParseVersionSpec(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseVersionSpec(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if tt.wantErr {
			continue
		}
		if spec.IsLatest() != tt.latest {
			t.Errorf("ParseVersionSpec(%q).IsLatest() = %v, want %v", tt.input, spec.IsLatest(), tt.latest)
		}
		v, ok := spec.Version()
		if ok == tt.latest || v != tt.version {
			t.Errorf("ParseVersionSpec(%q).Version() = (%q, %v), want %q", tt.input, v, ok, tt.version)
		}
		if spec.String() != tt.input {
			t.Errorf("ParseVersionSpec(%q).String() = %q", tt.input, spec.String())
		}
	}
}

func TestZeroVersionSpecIsLatest(t *testing.T) {
	var spec VersionSpec
	if !spec.IsLatest() {
		t.Error("expected zero VersionSpec to select latest")
	}
}

func TestFilterFiles(t *testing.T) {
	files := []FileMeta{
		{Name: "a.xml.bz2"},
		{Name: "a.xml.bz2.rss"},
		{Name: "b.xml.bz2"},
	}

	got := FilterFiles(files, regexp.MustCompile(`a\.xml\.bz2$`))
	if len(got) != 1 || got[0].Name != "a.xml.bz2" {
		t.Errorf("expected only a.xml.bz2, got %v", got)
	}

	if got := FilterFiles(files, nil); len(got) != 3 {
		t.Errorf("expected nil filter to keep all files, got %d", len(got))
	}

	if got := FilterFiles(files, regexp.MustCompile(`^nothing$`)); len(got) != 0 {
		t.Errorf("expected no matches, got %v", got)
	}

	// Unanchored match.
	if got := FilterFiles(files, regexp.MustCompile(`xml`)); len(got) != 3 {
		t.Errorf("expected unanchored pattern to match all files, got %d", len(got))
	}
}

func TestSortFiles(t *testing.T) {
	files := []FileMeta{{Name: "c"}, {Name: "a"}, {Name: "b"}}
	SortFiles(files)
	for i, want := range []string{"a", "b", "c"} {
		if files[i].Name != want {
			t.Errorf("files[%d] = %s, want %s", i, files[i].Name, want)
		}
	}
}
