package discovery

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

const mib = 1024 * 1024

func writeSized(t *testing.T, dir, name string, size int64) {
	t.Helper()
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	defer f.Close()
	// Sparse file: Truncate sets the size without writing the bytes.
	if err := f.Truncate(size); err != nil {
		t.Fatalf("truncate %s: %v", name, err)
	}
}

func names(cs []Candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = filepath.Base(c.Path)
	}
	sort.Strings(out)
	return out
}

func TestDiscover_FiltersSizeAndExtension(t *testing.T) {
	dir := t.TempDir()
	writeSized(t, dir, "small.mov", 1*mib)
	writeSized(t, dir, "limit.mov", 50*mib)
	writeSized(t, dir, "big.mov", 50*mib+1)
	writeSized(t, dir, "other.mp4", 1*mib)
	writeSized(t, dir, "upper.MOV", 1*mib)
	if err := os.Mkdir(filepath.Join(dir, "folder.mov"), 0o755); err != nil {
		t.Fatal(err)
	}

	got, err := Discover(dir, Options{Extension: ".mov", MaxBytes: 50 * mib})
	if err != nil {
		t.Fatalf("Discover error: %v", err)
	}

	want := []string{"limit.mov", "small.mov"}
	gotNames := names(got)
	if len(gotNames) != len(want) {
		t.Fatalf("got %v, want %v", gotNames, want)
	}
	for i := range want {
		if gotNames[i] != want[i] {
			t.Errorf("got %v, want %v", gotNames, want)
		}
	}
	for _, c := range got {
		if !filepath.IsAbs(c.Path) {
			t.Errorf("path %q is not absolute", c.Path)
		}
		if c.Size > 50*mib {
			t.Errorf("%s exceeds ceiling: %d", c.Path, c.Size)
		}
	}
}

func TestDiscover_SkipsHiddenFiles(t *testing.T) {
	dir := t.TempDir()
	writeSized(t, dir, "clip.mov", 1*mib)
	writeSized(t, dir, "._clip.mov", 4096)
	writeSized(t, dir, ".hidden.mov", 1*mib)

	got, err := Discover(dir, Options{Extension: ".mov", MaxBytes: 50 * mib})
	if err != nil {
		t.Fatalf("Discover error: %v", err)
	}
	if gotNames := names(got); len(gotNames) != 1 || gotNames[0] != "clip.mov" {
		t.Errorf("got %v, want [clip.mov]", gotNames)
	}
}

func TestDiscover_OnlyHiddenFiles(t *testing.T) {
	dir := t.TempDir()
	writeSized(t, dir, "._clip.mov", 4096)

	if _, err := Discover(dir, Options{Extension: ".mov"}); !errors.Is(err, ErrNoCandidates) {
		t.Errorf("expected ErrNoCandidates, got %v", err)
	}
}

func TestDiscover_NoCeiling(t *testing.T) {
	dir := t.TempDir()
	writeSized(t, dir, "huge.mov", 200*mib)

	got, err := Discover(dir, Options{Extension: ".mov"})
	if err != nil {
		t.Fatalf("Discover error: %v", err)
	}
	if len(got) != 1 || got[0].Size != 200*mib {
		t.Errorf("got %+v, want huge.mov", got)
	}
}

func TestDiscover_MissingDir(t *testing.T) {
	_, err := Discover(filepath.Join(t.TempDir(), "absent"), Options{Extension: ".mov"})
	if !errors.Is(err, ErrInputDirMissing) {
		t.Errorf("err = %v, want ErrInputDirMissing", err)
	}
}

func TestDiscover_NotADirectory(t *testing.T) {
	dir := t.TempDir()
	writeSized(t, dir, "file", 1)
	_, err := Discover(filepath.Join(dir, "file"), Options{Extension: ".mov"})
	if !errors.Is(err, ErrInputDirMissing) {
		t.Errorf("err = %v, want ErrInputDirMissing", err)
	}
}

func TestDiscover_EmptyDir(t *testing.T) {
	_, err := Discover(t.TempDir(), Options{Extension: ".mov", MaxBytes: 50 * mib})
	if !errors.Is(err, ErrNoCandidates) {
		t.Errorf("err = %v, want ErrNoCandidates", err)
	}
}

func TestDiscover_OnlyOversized(t *testing.T) {
	dir := t.TempDir()
	writeSized(t, dir, "big.mov", 51*mib)

	_, err := Discover(dir, Options{Extension: ".mov", MaxBytes: 50 * mib})
	if !errors.Is(err, ErrNoCandidates) {
		t.Errorf("err = %v, want ErrNoCandidates", err)
	}
}

func TestPaths(t *testing.T) {
	cs := []Candidate{{Path: "/a.mov"}, {Path: "/b.mov"}}
	got := Paths(cs)
	if len(got) != 2 || got[0] != "/a.mov" || got[1] != "/b.mov" {
		t.Errorf("Paths = %v", got)
	}
}
