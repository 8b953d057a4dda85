package whispercpp

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func touch(t *testing.T, path string) string {
	t.Helper()
	if err := os.WriteFile(path, []byte("ggml"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestResolveModel_DirectPath(t *testing.T) {
	path := touch(t, filepath.Join(t.TempDir(), "custom-weights.bin"))
	got, err := ResolveModel(path, "", "")
	if err != nil {
		t.Fatalf("ResolveModel: %v", err)
	}
	if got != path {
		t.Errorf("got %q; want the direct path %q", got, path)
	}
}

func TestResolveModel_ModelDir(t *testing.T) {
	dir := t.TempDir()
	want := touch(t, filepath.Join(dir, "ggml-base.en.bin"))
	got, err := ResolveModel("base.en", dir, "")
	if err != nil {
		t.Fatalf("ResolveModel: %v", err)
	}
	if got != want {
		t.Errorf("got %q; want %q", got, want)
	}
}

func TestResolveModel_ModelDirOverridesCacheDir(t *testing.T) {
	modelDir := t.TempDir()
	cacheDir := t.TempDir()
	touch(t, filepath.Join(cacheDir, "ggml-tiny.bin"))

	// The model exists only in the cache, but an explicit model directory
	// must win and the cache must not be consulted.
	_, err := ResolveModel("tiny", modelDir, cacheDir)
	if err == nil {
		t.Fatal("expected not-found error when modelDir overrides cacheDir")
	}
	if strings.Contains(err.Error(), cacheDir) {
		t.Errorf("error mentions cacheDir, so it was searched: %v", err)
	}
}

func TestResolveModel_CacheDir(t *testing.T) {
	cacheDir := t.TempDir()
	want := touch(t, filepath.Join(cacheDir, "ggml-small.bin"))
	got, err := ResolveModel("small", "", cacheDir)
	if err != nil {
		t.Fatalf("ResolveModel: %v", err)
	}
	if got != want {
		t.Errorf("got %q; want %q", got, want)
	}
}

func TestResolveModel_FallbackNames(t *testing.T) {
	tests := []struct {
		name string
		file string
	}{
		{"model dot bin", "large-v3.bin"},
		{"bare name", "large-v3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			want := touch(t, filepath.Join(dir, tt.file))
			got, err := ResolveModel("large-v3", dir, "")
			if err != nil {
				t.Fatalf("ResolveModel: %v", err)
			}
			if got != want {
				t.Errorf("got %q; want %q", got, want)
			}
		})
	}
}

func TestResolveModel_NotFound(t *testing.T) {
	_, err := ResolveModel("no-such-model-xyz", t.TempDir(), "")
	if err == nil {
		t.Fatal("expected error for missing model, got nil")
	}
	if !strings.Contains(err.Error(), "no-such-model-xyz") {
		t.Errorf("error should name the model: %v", err)
	}
}

func TestResolveModel_EmptyName(t *testing.T) {
	if _, err := ResolveModel("", "", ""); err == nil {
		t.Fatal("expected error for empty model name, got nil")
	}
}
