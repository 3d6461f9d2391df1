package prefs

import (
	"os"
	"path/filepath"
	"testing"
)

func writePrefs(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prefs.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	p := Load("")
	if p != Defaults() {
		t.Fatalf("Load = %#v, want %#v", p, Defaults())
	}
}

func TestLoad_ReadsDefaultLocation(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	prefsDir := filepath.Join(home, ".config", "unreadbell")
	if err := os.MkdirAll(prefsDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(prefsDir, "prefs.toml"), []byte("theme = \"Slate\"\nview = \"logs\"\nfollow = false\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	p := Load("")
	if p.Theme != "Slate" || p.View != "logs" || p.Follow {
		t.Fatalf("Load = %#v, want Slate/logs/no follow", p)
	}
}

func TestSave_CreatesFileAndDirs(t *testing.T) {
	prefsFile := filepath.Join(t.TempDir(), "subdir", "prefs.toml")

	want := Prefs{Theme: "Kanagawa", View: "logs", Follow: true}
	if err := Save(prefsFile, want); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if got := Load(prefsFile); got != want {
		t.Fatalf("Load = %#v, want %#v", got, want)
	}
}

func TestLoad_EmptyAndUnknownValuesFallBack(t *testing.T) {
	p := Load(writePrefs(t, "theme = \"\"\nview = \"sideways\"\n"))
	if p.Theme != defaultTheme {
		t.Fatalf("Theme = %q, want %q", p.Theme, defaultTheme)
	}
	if p.View != defaultView {
		t.Fatalf("View = %q, want %q", p.View, defaultView)
	}
}

func TestLoad_InvalidTOMLFallsBackToDefaults(t *testing.T) {
	if p := Load(writePrefs(t, "not valid toml {{{\n")); p != Defaults() {
		t.Fatalf("Load = %#v, want defaults", p)
	}
}
