package platform

import (
	"path/filepath"
	"testing"
)

// TestPathsForLinuxWithXDG verifies XDG variables win over the fallback dirs.
func TestPathsForLinuxWithXDG(t *testing.T) {
	p, err := PathsFor("linux", map[string]string{
		"XDG_CONFIG_HOME": "/xdg/config",
		"XDG_DATA_HOME":   "/xdg/data",
	}, "/fallback/config", "/fallback/data", "stamp")
	if err != nil {
		t.Fatalf("PathsFor() error = %v", err)
	}
	if want := filepath.Join("/xdg/config", "stamp", "config.toml"); p.ConfigPath != want {
		t.Fatalf("unexpected config path %q", p.ConfigPath)
	}
	if want := filepath.Join("/xdg/data", "stamp", "stamp.db"); p.DBPath != want {
		t.Fatalf("unexpected db path %q", p.DBPath)
	}
	if want := filepath.Join("/xdg/data", "stamp", "log"); p.LogDir != want {
		t.Fatalf("unexpected log dir %q", p.LogDir)
	}
}

// TestPathsForLinuxWithoutXDG verifies the fallback dirs are used when XDG is unset.
func TestPathsForLinuxWithoutXDG(t *testing.T) {
	p, err := PathsFor("linux", map[string]string{"XDG_CONFIG_HOME": " "}, "/home/me/.config", "/home/me/.local/share", "stamp")
	if err != nil {
		t.Fatalf("PathsFor() error = %v", err)
	}
	if want := filepath.Join("/home/me/.config", "stamp", "config.toml"); p.ConfigPath != want {
		t.Fatalf("unexpected config path %q", p.ConfigPath)
	}
	if want := filepath.Join("/home/me/.local/share", "stamp"); p.DataDir != want {
		t.Fatalf("unexpected data dir %q", p.DataDir)
	}
}

// TestPathsForWindowsUsesAppData verifies APPDATA and LOCALAPPDATA are honoured.
func TestPathsForWindowsUsesAppData(t *testing.T) {
	p, err := PathsFor("windows", map[string]string{
		"APPDATA":      `C:\Users\me\AppData\Roaming`,
		"LOCALAPPDATA": `C:\Users\me\AppData\Local`,
	}, `C:\fallback\config`, `C:\fallback\data`, "stamp")
	if err != nil {
		t.Fatalf("PathsFor() error = %v", err)
	}
	if want := filepath.Join(`C:\Users\me\AppData\Roaming`, "stamp", "config.toml"); p.ConfigPath != want {
		t.Fatalf("unexpected config path %q", p.ConfigPath)
	}
	if want := filepath.Join(`C:\Users\me\AppData\Local`, "stamp", "stamp.db"); p.DBPath != want {
		t.Fatalf("unexpected db path %q", p.DBPath)
	}
}

// TestPathsForDarwinIgnoresXDG verifies macOS keeps the user config dir.
func TestPathsForDarwinIgnoresXDG(t *testing.T) {
	base := "/Users/me/Library/Application Support"
	p, err := PathsFor("darwin", map[string]string{"XDG_CONFIG_HOME": "/ignored"}, base, base, "stamp")
	if err != nil {
		t.Fatalf("PathsFor() error = %v", err)
	}
	if want := filepath.Join(base, "stamp", "config.toml"); p.ConfigPath != want {
		t.Fatalf("unexpected config path %q", p.ConfigPath)
	}
}

// TestPathsForRejectsEmptyInputs verifies empty base dirs and names fail.
func TestPathsForRejectsEmptyInputs(t *testing.T) {
	if _, err := PathsFor("darwin", nil, "", "/tmp/data", "stamp"); err == nil {
		t.Fatal("expected error for empty dirs")
	}
	if _, err := PathsFor("linux", nil, "/c", "/d", "  "); err == nil {
		t.Fatal("expected error for empty app name")
	}
}

// TestAppName verifies the default name and dev suffix.
func TestAppName(t *testing.T) {
	if got := AppName(Options{}); got != "stamp" {
		t.Fatalf("AppName() = %q", got)
	}
	if got := AppName(Options{AppName: " work ", DevMode: true}); got != "work-dev" {
		t.Fatalf("AppName(dev) = %q", got)
	}
}
