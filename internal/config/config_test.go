package config_test

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/calvinalkan/blobstore/internal/config"
)

func Test_Load_Returns_Defaults_When_No_Config_Files(t *testing.T) {
	t.Parallel()

	workDir := t.TempDir()

	cfg, err := config.Load(config.Input{WorkDirOverride: workDir, Env: map[string]string{}})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	want := config.Config{
		Dir:          ".blobcache",
		SyncDir:      true,
		LogLevel:     slog.LevelWarn,
		EffectiveCwd: workDir,
		DirAbs:       filepath.Join(workDir, ".blobcache"),
	}

	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config (-want +got):\n%s", diff)
	}
}

func Test_Load_Applies_Precedence_Global_Project_Flags(t *testing.T) {
	t.Parallel()

	workDir := t.TempDir()
	xdg := t.TempDir()

	writeFile(t, filepath.Join(xdg, "blobcache", "config.json"), `{
		// global defaults
		"dir": "/var/cache/global",
		"sync_dir": false,
		"log_level": "info",
	}`)
	writeFile(t, filepath.Join(workDir, config.FileName), `{"dir": "project-cache"}`)

	cfg, err := config.Load(config.Input{
		WorkDirOverride: workDir,
		Env:             map[string]string{"XDG_CONFIG_HOME": xdg},
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got, want := cfg.DirAbs, filepath.Join(workDir, "project-cache"); got != want {
		t.Errorf("DirAbs=%q, want=%q", got, want)
	}

	if got, want := cfg.SyncDir, false; got != want {
		t.Errorf("SyncDir=%v, want=%v", got, want)
	}

	if got, want := cfg.LogLevel, slog.LevelInfo; got != want {
		t.Errorf("LogLevel=%v, want=%v", got, want)
	}

	if cfg.Sources.Global == "" || cfg.Sources.Project == "" {
		t.Errorf("Sources=%+v, want both set", cfg.Sources)
	}

	cfg, err = config.Load(config.Input{
		WorkDirOverride: workDir,
		DirOverride:     "/abs/override",
		Verbose:         true,
		Env:             map[string]string{"XDG_CONFIG_HOME": xdg},
	})
	if err != nil {
		t.Fatalf("Load with overrides: %v", err)
	}

	if got, want := cfg.DirAbs, "/abs/override"; got != want {
		t.Errorf("DirAbs=%q, want=%q", got, want)
	}

	if got, want := cfg.LogLevel, slog.LevelDebug; got != want {
		t.Errorf("LogLevel=%v, want=%v", got, want)
	}
}

func Test_Load_Uses_Home_When_XDG_Unset(t *testing.T) {
	t.Parallel()

	home := t.TempDir()
	writeFile(t, filepath.Join(home, ".config", "blobcache", "config.json"), `{"dir": "from-home"}`)

	cfg, err := config.Load(config.Input{
		WorkDirOverride: t.TempDir(),
		Env:             map[string]string{"HOME": home},
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got, want := cfg.Dir, "from-home"; got != want {
		t.Errorf("Dir=%q, want=%q", got, want)
	}
}

func Test_Load_Returns_Error_When_Config_Invalid(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		content string
		wantErr error
	}{
		{name: "BadJSON", content: `{"dir":`, wantErr: config.ErrConfigInvalid},
		{name: "EmptyDir", content: `{"dir": ""}`, wantErr: config.ErrDirEmpty},
		{name: "BadLogLevel", content: `{"log_level": "loud"}`, wantErr: config.ErrLogLevelInvalid},
		{name: "WrongType", content: `{"sync_dir": "yes"}`, wantErr: config.ErrConfigInvalid},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			workDir := t.TempDir()
			writeFile(t, filepath.Join(workDir, config.FileName), tc.content)

			_, err := config.Load(config.Input{WorkDirOverride: workDir, Env: map[string]string{}})
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err=%v, want %v", err, tc.wantErr)
			}
		})
	}
}

func Test_Load_Returns_Error_When_Explicit_Config_Missing(t *testing.T) {
	t.Parallel()

	_, err := config.Load(config.Input{
		WorkDirOverride: t.TempDir(),
		ConfigPath:      "nope.json",
		Env:             map[string]string{},
	})
	if !errors.Is(err, config.ErrConfigFileNotFound) {
		t.Fatalf("err=%v, want ErrConfigFileNotFound", err)
	}
}

func Test_Load_Explicit_Config_Replaces_Project_Config(t *testing.T) {
	t.Parallel()

	workDir := t.TempDir()
	writeFile(t, filepath.Join(workDir, config.FileName), `{"dir": "project"}`)
	writeFile(t, filepath.Join(workDir, "other.json"), `{"dir": "explicit"}`)

	cfg, err := config.Load(config.Input{
		WorkDirOverride: workDir,
		ConfigPath:      "other.json",
		Env:             map[string]string{},
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got, want := cfg.Dir, "explicit"; got != want {
		t.Errorf("Dir=%q, want=%q", got, want)
	}

	if got, want := cfg.Sources.Project, filepath.Join(workDir, "other.json"); got != want {
		t.Errorf("Sources.Project=%q, want=%q", got, want)
	}
}

func Test_Format_Lists_Values_And_Sources(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.EffectiveCwd = "/work"
	cfg.DirAbs = "/work/.blobcache"

	out := config.Format(cfg)

	for _, want := range []string{
		"effective_cwd=/work",
		"dir=/work/.blobcache",
		"sync_dir=true",
		"log_level=warn",
		"(defaults only)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Format output missing %q:\n%s", want, out)
		}
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
