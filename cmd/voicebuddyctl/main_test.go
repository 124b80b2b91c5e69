package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alecthomas/kong"
)

const fixture = "../../internal/passage/testdata/passages.yaml"

// ikhlas is surah 112 exactly as written in the fixture.
const ikhlas = "قُلْ هُوَ ٱللَّهُ أَحَدٌ ٱللَّهُ ٱلصَّمَدُ لَمْ يَلِدْ وَلَمْ يُولَدْ وَلَمْ يَكُن لَّهُۥ كُفُوًا أَحَدٌۢ"

// run parses args and executes the selected command, returning its output.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var (
		cli CLI
		out bytes.Buffer
	)
	parser, err := kong.New(&cli,
		kong.Name("voicebuddyctl"),
		kong.Exit(func(code int) { t.Fatalf("unexpected exit(%d)", code) }),
		kong.Bind(&Globals{Out: &out, In: strings.NewReader(stdin)}),
	)
	if err != nil {
		t.Fatalf("kong.New: %v", err)
	}
	ctx, err := parser.Parse(args)
	if err != nil {
		return "", err
	}
	err = ctx.Run()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	t.Parallel()
	out, err := run(t, "", "version")
	if err != nil {
		t.Fatal(err)
	}
	if out != "voicebuddyctl dev\n" {
		t.Errorf("out = %q", out)
	}
}

func TestShow(t *testing.T) {
	t.Parallel()
	out, err := run(t, "", "show", "112", "--yaml", fixture)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "112 Al-Ikhlas: 4 segments, 15 tokens\n") {
		t.Errorf("header missing:\n%s", out)
	}
	if !strings.Contains(out, "قُلْ") || !strings.Contains(out, "قل") {
		t.Errorf("surface or normalised form missing:\n%s", out)
	}
}

func TestShow_NotFound(t *testing.T) {
	t.Parallel()
	if _, err := run(t, "", "show", "999", "--yaml", fixture); err == nil {
		t.Fatal("expected error for unknown passage")
	}
}

func TestShow_SourcesAreExclusive(t *testing.T) {
	t.Parallel()
	db := filepath.Join(t.TempDir(), "p.db")
	if _, err := run(t, "", "show", "112", "--yaml", fixture, "--sqlite", db); err == nil {
		t.Fatal("expected parse error for two sources")
	}
}

func TestAlign(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		stdin      string
		args       []string
		wantSuffix string
	}{
		{
			name:       "complete recitation",
			args:       []string{"align", "112", ikhlas, "--yaml", fixture},
			wantSuffix: "correct=15 skipped=0 pending=0 complete=true feedback=perfect\n",
		},
		{
			name:       "partial recitation",
			args:       []string{"align", "112", "قُلْ هُوَ", "--yaml", fixture},
			wantSuffix: "correct=2 skipped=0 pending=13 complete=false feedback=in-progress\n",
		},
		{
			name:       "transcript from stdin",
			stdin:      ikhlas + "\n",
			args:       []string{"align", "112", "-", "--yaml", fixture},
			wantSuffix: "complete=true feedback=perfect\n",
		},
		{
			name:       "empty transcript",
			args:       []string{"align", "112", "--yaml", fixture},
			wantSuffix: "correct=0 skipped=0 pending=15 complete=false feedback=in-progress\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			out, err := run(t, tt.stdin, tt.args...)
			if err != nil {
				t.Fatal(err)
			}
			if !strings.HasSuffix(out, tt.wantSuffix) {
				t.Errorf("output does not end with %q:\n%s", tt.wantSuffix, out)
			}
		})
	}
}

func TestAlign_Verbose(t *testing.T) {
	t.Parallel()
	out, err := run(t, "", "align", "112", "قُلْ هُوَ", "--yaml", fixture, "-v")
	if err != nil {
		t.Fatal(err)
	}
	// A two-letter segment opener waits for the next word to confirm it.
	if !strings.Contains(out, "deferred=true cursor=0/0") {
		t.Errorf("first step should defer:\n%s", out)
	}
	if !strings.Contains(out, "deferred=false cursor=2/2") {
		t.Errorf("second step should commit both words:\n%s", out)
	}
}

func TestImportThenShow(t *testing.T) {
	t.Parallel()
	db := filepath.Join(t.TempDir(), "passages.db")

	out, err := run(t, "", "import", fixture, "--sqlite", db)
	if err != nil {
		t.Fatal(err)
	}
	if out != "imported 2 passages\n" {
		t.Errorf("import out = %q", out)
	}

	out, err = run(t, "", "show", "1", "--sqlite", db)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "1 Al-Fatiha: 7 segments") {
		t.Errorf("show out:\n%s", out)
	}
}

func TestImport_RequiresDestination(t *testing.T) {
	t.Parallel()
	if _, err := run(t, "", "import", fixture); err == nil {
		t.Fatal("expected error without a destination")
	}
}
