package main

import (
	"bufio"
	"bytes"
	"context"
	"flag"
	"os"
	"path"
	"strings"
	"testing"

	"github.com/fatih/color"

	"quickledger/internal/engine"
	"quickledger/internal/store"
)

func TestReadInput(t *testing.T) {
	in := "balance\n2025/09/15 Coffee\n    Expenses:Food  5.00 USD\n    Assets:Bank\n\nsave rules/20-user.json\n{}\n\nadd tea 2\n"
	s := bufio.NewScanner(strings.NewReader(in))
	want := []string{
		"balance",
		"2025/09/15 Coffee\n    Expenses:Food  5.00 USD\n    Assets:Bank\n",
		"save rules/20-user.json\n{}\n",
		"add tea 2",
	}
	for i, w := range want {
		got, ok := readInput(s)
		if !ok {
			t.Fatalf("input %d: scanner ended early", i)
		}
		if got != w {
			t.Errorf("input %d: got %q, want %q", i, got, w)
		}
	}
	if _, ok := readInput(s); ok {
		t.Errorf("expected end of input")
	}
}

func TestApplyConfig(t *testing.T) {
	dir := t.TempDir()
	yml := "repository: alice/ledger\nlog_level: debug\nstore:\n  kind: bolt\n  path: /tmp/ql\nai:\n  enabled: true\n  model: claude-test\n  api_key: from-yaml\n"
	if err := os.WriteFile(path.Join(dir, "config.yaml"), []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := readConfig(dir)
	if err != nil {
		t.Fatal(err)
	}

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	r := fs.String("repo", "default", "")
	kind := fs.String("store", "dir", "")
	p := fs.String("path", "", "")
	lvl := fs.String("log-level", "warn", "")
	ai := fs.Bool("ai", false, "")
	model := fs.String("model", "", "")
	if err := fs.Parse([]string{"-store", "memory"}); err != nil {
		t.Fatal(err)
	}
	if err := applyConfig(fs, c); err != nil {
		t.Fatal(err)
	}

	t.Run("configFillsUnsetFlags", func(t *testing.T) {
		if *r != "alice/ledger" || *p != "/tmp/ql" || *lvl != "debug" || !*ai || *model != "claude-test" {
			t.Errorf("config not applied: repo=%s path=%s level=%s ai=%v model=%s", *r, *p, *lvl, *ai, *model)
		}
	})
	t.Run("commandLineWins", func(t *testing.T) {
		if *kind != "memory" {
			t.Errorf("got store %s, want memory", *kind)
		}
	})
	t.Run("envKeyWins", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "")
		if k := apiKey(c); k != "from-yaml" {
			t.Errorf("got %q, want from-yaml", k)
		}
		t.Setenv("ANTHROPIC_API_KEY", "from-env")
		if k := apiKey(c); k != "from-env" {
			t.Errorf("got %q, want from-env", k)
		}
	})
}

func TestReadConfigMissing(t *testing.T) {
	c, err := readConfig(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if c.Repository != "" {
		t.Errorf("expected empty config, got %+v", c)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	if err := loadDotEnv(path.Join(dir, "missing.env")); err != nil {
		t.Errorf("missing .env should be ignored: %v", err)
	}
	file := path.Join(dir, ".env")
	if err := os.WriteFile(file, []byte("QUICKLEDGER_TEST_VAR=hello\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("QUICKLEDGER_TEST_VAR", "")
	os.Unsetenv("QUICKLEDGER_TEST_VAR")
	if err := loadDotEnv(file); err != nil {
		t.Fatal(err)
	}
	if v := os.Getenv("QUICKLEDGER_TEST_VAR"); v != "hello" {
		t.Errorf("got %q, want hello", v)
	}
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()
	for _, kind := range []string{"memory", "dir", "bolt"} {
		t.Run(kind, func(t *testing.T) {
			st, closeStore, err := openStore(kind, t.TempDir(), "alice/ledger")
			if err != nil {
				t.Fatal(err)
			}
			defer closeStore()
			if err := st.WriteFile(ctx, "main.journal", []byte("!include a\n"), "init"); err != nil {
				t.Fatal(err)
			}
			data, err := st.ReadFile(ctx, "main.journal")
			if err != nil || string(data) != "!include a\n" {
				t.Errorf("got %q, %v", data, err)
			}
		})
	}
	if _, _, err := openStore("s3", t.TempDir(), "x"); err == nil {
		t.Errorf("expected an error for an unknown store")
	}
}

func TestRunSession(t *testing.T) {
	color.NoColor = true
	st := store.NewMemory()
	var out bytes.Buffer
	term := newTerminal(&out)
	eng := engine.New(engine.Config{RepoID: "r", Store: st, Sink: term})

	script := "add coffee 10 @ Starbucks\n\nbalance\nbogus input\nexit\nadd never 1\n"
	ok := run(context.Background(), eng, term, strings.NewReader(script), false)
	if ok {
		t.Errorf("expected the bogus line to fail the session")
	}
	got := out.String()
	for _, want := range []string{
		"✓ Created journals/",
		"  Personal:Expenses:General",
		"ERROR: invalid input",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output misses %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "never") {
		t.Errorf("input after exit was processed:\n%s", got)
	}
}
