package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path"
	"regexp"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"quickledger/internal/engine"
	"quickledger/internal/metrics"
	"quickledger/internal/rules"
	"quickledger/internal/store"
	"quickledger/internal/suggest"
)

var (
	repo      = flag.String("repo", "default", "Repository identity, e.g. alice/ledger.")
	storeKind = flag.String("store", "dir", "Store backend: dir, bolt or memory.")
	storePath = flag.String("path", "", "Directory (dir) or file (bolt) holding the repositories. Defaults to the config directory.")
	configDir = flag.String("conf", os.Getenv("HOME")+"/.quickledger",
		"Config directory holding config.yaml.")
	logLevel = flag.String("log-level", "warn", "Log level: debug, info, warn or error.")
	aiOn     = flag.Bool("ai", false, "Ask Claude for account suggestions. Needs ANTHROPIC_API_KEY.")
	aiModel  = flag.String("model", suggest.DefaultModel, "Claude model used for suggestions.")
	envFile  = flag.String("env", ".env", "dotenv file to load before reading the environment.")

	logger *log.Logger

	// Lines starting a multi-line block: a dated entry or a save.
	rblock = regexp.MustCompile(`^(?:\d{4}[/-]\d{2}[/-]\d{2}\s|(?i:save)\s)`)
)

func checkf(err error, format string, args ...interface{}) {
	if err != nil {
		logger.Fatal(fmt.Sprintf(format, args...), "err", fmt.Sprintf("%+v", errors.WithStack(err)))
	}
}

func assertf(ok bool, format string, args ...interface{}) {
	if !ok {
		logger.Fatal(fmt.Sprintf(format, args...), "err", errors.Errorf("Should be true, but is false"))
	}
}

var errc = color.New(color.BgRed, color.FgWhite).PrintfFunc()

func oerr(msg string) {
	errc("\tERROR: " + msg + " ")
	fmt.Println()
	fmt.Println("Flags available:")
	flag.PrintDefaults()
	fmt.Println()
}

// openStore returns the store of *repo and a function releasing it.
func openStore(kind, base, repoID string) (store.Store, func() error, error) {
	nop := func() error { return nil }
	switch kind {
	case "memory":
		st, err := store.NewMemoryProvider().Open(repoID)
		return st, nop, err
	case "dir":
		st, err := store.DirProvider{Base: base}.Open(repoID)
		return st, nop, err
	case "bolt":
		if !strings.HasSuffix(base, ".db") {
			base = path.Join(base, "quickledger.db")
		}
		if err := os.MkdirAll(path.Dir(base), 0o755); err != nil {
			return nil, nil, errors.Wrapf(err, "mkdir %s", path.Dir(base))
		}
		db, err := store.OpenBolt(base)
		if err != nil {
			return nil, nil, err
		}
		st, err := store.BoltProvider{DB: db}.Open(repoID)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return st, db.Close, nil
	}
	return nil, nil, errors.Errorf("unknown store %q, want dir, bolt or memory", kind)
}

// readInput reads one unit of input. Dated entries and save commands span
// lines up to the next blank line; everything else is a single line.
func readInput(s *bufio.Scanner) (string, bool) {
	if !s.Scan() {
		return "", false
	}
	first := s.Text()
	if !rblock.MatchString(first) {
		return first, true
	}
	lines := []string{first}
	for s.Scan() {
		line := s.Text()
		if strings.TrimSpace(line) == "" {
			break
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n") + "\n", true
}

func run(ctx context.Context, eng *engine.Engine, term *terminal, in io.Reader, interactive bool) bool {
	s := bufio.NewScanner(in)
	s.Buffer(make([]byte, 64*1024), 4*1024*1024)
	ok := true
	for {
		if interactive {
			term.prompt()
		}
		input, more := readInput(s)
		if !more {
			break
		}
		if t := strings.TrimSpace(input); t == "exit" || t == "quit" {
			break
		}
		res := eng.Handle(ctx, input)
		term.printLines(res)
		if !res.OK && strings.TrimSpace(input) != "" {
			ok = false
		}
		if ctx.Err() != nil {
			break
		}
	}
	eng.Wait()
	return ok
}

func main() {
	flag.Parse()
	logger = log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true, Prefix: "quickledger"})

	checkf(loadDotEnv(*envFile), "Unable to load %v", *envFile)
	checkf(os.MkdirAll(*configDir, 0o755), "Unable to create directory: %v", *configDir)
	c, err := readConfig(*configDir)
	checkf(err, "Unable to read config from %v", *configDir)
	checkf(applyConfig(flag.CommandLine, c), "Invalid config in %v", *configDir)

	level, err := log.ParseLevel(*logLevel)
	if err != nil {
		oerr(fmt.Sprintf("invalid -log-level %q", *logLevel))
		os.Exit(2)
	}
	logger.SetLevel(level)

	if len(*repo) == 0 {
		oerr("Please specify a repository with -repo")
		os.Exit(2)
	}
	base := *storePath
	if base == "" {
		base = path.Join(*configDir, "repos")
	}
	st, closeStore, err := openStore(*storeKind, base, *repo)
	if err != nil {
		oerr(err.Error())
		os.Exit(2)
	}
	defer func() {
		checkf(closeStore(), "Unable to close store")
	}()

	m := metrics.New(prometheus.NewRegistry())
	term := newTerminal(color.Output)
	cfg := engine.Config{
		RepoID:  *repo,
		Store:   st,
		Cache:   rules.NewCache(&rules.Loader{Logger: logger, Metrics: m}),
		Logger:  logger,
		Metrics: m,
		Sink:    term,
	}
	if *aiOn {
		claude, err := suggest.NewClaude(apiKey(c), *aiModel, logger)
		checkf(err, "Unable to set up AI suggestions")
		cfg.Advisor = claude
	}
	eng := engine.New(cfg)
	assertf(eng.Registry().Has("add"), "Expected the add command to be registered")
	logger.Debug("session started", "repo", *repo, "store", *storeKind, "base", base)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// One-shot: quickledger -repo me/ledger add coffee 10 @ Starbucks
	if args := flag.Args(); len(args) > 0 {
		res := eng.Handle(ctx, strings.Join(args, " "))
		term.printLines(res)
		eng.Wait()
		if !res.OK {
			closeStore()
			os.Exit(1)
		}
		return
	}

	fi, _ := os.Stdin.Stat()
	interactive := fi != nil && fi.Mode()&os.ModeCharDevice != 0
	if interactive {
		fmt.Printf("quickledger: repository %s. Type help for commands, exit to quit.\n", *repo)
		term.Status("Ready")
	}
	if !run(ctx, eng, term, os.Stdin, interactive) && !interactive {
		closeStore()
		os.Exit(1)
	}
}
