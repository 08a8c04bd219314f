package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"

	"gpbreed/internal/build"
	"gpbreed/internal/storage"
	gpapi "gpbreed/pkg/gpbreed"
)

const defaultDBPath = "gpbreed.db"

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var stdout io.Writer = os.Stdout

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "build":
		return runBuild(ctx, args[1:])
	case "counts":
		return runCounts(ctx, args[1:])
	case "breed":
		return runBreed(ctx, args[1:])
	case "dyck":
		return runDyck(args[1:])
	case "functionsets":
		return runFunctionSets(args[1:])
	case "population":
		return runPopulation(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

type storeFlags struct {
	kind     *string
	dbPath   *string
	logLevel *string
}

func addStoreFlags(fs *flag.FlagSet) storeFlags {
	return storeFlags{
		kind:     fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite"),
		dbPath:   fs.String("db-path", defaultDBPath, "sqlite database path"),
		logLevel: fs.String("log-level", "warn", "diagnostic level: debug|info|warn|error|off"),
	}
}

func (f storeFlags) client() (*gpapi.Client, error) {
	opts := gpapi.Options{StoreKind: *f.kind, DBPath: *f.dbPath}
	if *f.logLevel != "off" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(*f.logLevel)); err != nil {
			return nil, fmt.Errorf("invalid log level %q", *f.logLevel)
		}
		opts.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}
	return gpapi.New(opts)
}

// paramFlag collects repeated key=value flags.
type paramFlag map[string]string

func (p paramFlag) String() string {
	parts := make([]string, 0, len(p))
	for k, v := range p {
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, ",")
}

func (p paramFlag) Set(s string) error {
	k, v, ok := strings.Cut(s, "=")
	if !ok || strings.TrimSpace(k) == "" {
		return fmt.Errorf("expected key=value, got %q", s)
	}
	p[strings.TrimSpace(k)] = v
	return nil
}

func runBuild(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("build", flag.ContinueOnError)
	sf := addStoreFlags(fs)
	set := fs.String("set", "koza", "function set name")
	builder := fs.String("builder", "ptc2", "builder: "+strings.Join(build.Kinds(), "|"))
	typ := fs.String("type", "", "root type name (default: first type of the set)")
	count := fs.Int("count", 1, "number of trees")
	seed := fs.Int64("seed", 1, "random seed")
	size := fs.Int("size", 0, "requested tree size (0 lets the builder choose)")
	extra := paramFlag{}
	fs.Var(extra, "param", "builder parameter key=value, repeatable")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := sf.client()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	trees, err := client.Build(ctx, gpapi.BuildRequest{
		FunctionSet: *set,
		Builder:     *builder,
		Type:        *typ,
		Count:       *count,
		Seed:        *seed,
		Size:        *size,
		Params:      extra,
	})
	if err != nil {
		return err
	}
	for _, t := range trees {
		fmt.Fprintf(stdout, "size=%d depth=%d %s\n", t.Size, t.Depth, t.Tree)
	}
	return nil
}

func runCounts(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("counts", flag.ContinueOnError)
	sf := addStoreFlags(fs)
	set := fs.String("set", "koza", "function set name")
	maxSize := fs.Int("max-size", 10, "largest tree size to count")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := sf.client()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Counts(ctx, gpapi.CountsRequest{FunctionSet: *set, MaxSize: *maxSize})
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "function_set=%s max_size=%d key=%s\n", summary.FunctionSet, summary.MaxSize, summary.Key)
	types := make([]string, 0, len(summary.Counts))
	for name := range summary.Counts {
		types = append(types, name)
	}
	sort.Strings(types)
	for _, name := range types {
		row := summary.Counts[name]
		for size := 1; size < len(row); size++ {
			fmt.Fprintf(stdout, "type=%s size=%d count=%s\n", name, size, row[size])
		}
	}
	return nil
}

func runBreed(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("breed", flag.ContinueOnError)
	sf := addStoreFlags(fs)
	file := fs.String("params", "", "parameter file (.params, .yaml or .toml)")
	base := fs.String("base", "run", "parameter base of the run")
	extra := paramFlag{}
	fs.Var(extra, "set", "parameter override key=value, repeatable")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" && len(extra) == 0 {
		return errors.New("breed requires --params or --set")
	}

	client, err := sf.client()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Breed(ctx, gpapi.BreedRequest{ParamsFile: *file, Params: extra, Base: *base})
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "run_id=%s generations=%d\n", summary.RunID, len(summary.Stats)-1)
	for _, st := range summary.Stats {
		fmt.Fprintf(stdout, "generation=%d individuals=%d mean_size=%.3f stddev_size=%.3f max_size=%d mean_depth=%.3f max_depth=%d\n",
			st.Generation, st.Individuals, st.MeanSize, st.StdDevSize, st.MaxSize, st.MeanDepth, st.MaxDepth)
	}
	return nil
}

func runDyck(args []string) error {
	fs := flag.NewFlagSet("dyck", flag.ContinueOnError)
	arities := fs.String("arities", "", "comma separated postfix arity sequence")
	word := fs.String("word", "", "word over x and y to check")
	if err := fs.Parse(args); err != nil {
		return err
	}
	switch {
	case *arities != "" && *word != "":
		return errors.New("dyck takes --arities or --word, not both")
	case *arities != "":
		seq, err := parseInts(*arities)
		if err != nil {
			return err
		}
		w := build.DyckWord(seq)
		fmt.Fprintf(stdout, "word=%s valid=%t\n", w, build.CheckDyckWord(w))
	case *word != "":
		fmt.Fprintf(stdout, "word=%s valid=%t\n", *word, build.CheckDyckWord(*word))
	default:
		return errors.New("dyck requires --arities or --word")
	}
	return nil
}

func runFunctionSets(args []string) error {
	fs := flag.NewFlagSet("functionsets", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	client, err := gpapi.New(gpapi.Options{StoreKind: "memory"})
	if err != nil {
		return err
	}
	for _, name := range client.FunctionSets() {
		fmt.Fprintln(stdout, name)
	}
	return nil
}

func runPopulation(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("population requires a subcommand: list|show|stats")
	}
	fs := flag.NewFlagSet("population "+args[0], flag.ContinueOnError)
	sf := addStoreFlags(fs)
	runID := fs.String("run-id", "", "run id")
	id := fs.String("id", "", "snapshot id")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	client, err := sf.client()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	switch args[0] {
	case "list":
		if *runID == "" {
			return errors.New("population list requires --run-id")
		}
		snaps, err := client.Snapshots(ctx, *runID)
		if err != nil {
			return err
		}
		for _, s := range snaps {
			size := 0
			for _, sub := range s.Subpops {
				size += len(sub)
			}
			fmt.Fprintf(stdout, "id=%s generation=%d individuals=%d\n", s.ID, s.Generation, size)
		}
		return nil
	case "show":
		if *id == "" {
			return errors.New("population show requires --id")
		}
		rec, err := client.Population(ctx, *id)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	case "stats":
		if *runID == "" {
			return errors.New("population stats requires --run-id")
		}
		stats, err := client.Stats(ctx, *runID)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	default:
		return fmt.Errorf("unsupported population subcommand: %s", args[0])
	}
}

func parseInts(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid arity %q", p)
		}
		out = append(out, n)
	}
	return out, nil
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: gpbreedctl <build|counts|breed|dyck|functionsets|population> [flags]", msg)
}
