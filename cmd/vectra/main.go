// Package main is the vectra CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/vectra/internal/cli"
	"github.com/hyperjump/vectra/internal/config"
	"github.com/hyperjump/vectra/internal/models"
	"github.com/hyperjump/vectra/internal/storage"
	"github.com/hyperjump/vectra/internal/watcher"
	"github.com/hyperjump/vectra/pkg/index"
	"github.com/hyperjump/vectra/pkg/metadata"
	"github.com/hyperjump/vectra/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/vectra/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stdout)
		os.Exit(1)
	}
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		printUsage(stdout)
		return errors.New("no command given")
	}
	command, rest := args[0], args[1:]
	switch command {
	case "create":
		return runCreate(rest, stdout)
	case "delete":
		return runDelete(rest, stdout)
	case "add":
		return runAdd(rest, stdout)
	case "query":
		return runQuery(rest, stdout)
	case "list":
		return runList(rest, stdout)
	case "stats":
		return runStats(rest, stdout)
	case "ingest":
		return runIngest(rest, stdout, stderr)
	case "watch":
		return runWatch(rest, stdout, stderr)
	case "metrics":
		return runMetrics(rest, stdout)
	case "version", "--version", "-v":
		fmt.Fprintf(stdout, "vectra version %s\n", version)
		return nil
	case "help", "--help", "-h":
		printUsage(stdout)
		return nil
	default:
		printUsage(stdout)
		return fmt.Errorf("unknown command: %s", command)
	}
}

// commonFlags are accepted by every command that opens the index.
type commonFlags struct {
	configPath *string
	debug      *bool
}

func newFlagSet(name string) (*flag.FlagSet, *commonFlags) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	cf := &commonFlags{
		configPath: fs.String("config", defaultConfigPath, "config file path"),
		debug:      fs.Bool("debug", false, "enable debug logging (commits, queries, file events)"),
	}
	return fs, cf
}

// open loads the config, applies adjust (may be nil) and wires the components.
func (cf *commonFlags) open(adjust func(*config.Config)) (*Components, error) {
	cfg, resolved, err := loadConfig(*cf.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if adjust != nil {
		adjust(cfg)
	}
	debugMode := cfg.Debug || *cf.debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger.Debug("config loaded",
		zap.String("config_path", resolved),
		zap.Bool("debug", debugMode),
	)
	c, err := initializeComponents(cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return c, nil
}

// argsReorder moves flags given after positional arguments to the front, so that
// "vectra query some text --top-k 3" parses --top-k.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func runCreate(args []string, stdout io.Writer) error {
	fs, cf := newFlagSet("create")
	deleteIfExists := fs.Bool("delete-if-exists", false, "replace an existing index and empty the catalog")
	indexed := fs.String("indexed", "", "comma-separated metadata fields kept inline (default from config)")
	ver := fs.Int("version", 0, "index version (default from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	c, err := cf.open(nil)
	if err != nil {
		return err
	}
	defer c.Close()

	cfg := c.createConfig()
	if *indexed != "" {
		cfg.MetadataConfig.Indexed = splitList(*indexed)
	}
	if *ver > 0 {
		cfg.Version = *ver
	}
	ctx := context.Background()
	if *deleteIfExists {
		err = c.Indexer.Reset(ctx, cfg)
	} else {
		err = c.Index.CreateIndex(ctx, cfg)
	}
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	fmt.Fprintf(stdout, "Index created: %s\n", c.Index.Folder())
	return nil
}

func runDelete(args []string, stdout io.Writer) error {
	fs, cf := newFlagSet("delete")
	wholeIndex := fs.Bool("index", false, "delete the whole index and empty the catalog")
	items := fs.Bool("item", false, "arguments are raw item ids instead of documents")
	if err := fs.Parse(argsReorder(args)); err != nil {
		return err
	}
	if !*wholeIndex && fs.NArg() == 0 {
		return errors.New("usage: vectra delete [--index] [--item] <document-id|path>...")
	}

	c, err := cf.open(nil)
	if err != nil {
		return err
	}
	defer c.Close()
	ctx := context.Background()

	if *wholeIndex {
		if err := c.Indexer.Drop(ctx); err != nil {
			return fmt.Errorf("delete index: %w", err)
		}
		fmt.Fprintf(stdout, "Index deleted: %s\n", c.Index.Folder())
		return nil
	}

	if *items {
		if err := deleteItems(ctx, c.Index, fs.Args()); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Deleted %d item(s)\n", fs.NArg())
		return nil
	}

	for _, arg := range fs.Args() {
		if info, statErr := os.Stat(arg); statErr == nil && !info.IsDir() {
			err = c.Indexer.DeleteFile(ctx, arg)
		} else {
			err = c.Indexer.DeleteDocument(ctx, arg)
		}
		if err != nil {
			return fmt.Errorf("delete %s: %w", arg, err)
		}
		fmt.Fprintf(stdout, "Document deleted: %s\n", arg)
	}
	return nil
}

// deleteItems removes ids in one update so the index document is written once.
func deleteItems(ctx context.Context, li *index.LocalIndex, ids []string) error {
	if err := li.BeginUpdate(ctx); err != nil {
		return err
	}
	for _, id := range ids {
		if err := li.DeleteItem(ctx, id); err != nil {
			_ = li.CancelUpdate()
			return fmt.Errorf("delete item %s: %w", id, err)
		}
	}
	return li.EndUpdate(ctx)
}

func runAdd(args []string, stdout io.Writer) error {
	fs, cf := newFlagSet("add")
	id := fs.String("id", "", "item or document id (generated when empty)")
	vectorFlag := fs.String("vector", "", "raw item vector: JSON array or comma-separated numbers")
	metadataFlag := fs.String("metadata", "", "metadata as a JSON object of scalars")
	upsert := fs.Bool("upsert", false, "replace an existing item with the same id")
	text := fs.String("text", "", "document text to split, embed and index")
	uri := fs.String("uri", "", "document source URI")
	docType := fs.String("doc-type", "", "document type selecting the split separators (md, go, py, ...)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if (*vectorFlag == "") == (*text == "") {
		return errors.New("usage: vectra add (--vector V | --text T) [--id ID] [--metadata JSON]")
	}
	md, err := parseMetadata(*metadataFlag)
	if err != nil {
		return err
	}

	c, err := cf.open(nil)
	if err != nil {
		return err
	}
	defer c.Close()
	ctx := context.Background()
	if err := c.ensureIndex(ctx); err != nil {
		return err
	}

	if *text != "" {
		doc, err := c.Indexer.IndexDocument(ctx, &models.DocumentInput{
			ID:       *id,
			URI:      *uri,
			DocType:  *docType,
			Text:     *text,
			Metadata: md,
		})
		if err != nil {
			return fmt.Errorf("index document: %w", err)
		}
		fmt.Fprintf(stdout, "Document indexed: %s\n", doc.ID)
		return nil
	}

	vec, err := parseVector(*vectorFlag)
	if err != nil {
		return err
	}
	in := index.ItemInput{ID: *id, Metadata: md, Vector: vec}
	var item *index.Item
	if *upsert {
		item, err = c.Index.UpsertItem(ctx, in)
	} else {
		item, err = c.Index.InsertItem(ctx, in)
	}
	if err != nil {
		return fmt.Errorf("add item: %w", err)
	}
	fmt.Fprintf(stdout, "Item added: %s\n", item.ID)
	return nil
}

func runQuery(args []string, stdout io.Writer) error {
	fs, cf := newFlagSet("query")
	topK := fs.Int("top-k", models.DefaultTopK, "number of results")
	filterFlag := fs.String("filter", "", `metadata filter as JSON, e.g. {"lang":{"$eq":"go"}}`)
	vectorFlag := fs.String("vector", "", "query with a raw vector instead of text")
	output := fs.String("output", "text", "output format: text or json")
	if err := fs.Parse(argsReorder(args)); err != nil {
		return err
	}
	format, err := cli.ParseFormat(*output)
	if err != nil {
		return err
	}
	filter, err := parseFilter(*filterFlag)
	if err != nil {
		return err
	}
	queryText := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if queryText == "" && *vectorFlag == "" {
		return errors.New("usage: vectra query [flags] <text> | vectra query --vector V [flags]")
	}

	c, err := cf.open(nil)
	if err != nil {
		return err
	}
	defer c.Close()
	ctx := context.Background()

	if *vectorFlag != "" {
		vec, err := parseVector(*vectorFlag)
		if err != nil {
			return err
		}
		results, err := c.Index.QueryItems(ctx, vec, *topK, filter)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		return cli.WriteItemResults(stdout, results, format)
	}

	start := time.Now()
	results, err := c.Indexer.QueryDocuments(ctx, &models.QueryRequest{Text: queryText, TopK: *topK, Filter: filter})
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	return cli.WriteQueryResults(stdout, queryText, time.Since(start), results, format)
}

func runList(args []string, stdout io.Writer) error {
	fs, cf := newFlagSet("list")
	filterFlag := fs.String("filter", "", "metadata filter as JSON")
	documents := fs.Bool("documents", false, "list catalog documents instead of index items")
	offset := fs.Int("offset", 0, "documents to skip (with --documents)")
	limit := fs.Int("limit", 100, "maximum documents (with --documents)")
	output := fs.String("output", "text", "output format: text or json")
	if err := fs.Parse(args); err != nil {
		return err
	}
	format, err := cli.ParseFormat(*output)
	if err != nil {
		return err
	}
	filter, err := parseFilter(*filterFlag)
	if err != nil {
		return err
	}

	c, err := cf.open(nil)
	if err != nil {
		return err
	}
	defer c.Close()
	ctx := context.Background()

	if *documents {
		docs, err := c.Catalog.ListDocuments(ctx, *offset, *limit)
		if err != nil {
			return fmt.Errorf("list documents: %w", err)
		}
		return cli.WriteDocuments(stdout, docs, format)
	}

	var items []*index.Item
	if filter != nil {
		items, err = c.Index.ListItemsByMetadata(ctx, filter)
	} else {
		items, err = c.Index.ListItems(ctx)
	}
	if err != nil {
		return fmt.Errorf("list items: %w", err)
	}
	return cli.WriteItems(stdout, items, format)
}

func runStats(args []string, stdout io.Writer) error {
	fs, cf := newFlagSet("stats")
	output := fs.String("output", "text", "output format: text or json")
	if err := fs.Parse(args); err != nil {
		return err
	}
	format, err := cli.ParseFormat(*output)
	if err != nil {
		return err
	}

	c, err := cf.open(nil)
	if err != nil {
		return err
	}
	defer c.Close()

	stats, err := c.Indexer.Stats(context.Background())
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}
	disk, err := storage.DiskUsageBytes(c.Index.Folder(), c.Config.Storage.CatalogPath)
	if err != nil {
		c.Logger.Warn("disk usage unavailable", zap.Error(err))
	}
	return cli.WriteStats(stdout, &cli.StatsOutput{Stats: stats, Folder: c.Index.Folder(), DiskBytes: disk}, format)
}

func runIngest(args []string, stdout, stderr io.Writer) error {
	fs, cf := newFlagSet("ingest")
	exts := fs.String("ext", "", "comma-separated file extensions (default from config watch.extensions)")
	recursive := fs.Bool("recursive", true, "descend into subdirectories")
	if err := fs.Parse(argsReorder(args)); err != nil {
		return err
	}

	c, err := cf.open(nil)
	if err != nil {
		return err
	}
	defer c.Close()

	paths := fs.Args()
	if len(paths) == 0 {
		paths = c.Config.Watch.Directories
	}
	if len(paths) == 0 {
		return errors.New("usage: vectra ingest [flags] <file-or-directory>...")
	}
	allowed := c.Config.Watch.Extensions
	if *exts != "" {
		allowed = splitList(*exts)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := c.ensureIndex(ctx); err != nil {
		return err
	}

	var total struct{ indexed, skipped int }
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return fmt.Errorf("failed to stat path: %w", err)
		}
		if info.IsDir() {
			st, err := c.Indexer.IndexDirectory(ctx, p, allowed, *recursive)
			total.indexed += st.Indexed
			total.skipped += st.Skipped
			if err != nil {
				return fmt.Errorf("indexing directory failed: %w", err)
			}
			continue
		}
		// An explicitly named file is indexed whatever its extension.
		skipped, err := c.Indexer.IndexFile(ctx, p, nil)
		if err != nil {
			return fmt.Errorf("indexing %s failed: %w", p, err)
		}
		if skipped {
			total.skipped++
		} else {
			total.indexed++
		}
	}
	fmt.Fprintf(stdout, "Indexed %d file(s), %d unchanged\n", total.indexed, total.skipped)
	return c.writeMetrics(stderr)
}

func runWatch(args []string, stdout, stderr io.Writer) error {
	fs, cf := newFlagSet("watch")
	exts := fs.String("ext", "", "comma-separated file extensions (default from config watch.extensions)")
	debounce := fs.Duration("debounce", 0, "quiet period before a changed file is re-indexed (default 400ms)")
	if err := fs.Parse(argsReorder(args)); err != nil {
		return err
	}

	c, err := cf.open(nil)
	if err != nil {
		return err
	}
	defer c.Close()

	dirs := fs.Args()
	if len(dirs) == 0 {
		dirs = c.Config.Watch.Directories
	}
	if len(dirs) == 0 {
		return errors.New("usage: vectra watch [flags] <directory>... (or set watch.directories)")
	}
	allowed := c.Config.Watch.Extensions
	if *exts != "" {
		allowed = splitList(*exts)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := c.ensureIndex(ctx); err != nil {
		return err
	}

	w := watcher.NewWatcher(dirs, allowed, c.Config.Watch.RecursiveOrDefault(), c.Indexer,
		watcher.WithLogger(c.Logger),
		watcher.WithDebounce(*debounce),
	)
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	w.SyncExistingFiles()
	fmt.Fprintf(stdout, "Watching %s (Ctrl-C to stop)\n", strings.Join(w.Directories(), ", "))

	<-ctx.Done()
	c.Logger.Info("shutting down watcher")
	w.Stop()
	return c.writeMetrics(stderr)
}

func runMetrics(args []string, stdout io.Writer) error {
	fs, cf := newFlagSet("metrics")
	if err := fs.Parse(args); err != nil {
		return err
	}
	c, err := cf.open(func(cfg *config.Config) { cfg.Metrics.Enabled = true })
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Index.Load(context.Background()); err != nil && !errors.Is(err, index.ErrNotFound) {
		return err
	}
	return c.writeMetrics(stdout)
}

// parseVector accepts a JSON array ("[0.1, 0.2]") or comma-separated numbers.
func parseVector(s string) ([]float64, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") {
		var v []float64
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			return nil, fmt.Errorf("invalid vector: %w", err)
		}
		return v, nil
	}
	var v []float64
	for _, part := range splitList(s) {
		f, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid vector component %q: %w", part, err)
		}
		v = append(v, f)
	}
	return v, nil
}

func parseMetadata(s string) (metadata.Metadata, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var md metadata.Metadata
	if err := json.Unmarshal([]byte(s), &md); err != nil {
		return nil, fmt.Errorf("invalid metadata: %w", err)
	}
	return md, nil
}

func parseFilter(s string) (*metadata.Filter, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	f, err := metadata.ParseFilter([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("invalid filter: %w", err)
	}
	return f, nil
}

// splitList splits a comma-separated flag value, dropping empty entries.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `vectra - Embedded file-backed vector index

Usage:
  vectra create [flags]                 Create the index
  vectra delete [flags] <id|path>...    Delete documents, raw items (--item) or the index (--index)
  vectra add [flags]                    Add a raw item (--vector) or a text document (--text)
  vectra query [flags] <text>           Query documents by text, or raw items with --vector
  vectra list [flags]                   List index items, or catalog documents with --documents
  vectra stats [flags]                  Show index and catalog statistics
  vectra ingest [flags] <path>...       Index files and directories
  vectra watch [flags] <dir>...         Keep the index in sync with directories
  vectra metrics [flags]                Print Prometheus metrics for the index
  vectra version                        Show version
  vectra help                           Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/vectra/config.yaml, or ./config.yaml)
  --debug            Enable debug logging

Examples:
  vectra create --indexed documentId,lang
  vectra add --id a --vector "[0.1, 0.9]" --metadata '{"lang":"go"}'
  vectra add --id notes --text "Vectors live in a single JSON document."
  vectra query --top-k 3 --filter '{"lang":"go"}' "how are commits written"
  vectra query --output json "machine learning"
  vectra ingest --ext .md,.txt ./docs
  vectra watch ./docs
  vectra delete ./docs/old.md`)
}
