package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/poiesic/docrag"
	"github.com/poiesic/docrag/core"
	"github.com/poiesic/docrag/ingestion"
	"github.com/poiesic/docrag/reembed"
	"github.com/poiesic/docrag/tools/mcp"
	"github.com/urfave/cli/v2"
)

func indexCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return errors.New("at least one source is required")
	}
	sources := make([]core.Source, c.NArg())
	for i, ref := range c.Args().Slice() {
		src, err := core.ParseSource(ref)
		if err != nil {
			return err
		}
		sources[i] = src
	}
	if len(sources) > 1 && (c.IsSet("id") || c.IsSet("title")) {
		return errors.New("--id and --title apply to a single source")
	}

	var opts []docrag.IndexOption
	if c.IsSet("id") {
		opts = append(opts, docrag.WithDocumentID(c.String("id")))
	}
	if c.IsSet("title") {
		opts = append(opts, docrag.WithTitle(c.String("title")))
	}
	if c.IsSet("pages") {
		start, end, err := parsePages(c.String("pages"))
		if err != nil {
			return err
		}
		opts = append(opts, docrag.WithPageRange(start, end))
	}
	if c.IsSet("chunk-tokens") {
		opts = append(opts, docrag.WithChunkTokens(c.Int("chunk-tokens")))
	}

	lib, err := openLibrary(c, sources)
	if err != nil {
		return err
	}
	defer lib.Close()

	out := c.App.Writer
	if len(sources) == 1 {
		opts = append(opts, docrag.WithProgress(progressPrinter(c.App.ErrWriter)))
		id, err := lib.Index(c.Context, sources[0], opts...)
		if err != nil {
			return errors.New(core.Describe(err))
		}
		fmt.Fprintln(out, id)
		return nil
	}

	results, err := lib.IndexAll(c.Context, sources, opts...)
	if err != nil {
		return err
	}
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Fprintf(c.App.ErrWriter, "%s: %s\n", r.Source, core.Describe(r.Err))
			continue
		}
		fmt.Fprintln(out, r.ID)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d sources failed", failed, len(results))
	}
	return nil
}

// parsePages parses "N" or "N-M".
func parsePages(s string) (int, int, error) {
	first, last, found := strings.Cut(s, "-")
	start, err := strconv.Atoi(strings.TrimSpace(first))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid page range %q", s)
	}
	if !found {
		return start, start, nil
	}
	end, err := strconv.Atoi(strings.TrimSpace(last))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid page range %q", s)
	}
	return start, end, nil
}

func progressPrinter(w io.Writer) ingestion.ProgressFunc {
	return func(p ingestion.Progress) error {
		_, err := fmt.Fprintf(w, "\r%-10s %3.0f%% %s\033[K", p.State, p.Fraction*100, p.Message)
		if p.State == core.StateReady || p.State == core.StateFailed {
			fmt.Fprintln(w)
		}
		return err
	}
}

func listCommand(c *cli.Context) error {
	lib, err := openLibrary(c, nil)
	if err != nil {
		return err
	}
	defer lib.Close()

	docs, err := lib.List(c.Context)
	if err != nil {
		return err
	}
	if c.Bool("json") {
		return writeJSON(c.App.Writer, docs)
	}

	tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tPAGES\tCHUNKS\tMODEL\tINDEXED")
	for _, d := range docs {
		fmt.Fprintf(tw, "%s\t%s\t%d/%d\t%d\t%s\t%s\n", d.ID, d.Title, d.PagesProcessed, d.PageCount,
			d.ChunkCount, d.EmbeddingModel, d.ProcessedAt.Local().Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

func loadCommand(c *cli.Context) error {
	id, err := singleArg(c, "document id")
	if err != nil {
		return err
	}
	lib, err := openLibrary(c, nil)
	if err != nil {
		return err
	}
	defer lib.Close()

	if _, err := lib.Load(c.Context, id); err != nil {
		return errors.New(core.Describe(err))
	}
	fmt.Fprintf(c.App.Writer, "%s loaded\n", id)
	return nil
}

func searchCommand(c *cli.Context) error {
	if c.NArg() < 2 {
		return errors.New("document id and query are required")
	}
	id := c.Args().First()
	query := strings.Join(c.Args().Tail(), " ")

	lib, err := openLibrary(c, nil)
	if err != nil {
		return err
	}
	defer lib.Close()

	resp := lib.Search(c.Context, id, query, c.Int("top-k"))
	if c.Bool("json") {
		return writeJSON(c.App.Writer, resp)
	}
	if resp.Error != "" {
		return errors.New(resp.Error)
	}
	fmt.Fprintf(c.App.Writer, "Found %d of %d chunks\n", len(resp.Results), resp.TotalChunks)
	for i, r := range resp.Results {
		pages := make([]string, len(r.PageReferences))
		for j, p := range r.PageReferences {
			pages[j] = strconv.Itoa(p)
		}
		fmt.Fprintf(c.App.Writer, "\n%d. [%0.3f] chunk %d, page %s\n%s\n", i+1, r.Similarity, r.ChunkIndex,
			strings.Join(pages, ","), r.Text)
	}
	return nil
}

func textCommand(c *cli.Context) error {
	id, err := singleArg(c, "document id")
	if err != nil {
		return err
	}
	lib, err := openLibrary(c, nil)
	if err != nil {
		return err
	}
	defer lib.Close()

	resp := lib.FullText(c.Context, id, c.Bool("markers"))
	if resp.Error != "" {
		return errors.New(resp.Error)
	}
	fmt.Fprintln(c.App.Writer, resp.FullText)
	return nil
}

func deleteCommand(c *cli.Context) error {
	id, err := singleArg(c, "document id")
	if err != nil {
		return err
	}
	lib, err := openLibrary(c, nil)
	if err != nil {
		return err
	}
	defer lib.Close()

	if err := lib.Delete(c.Context, id); err != nil {
		return errors.New(core.Describe(err))
	}
	fmt.Fprintf(c.App.Writer, "%s deleted\n", id)
	return nil
}

func statsCommand(c *cli.Context) error {
	lib, err := openLibrary(c, nil)
	if err != nil {
		return err
	}
	defer lib.Close()

	stats, err := lib.StorageStats(c.Context)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "ID\tCHUNKS\tTEXT\tPAGES\tEMBEDDINGS\tCHUNK DATA\tTOTAL\t")
	for _, d := range stats.Documents {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%d\t\n", d.DocumentID, d.ChunkCount, d.TextBytes,
			d.PageBytes, d.EmbeddingBytes, d.ChunkBytes, d.TotalBytes())
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Total: %d bytes (%.2f MB)\n", stats.TotalBytes, stats.TotalMB())
	return nil
}

func reembedCommand(c *cli.Context) error {
	cfg := &reembed.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
		Concurrency:    loadedConfig(c).Ingestion.Concurrency,
		All:            c.Bool("all"),
		SkipLocal:      c.Bool("skip-local"),
	}

	// Validate config
	if cfg.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if cfg.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if cfg.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	lib, err := openLibrary(c, nil)
	if err != nil {
		return err
	}
	defer lib.Close()

	summary, err := lib.Reembed(c.Context, cfg, c.App.ErrWriter)
	if err != nil {
		return fmt.Errorf("reembedding failed: %w", err)
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d chunks could not be reembedded", summary.Failed)
	}
	return nil
}

func serveCommand(c *cli.Context) error {
	registry := mcp.NewRegistry(c.App.Name)
	lib, err := openLibrary(c, nil, docrag.WithRegistry(registry))
	if err != nil {
		return err
	}
	defer lib.Close()

	ids, err := lib.LoadAll(c.Context)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.ErrWriter, "Serving %d documents, %d tools\n", len(ids), len(registry.Names()))
	return registry.Run(c.Context)
}

func singleArg(c *cli.Context, name string) (string, error) {
	if c.NArg() != 1 {
		return "", fmt.Errorf("exactly one %s is required", name)
	}
	return c.Args().First(), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
