package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"gallery-feed/internal/domain/entity"
	"gallery-feed/internal/resilience/circuitbreaker"
	"gallery-feed/internal/usecase/feed"
	"gallery-feed/internal/usecase/upload"

	"github.com/robfig/cron/v3"
)

// RecordOutput is the JSON form of a record.
type RecordOutput struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	URL         string    `json:"url"`
	CreatedAt   time.Time `json:"created_at"`
}

// ListOutput is the JSON output of the list command.
type ListOutput struct {
	Records []RecordOutput `json:"records"`
	HasMore bool           `json:"has_more"`
	Cursor  *int64         `json:"cursor,omitempty"`
}

func newFlagSet(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}

// list prints up to -pages pages of the feed. Pages are fetched one after the
// other, since each page's cursor comes from the previous one.
func (a *app) list(ctx context.Context, args []string) error {
	fs := newFlagSet("list", a.out)
	pages := fs.Int("pages", 1, "number of pages to fetch")
	output := fs.String("output", "text", "output format: text or json")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *pages < 1 {
		return usageError{msg: "-pages must be at least 1"}
	}

	if err := a.loadPages(ctx, *pages); err != nil {
		return err
	}
	return a.printFeed(*output)
}

// upload hosts a local image, registers it and prints the refreshed first page.
func (a *app) upload(ctx context.Context, args []string) error {
	fs := newFlagSet("upload", a.out)
	path := fs.String("file", "", "image file to upload")
	title := fs.String("title", "", "record title (2 to 20 characters)")
	description := fs.String("description", "", "record description (up to 20 characters)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *path == "" {
		return usageError{msg: "-file is required"}
	}

	ferrs, err := a.selectFile(ctx, *path)
	if err != nil {
		return err
	}
	if len(ferrs) > 0 {
		a.printOutcome(upload.Outcome{Kind: upload.ValidationFailed, FieldErrors: ferrs})
		return ferrs
	}
	req := a.pipeline.Request(*title, *description)

	out := a.pipeline.Submit(ctx, req)
	a.printOutcome(out)
	if !out.OK() {
		if out.Err != nil {
			return out.Err
		}
		return out.FieldErrors
	}

	// The cache was invalidated by the submission; the next read starts over.
	if err := a.loadPages(ctx, 1); err != nil {
		return err
	}
	return a.printFeed("text")
}

// watch refreshes the first page of the feed on a cron schedule until interrupted.
func (a *app) watch(ctx context.Context, args []string) error {
	fs := newFlagSet("watch", a.out)
	schedule := fs.String("schedule", a.cfg.RefreshSchedule, "cron expression or @every duration")
	if err := fs.Parse(args); err != nil {
		return err
	}

	unsubscribe := a.cache.Subscribe(func(ev feed.Event) {
		a.logger.Debug("feed status changed",
			slog.String("from", ev.From.String()),
			slog.String("to", ev.To.String()),
			slog.Int("pages", ev.Pages))
	})
	defer unsubscribe()

	refresh := func() {
		a.cache.Invalidate()
		if _, err := a.cache.FetchNext(ctx); err != nil {
			if !errors.Is(err, feed.ErrDiscarded) && !errors.Is(err, feed.ErrFetchInFlight) {
				a.logger.Error("feed refresh failed", slog.Any("error", err))
			}
			return
		}
		records := a.cache.Flatten()
		latest := ""
		if len(records) > 0 {
			latest = records[0].Title
		}
		a.logger.Info("feed refreshed",
			slog.Int("records", len(records)),
			slog.Bool("has_more", a.cache.HasMore()),
			slog.String("latest", latest))
	}

	c := cron.New()
	if _, err := c.AddFunc(*schedule, refresh); err != nil {
		return usageError{msg: fmt.Sprintf("invalid schedule %q: %v", *schedule, err)}
	}

	refresh()
	c.Start()
	a.logger.Info("watch started", slog.String("schedule", *schedule))

	<-ctx.Done()
	<-c.Stop().Done()
	a.logger.Info("watch stopped")
	return nil
}

// view walks the feed until the record with the given ID is found and prints it.
func (a *app) view(ctx context.Context, args []string) error {
	fs := newFlagSet("view", a.out)
	output := fs.String("output", "text", "output format: text or json")
	maxPages := fs.Int("max-pages", 20, "stop searching after this many pages")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return usageError{msg: "view takes exactly one record ID"}
	}
	if !a.selection.Select(fs.Arg(0)) {
		return usageError{msg: "record ID must not be empty"}
	}
	defer a.selection.Clear()

	for i := 0; i < *maxPages; i++ {
		if rec, ok := a.selection.Resolve(a.cache.Flatten()); ok {
			return a.printRecord(rec, *output)
		}
		if a.cache.Exhausted() {
			break
		}
		if _, err := a.cache.FetchNext(ctx); err != nil {
			return err
		}
	}
	if rec, ok := a.selection.Resolve(a.cache.Flatten()); ok {
		return a.printRecord(rec, *output)
	}
	id, _ := a.selection.Selected()
	return fmt.Errorf("record %q not found", id)
}

// loadPages fetches until n pages are held or the feed is exhausted.
func (a *app) loadPages(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		if a.cache.Exhausted() {
			return nil
		}
		if _, err := a.cache.FetchNext(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) selectFile(ctx context.Context, path string) (entity.FieldErrors, error) {
	// #nosec G304 -- path is provided by the user running the command
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat image: %w", err)
	}

	file := entity.FileInfo{
		Name:     filepath.Base(path),
		Size:     info.Size(),
		MimeType: mimeFromName(path),
	}
	if file.MimeType == "" {
		head := make([]byte, 512)
		n, _ := io.ReadFull(f, head)
		file.MimeType = http.DetectContentType(head[:n])
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("rewind image: %w", err)
		}
	}

	url, ferrs, err := a.pipeline.SelectFile(ctx, file, f)
	if err != nil || len(ferrs) > 0 {
		return ferrs, err
	}
	fmt.Fprintf(a.out, "Uploaded %s -> %s\n", file.Name, url)
	return nil, nil
}

func mimeFromName(name string) string {
	t := mime.TypeByExtension(filepath.Ext(name))
	if mt, _, err := mime.ParseMediaType(t); err == nil {
		return mt
	}
	return ""
}

func (a *app) printOutcome(out upload.Outcome) {
	msg := out.Message()
	fmt.Fprintf(a.out, "%s: %s\n", msg.Title, msg.Description)
	for _, fe := range out.FieldErrors {
		fmt.Fprintf(a.out, "  %s: %s\n", fe.Field, fe.Message)
	}
	if out.Kind == upload.NetworkError && circuitbreaker.IsOpenError(out.Err) {
		fmt.Fprintln(a.out, "  The gallery API is failing; requests are paused for a while.")
	}
}

func (a *app) printFeed(format string) error {
	snap := a.cache.Snapshot()
	records := snap.Flatten()

	if dups := snap.DuplicateIDs(); len(dups) > 0 {
		a.logger.Warn("feed pages overlap", slog.Any("ids", dups))
	}

	if format == "json" {
		out := ListOutput{
			Records: make([]RecordOutput, 0, len(records)),
			HasMore: snap.HasMore(),
			Cursor:  a.cache.Cursor(),
		}
		for _, r := range records {
			out.Records = append(out.Records, toOutput(r))
		}
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	for _, r := range records {
		fmt.Fprintf(a.out, "%-24s  %-20s  %s\n", r.ID, r.Title, r.URL)
	}
	if snap.HasMore() {
		fmt.Fprintf(a.out, "(more available after %s)\n", entity.CursorKey(a.cache.Cursor()))
	}
	return nil
}

func (a *app) printRecord(r entity.Record, format string) error {
	if format == "json" {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(toOutput(r))
	}
	fmt.Fprintf(a.out, "ID:          %s\nTitle:       %s\nDescription: %s\nURL:         %s\nCreated:     %s\n",
		r.ID, r.Title, r.Description, r.URL, createdAt(r).Format(time.RFC3339))
	return nil
}

func toOutput(r entity.Record) RecordOutput {
	return RecordOutput{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		URL:         r.URL,
		CreatedAt:   createdAt(r),
	}
}

// createdAt interprets the record timestamp. The gallery API reports
// microseconds since the epoch.
func createdAt(r entity.Record) time.Time {
	return time.UnixMicro(r.Timestamp).UTC()
}
