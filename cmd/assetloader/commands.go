package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/beevik/etree"
	"github.com/dustin/go-humanize"
	"golang.org/x/net/html"

	"github.com/inkpress/assetloader/internal/domain"
	"github.com/inkpress/assetloader/internal/service/fetcher"
)

func (a *app) runFetch(cmd *FetchCmd) error {
	headers, err := parseHeaders(cmd.Headers)
	if err != nil {
		return err
	}

	if !cmd.Quiet {
		unsubscribe := a.progress.Subscribe(func(p domain.LoadProgress) {
			fmt.Fprintf(a.stderr, "\r%3d%%  %s / %s", p.Percent,
				humanize.IBytes(uint64(p.Loaded)), humanize.IBytes(uint64(p.Total)))
			if p.Done() {
				fmt.Fprintln(a.stderr)
			}
		})
		defer unsubscribe()
	}

	ctx, cancel := signalContext()
	defer cancel()

	record, err := a.fetcher.Fetch(ctx, fetcher.Request{
		URL:             cmd.URL,
		Name:            cmd.Name,
		ChunkSize:       cmd.ChunkSize,
		Headers:         headers,
		WithCredentials: cmd.WithCredentials,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(a.stdout, "%s  %s  %s  %s  %d range requests  xxh64:%s\n",
		record.ID,
		record.CachePath,
		humanize.IBytes(uint64(record.Size)),
		record.Strategy,
		record.RangeRequests,
		record.Checksum)
	return nil
}

func (a *app) runRequest(cmd *RequestCmd) error {
	headers, err := parseHeaders(cmd.Headers)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	value, err := a.loader.RequestMethod(ctx, cmd.URL, cmd.Kind, cmd.WithCredentials, headers)
	if err != nil {
		return err
	}

	out := a.stdout
	if cmd.Output != "" {
		f, err := os.Create(cmd.Output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	return writeValue(out, value)
}

// writeValue renders a decoded resource
func writeValue(w io.Writer, value any) error {
	switch v := value.(type) {
	case []byte:
		_, err := w.Write(v)
		return err
	case string:
		_, err := io.WriteString(w, v)
		return err
	case *etree.Document:
		v.Indent(2)
		_, err := v.WriteTo(w)
		return err
	case *html.Node:
		return html.Render(w, v)
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
}

func (a *app) runHistory(cmd *HistoryCmd) error {
	if cmd.Stats {
		stats, err := a.store.Stats()
		if err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "loads: %d (%d completed, %d failed), %s loaded\n",
			stats.Total, stats.Completed, stats.Failed, humanize.IBytes(uint64(stats.TotalBytes)))
		for strategy, count := range stats.ByStrategy {
			fmt.Fprintf(a.stdout, "  %-15s %d\n", strategy, count)
		}
		return nil
	}

	records, err := a.store.List(cmd.Limit)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tSTATUS\tSTRATEGY\tSIZE\tDURATION\tNAME\tURL")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			humanize.Time(r.StartedAt),
			r.Status,
			r.Strategy,
			humanize.IBytes(uint64(r.Size)),
			r.Duration.Round(time.Millisecond),
			r.Name,
			r.URL)
	}
	return tw.Flush()
}
