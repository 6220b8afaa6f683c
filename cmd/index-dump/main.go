// Command index-dump shows what audioindex finds in a library document.
//
// It is a debugging aid for documents produced by the indexing tool: it
// prints the record counts, warnings and, on request, the offsets and
// contents of individual records. It can also write and load offset
// snapshots.
//
// Usage:
//
//	index-dump [options] <index.json>
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/rs/zerolog"

	"github.com/simonhull/audioindex"
	"github.com/simonhull/audioindex/internal/logger"
)

type config struct {
	files     bool
	folders   bool
	offsets   bool
	strict    bool
	lookup    string
	mount     string
	snapshot  string
	load      string
	codec     string
	level     string
	pretty    bool
	chunkSize int
	window    int
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	cfg := config{
		codec: "s2",
		level: "warn",
	}

	fs := flag.NewFlagSet("index-dump", flag.ContinueOnError)
	fs.BoolVar(&cfg.files, "files", false, "print every file record")
	fs.BoolVar(&cfg.folders, "folders", false, "print every folder record")
	fs.BoolVar(&cfg.offsets, "offsets", false, "print record offsets")
	fs.BoolVar(&cfg.strict, "strict", false, "fail on malformed objects")
	fs.StringVar(&cfg.lookup, "lookup", "", "find the file record with this relative path")
	fs.StringVar(&cfg.mount, "mount", "", "mount point used to print full paths")
	fs.StringVar(&cfg.snapshot, "snapshot", "", "write an offset snapshot to this file")
	fs.StringVar(&cfg.load, "load", "", "load offsets from this snapshot instead of indexing")
	fs.StringVar(&cfg.codec, "codec", cfg.codec, "snapshot codec: none, s2, zstd, lz4")
	fs.StringVar(&cfg.level, "level", cfg.level, "log level: debug, info, warn, error")
	fs.BoolVar(&cfg.pretty, "pretty", false, "human-readable log output")
	fs.IntVar(&cfg.chunkSize, "chunk", 0, "bytes read per record (0 = default)")
	fs.IntVar(&cfg.window, "window", 0, "scanner window size (0 = default)")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "Usage: index-dump [options] <index.json>")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errors.New("expected exactly one document path")
	}
	path := fs.Arg(0)

	log := logger.New(logger.Config{Level: cfg.level, Pretty: cfg.pretty})

	codec, err := audioindex.ParseSnapshotCodec(cfg.codec)
	if err != nil {
		return err
	}

	opts := []audioindex.Option{
		audioindex.WithLogger(log),
		audioindex.WithSnapshotCodec(codec),
	}
	if cfg.strict {
		opts = append(opts, audioindex.WithStrictParsing())
	}
	if cfg.chunkSize > 0 {
		opts = append(opts, audioindex.WithChunkSize(cfg.chunkSize))
		if cfg.chunkSize > 4096 {
			opts = append(opts, audioindex.WithMaxChunkSize(cfg.chunkSize))
		}
	}
	if cfg.window > 0 {
		opts = append(opts, audioindex.WithWindowSize(cfg.window))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	idx, err := open(ctx, path, cfg.load, opts, log)
	if err != nil {
		return err
	}
	defer idx.Close()

	summary(out, idx)

	if cfg.offsets {
		fmt.Fprintf(out, "\nfile offsets:   %s\n", joinOffsets(idx.FileOffsets()))
		fmt.Fprintf(out, "folder offsets: %s\n", joinOffsets(idx.FolderOffsets()))
	}

	if cfg.folders {
		fmt.Fprintln(out, "\nFolders:")
		for i := 0; i < idx.FolderCount(); i++ {
			f, err := idx.Folder(i)
			if err != nil {
				fmt.Fprintf(out, "  [%d] error: %v\n", i, err)
				continue
			}
			fmt.Fprintf(out, "  [%d] %s (%d files from #%d)%s\n",
				i, f.Name, f.FileCount, f.FirstFileIndex, truncatedNote(f.Truncated))
		}
	}

	if cfg.files {
		fmt.Fprintln(out, "\nFiles:")
		i := 0
		for rec, err := range idx.Files() {
			if err != nil {
				fmt.Fprintf(out, "  [%d] error: %v\n", i, err)
			} else {
				printFile(out, i, rec, cfg.mount)
			}
			i++
		}
	}

	if cfg.lookup != "" {
		i, rec, err := idx.Lookup(cfg.lookup)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, "\nLookup:")
		printFile(out, i, rec, cfg.mount)
	}

	if cfg.snapshot != "" {
		if err := writeSnapshot(idx, cfg.snapshot); err != nil {
			return err
		}
		fmt.Fprintf(out, "\nsnapshot written to %s (%s)\n", cfg.snapshot, codec)
	}

	return nil
}

// open loads the index from a snapshot when one is given and still
// matches the document, and indexes the document otherwise.
func open(ctx context.Context, path, snap string, opts []audioindex.Option, log zerolog.Logger) (*audioindex.Index, error) {
	if snap != "" {
		f, err := os.Open(snap)
		if err != nil {
			return nil, fmt.Errorf("open snapshot: %w", err)
		}
		idx, err := audioindex.LoadSnapshot(path, f, opts...)
		f.Close()
		if err == nil {
			return idx, nil
		}

		var se *audioindex.SnapshotError
		if !errors.As(err, &se) {
			return nil, err
		}
		log.Warn().Err(err).Msg("snapshot unusable, indexing document")
	}
	return audioindex.OpenContext(ctx, path, opts...)
}

func writeSnapshot(idx *audioindex.Index, path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close snapshot: %w", cerr)
		}
	}()
	return idx.WriteSnapshot(f)
}

func summary(out io.Writer, idx *audioindex.Index) {
	st := idx.Stats()

	fmt.Fprintf(out, "Document: %s\n", idx.Path())
	if v := idx.Version(); v != "" {
		fmt.Fprintf(out, "Version:  %s\n", v)
	}
	fmt.Fprintf(out, "Files:    %d", idx.FileCount())
	if total := idx.DeclaredTotal(); total >= 0 && total != idx.FileCount() {
		fmt.Fprintf(out, " (document declares %d)", total)
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Folders:  %d\n", idx.FolderCount())

	if st.FromSnapshot {
		fmt.Fprintf(out, "Source:   snapshot, %d bytes verified in %s\n", st.BytesRead, st.BuildDuration)
	} else {
		fmt.Fprintf(out, "Source:   %d scans, %d reads, %d bytes in %s\n",
			st.ScanCalls, st.Windows, st.BytesRead, st.BuildDuration)
	}

	if ws := idx.Warnings(); len(ws) > 0 {
		fmt.Fprintln(out, "\nWarnings:")
		for _, w := range ws {
			fmt.Fprintf(out, "  • %s\n", w)
		}
	}
}

func printFile(out io.Writer, i int, rec audioindex.FileRecord, mount string) {
	p := rec.Path
	if mount != "" {
		p = audioindex.FullPath(mount, rec.Path)
	}
	fmt.Fprintf(out, "  [%d] %s\n", i, p)
	fmt.Fprintf(out, "       %s - %s (%s)%s\n", rec.Artist, rec.Song, rec.Album, truncatedNote(rec.Truncated))
	folder := "none"
	if rec.FolderIndex != audioindex.NoFolder {
		folder = fmt.Sprint(rec.FolderIndex)
	}
	fmt.Fprintf(out, "       %d Hz, %d bit, %d ch, folder %s\n", rec.SampleRate, rec.BitDepth, rec.Channels, folder)
}

func truncatedNote(f audioindex.Field) string {
	if f == 0 {
		return ""
	}
	return " [truncated: " + f.String() + "]"
}

func joinOffsets(offs []int64) string {
	if len(offs) == 0 {
		return "-"
	}
	parts := make([]string, len(offs))
	for i, off := range offs {
		parts[i] = fmt.Sprint(off)
	}
	return strings.Join(parts, " ")
}
