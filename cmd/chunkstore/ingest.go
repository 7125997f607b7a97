package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/arkilian/chunkstore/internal/archive"
	"github.com/arkilian/chunkstore/internal/chunk"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newIngestCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest FILE...",
		Short: "Ingest chunk files into the archive",
		Long: `Ingest reads chunk files and archives every chunk they hold.

A file is either an arrow IPC stream of chunk records or, when its name ends
in .sz, a single archived chunk object.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, flags)
			if err != nil {
				return err
			}
			defer a.Close()

			var chunks []*chunk.Chunk
			for _, path := range args {
				read, err := readChunkFile(path)
				if err != nil {
					return err
				}
				chunks = append(chunks, read...)
			}

			entries, err := a.Ingest(ctx, chunks)
			var (
				rows int64
				size uint64
			)
			for _, e := range entries {
				rows += int64(e.NumRows)
				size += e.HeapSizeBytes
			}
			fmt.Fprintf(cmd.OutOrStdout(), "archived %d of %d chunks (%s rows, %s)\n",
				len(entries), len(chunks), humanize.Comma(rows), humanize.Bytes(size))
			return err
		},
	}
}

func readChunkFile(path string) ([]*chunk.Chunk, error) {
	if filepath.Ext(path) == ".sz" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		c, err := archive.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return []*chunk.Chunk{c}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	chunks, err := archive.ReadStream(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return chunks, nil
}
