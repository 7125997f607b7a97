// Package archive persists chunks to object storage.
//
// A chunk is archived as one object: the arrow IPC stream of its transport
// record, snappy compressed. The manifest catalog records where every chunk
// lives together with the statistics used to prune loads.
package archive

import (
	"bytes"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/arkilian/chunkstore/internal/chunk"
	storeerrors "github.com/arkilian/chunkstore/internal/errors"
	"github.com/golang/snappy"
)

var mem = memory.NewGoAllocator()

// Encode serializes c for archiving.
func Encode(c *chunk.Chunk) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteStream(&buf, c); err != nil {
		return nil, err
	}
	return snappy.Encode(nil, buf.Bytes()), nil
}

// Decode rebuilds a chunk from the output of Encode. The chunk is sanity
// checked like any other.
func Decode(data []byte) (*chunk.Chunk, error) {
	raw, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, storeerrors.NewArchiveError(storeerrors.CodeDecodeFailed, "failed to decompress chunk", err)
	}

	chunks, err := ReadStream(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	if len(chunks) != 1 {
		return nil, storeerrors.NewArchiveError(storeerrors.CodeDecodeFailed,
			fmt.Sprintf("archived stream holds %d chunks, want 1", len(chunks)), nil)
	}
	return chunks[0], nil
}

// WriteStream writes c to w as an uncompressed arrow IPC stream.
func WriteStream(w io.Writer, c *chunk.Chunk) error {
	rec := c.ToRecord()
	defer rec.Release()

	iw := ipc.NewWriter(w, ipc.WithSchema(rec.Schema()), ipc.WithAllocator(mem))
	if err := iw.Write(rec); err != nil {
		iw.Close()
		return storeerrors.NewArchiveError(storeerrors.CodeEncodeFailed,
			fmt.Sprintf("failed to write chunk %s", c.ID()), err)
	}
	if err := iw.Close(); err != nil {
		return storeerrors.NewArchiveError(storeerrors.CodeEncodeFailed,
			fmt.Sprintf("failed to close stream of chunk %s", c.ID()), err)
	}
	return nil
}

// ReadStream reads every chunk record of an arrow IPC stream.
func ReadStream(r io.Reader) ([]*chunk.Chunk, error) {
	ir, err := ipc.NewReader(r, ipc.WithAllocator(mem))
	if err != nil {
		return nil, storeerrors.NewArchiveError(storeerrors.CodeDecodeFailed, "failed to open chunk stream", err)
	}
	defer ir.Release()

	var chunks []*chunk.Chunk
	for ir.Next() {
		// The chunk takes over the record's arrays.
		rec := ir.Record()
		rec.Retain()

		c, err := chunk.FromRecord(rec)
		if err != nil {
			return nil, storeerrors.NewArchiveError(storeerrors.CodeDecodeFailed, "invalid chunk record", err)
		}
		chunks = append(chunks, c)
	}
	if err := ir.Err(); err != nil {
		return nil, storeerrors.NewArchiveError(storeerrors.CodeDecodeFailed, "failed to read chunk record", err)
	}
	return chunks, nil
}
