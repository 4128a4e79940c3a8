package rowindex

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
)

// shardWriter receives one worker's monotone row-start offsets.
type shardWriter interface {
	WriteOffset(off uint64) error
	Close() error
}

// rawShard writes packed little-endian u64 offsets.
type rawShard struct {
	file *os.File
	w    *bufio.Writer
}

func (s *rawShard) WriteOffset(off uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], off)
	if _, err := s.w.Write(buf[:]); err != nil {
		return fmt.Errorf("write offset: %w", err)
	}
	return nil
}

func (s *rawShard) Close() error {
	if err := s.w.Flush(); err != nil {
		s.file.Close()
		return fmt.Errorf("flush shard: %w", err)
	}
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("close shard: %w", err)
	}
	return nil
}

// zstdShard writes the same u64 stream inside a zstd frame. Shards are
// transient, so the frame never escapes this package; the merge step
// re-expands to the raw layout.
type zstdShard struct {
	file *os.File
	enc  *zstd.Encoder
}

func (s *zstdShard) WriteOffset(off uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], off)
	if _, err := s.enc.Write(buf[:]); err != nil {
		return fmt.Errorf("write offset: %w", err)
	}
	return nil
}

func (s *zstdShard) Close() error {
	if err := s.enc.Close(); err != nil {
		s.file.Close()
		return fmt.Errorf("close encoder: %w", err)
	}
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("close shard: %w", err)
	}
	return nil
}

func newShardWriter(path string, bufSize int, compress bool) (shardWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create shard: %w", err)
	}
	if !compress {
		return &rawShard{file: f, w: bufio.NewWriterSize(f, bufSize)}, nil
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("create encoder: %w", err)
	}
	return &zstdShard{file: f, enc: enc}, nil
}

// shardReader streams a shard back as raw u64 bytes for the merge.
type shardReader struct {
	file *os.File
	r    io.Reader
	dec  *zstd.Decoder
}

func openShardReader(path string, bufSize int, compress bool) (*shardReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open shard: %w", err)
	}
	br := bufio.NewReaderSize(f, bufSize)
	if !compress {
		return &shardReader{file: f, r: br}, nil
	}
	dec, err := zstd.NewReader(br)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create decoder: %w", err)
	}
	return &shardReader{file: f, r: dec, dec: dec}, nil
}

func (s *shardReader) Read(p []byte) (int, error) {
	return s.r.Read(p)
}

func (s *shardReader) Close() error {
	if s.dec != nil {
		s.dec.Close()
	}
	return s.file.Close()
}
