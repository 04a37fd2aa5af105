package sink

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec selects the compression applied to columnar blocks.
type Codec byte

const (
	CodecZstd Codec = iota
	CodecLZ4
)

// ParseCodec maps a codec name to its Codec value.
func ParseCodec(name string) (Codec, error) {
	switch name {
	case "zstd":
		return CodecZstd, nil
	case "lz4":
		return CodecLZ4, nil
	default:
		return 0, fmt.Errorf("unknown codec %q (want zstd or lz4)", name)
	}
}

// dscol is a chunked column-oriented file format with the same logical
// schema as the CSV table.
//
// Layout:
//
//	header:  5-byte magic "dscol", 1-byte version, 1-byte codec
//	blocks:  repeated, one per flush, each self-contained:
//	         8-byte LE compressed payload length
//	         8-byte LE xxHash64 of the compressed payload
//	         compressed payload
//
// A payload holds a uvarint row count followed by the columns in schema
// order, each prefixed with its uvarint byte length. String columns store
// uvarint-length-prefixed values; numeric columns store fixed 8-byte LE
// words (timestamps as UnixNano, time_s as IEEE 754 bits).
//
// Because every block is length-prefixed and checksummed, a process killed
// mid-write leaves a torn tail block that the reader detects and drops;
// all previously flushed blocks remain readable.
const (
	columnarMagic   = "dscol"
	columnarVersion = 1

	// maxBlockSize bounds a block header's claimed payload length so a
	// corrupt length cannot trigger a huge allocation on read.
	maxBlockSize = 1 << 30
)

// Columnar buffers records in memory and writes one compressed block per
// flush.
type Columnar struct {
	f       *os.File
	codec   Codec
	pending []Record
	zenc    *zstd.Encoder
	zdec    *zstd.Decoder
}

// NewColumnar creates the file at path and writes the format header.
func NewColumnar(path string, codec Codec) (*Columnar, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create columnar %s: %w", path, err)
	}

	header := append([]byte(columnarMagic), columnarVersion, byte(codec))
	if _, err := f.Write(header); err != nil {
		f.Close()

		return nil, fmt.Errorf("write columnar header: %w", err)
	}

	c := &Columnar{f: f, codec: codec}

	if codec == CodecZstd {
		c.zenc, err = zstd.NewWriter(nil)
		if err != nil {
			f.Close()

			return nil, fmt.Errorf("create zstd encoder: %w", err)
		}
	}

	return c, nil
}

// Write buffers one record until the next flush.
func (c *Columnar) Write(r Record) error {
	c.pending = append(c.pending, r)

	return nil
}

// Flush encodes the buffered records into one block, writes it, and
// fsyncs. Flushing with no pending records is a no-op.
func (c *Columnar) Flush() error {
	if len(c.pending) == 0 {
		return nil
	}

	payload := encodeBlock(c.pending)

	compressed, err := c.compress(payload)
	if err != nil {
		return fmt.Errorf("compress block: %w", err)
	}

	var head [16]byte
	binary.LittleEndian.PutUint64(head[0:8], uint64(len(compressed)))
	binary.LittleEndian.PutUint64(head[8:16], xxhash.Sum64(compressed))

	if _, err := c.f.Write(head[:]); err != nil {
		return fmt.Errorf("write block header: %w", err)
	}
	if _, err := c.f.Write(compressed); err != nil {
		return fmt.Errorf("write block: %w", err)
	}
	if err := c.f.Sync(); err != nil {
		return fmt.Errorf("sync columnar: %w", err)
	}

	c.pending = c.pending[:0]

	return nil
}

// Close flushes pending records and closes the file.
func (c *Columnar) Close() error {
	if err := c.Flush(); err != nil {
		c.f.Close()

		return err
	}

	if c.zenc != nil {
		c.zenc.Close()
	}

	return c.f.Close()
}

func (c *Columnar) compress(payload []byte) ([]byte, error) {
	switch c.codec {
	case CodecZstd:
		return c.zenc.EncodeAll(payload, nil), nil

	case CodecLZ4:
		var buf bytes.Buffer

		w := lz4.NewWriter(&buf)
		if _, err := w.Write(payload); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}

		return buf.Bytes(), nil

	default:
		return nil, fmt.Errorf("unknown codec %d", c.codec)
	}
}

func encodeBlock(records []Record) []byte {
	var payload bytes.Buffer

	writeUvarint(&payload, uint64(len(records)))

	cols := [][]byte{
		encodeStrings(records, func(r Record) string { return r.RunID }),
		encodeInts(records, func(r Record) uint64 { return uint64(r.RunIndex) }),
		encodeStrings(records, func(r Record) string { return r.Operation }),
		encodeStrings(records, func(r Record) string { return r.Structure }),
		encodeInts(records, func(r Record) uint64 { return uint64(r.Size) }),
		encodeInts(records, func(r Record) uint64 { return uint64(r.Seed) }),
		encodeInts(records, func(r Record) uint64 { return uint64(r.Timestamp.UnixNano()) }),
		encodeInts(records, func(r Record) uint64 { return uint64(r.TimeNS) }),
		encodeInts(records, func(r Record) uint64 { return math.Float64bits(r.TimeS()) }),
		encodeInts(records, func(r Record) uint64 { return r.RSSBaseline }),
		encodeInts(records, func(r Record) uint64 { return uint64(r.RSSDelta) }),
		encodeInts(records, func(r Record) uint64 { return r.MemPeak }),
	}

	for _, col := range cols {
		writeUvarint(&payload, uint64(len(col)))
		payload.Write(col)
	}

	return payload.Bytes()
}

func encodeStrings(records []Record, get func(Record) string) []byte {
	var buf bytes.Buffer

	for _, r := range records {
		s := get(r)
		writeUvarint(&buf, uint64(len(s)))
		buf.WriteString(s)
	}

	return buf.Bytes()
}

func encodeInts(records []Record, get func(Record) uint64) []byte {
	buf := make([]byte, 8*len(records))
	for i, r := range records {
		binary.LittleEndian.PutUint64(buf[8*i:], get(r))
	}

	return buf
}

func writeUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

// ReadColumnar reads a dscol file back into records. A torn tail block
// (from a process interrupted mid-write) is detected and dropped; blocks
// flushed before the interruption are returned intact. A checksum mismatch
// on a complete block is an error.
func ReadColumnar(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open columnar %s: %w", path, err)
	}
	defer f.Close()

	header := make([]byte, len(columnarMagic)+2)
	if _, err := io.ReadFull(f, header); err != nil {
		return nil, fmt.Errorf("read columnar header: %w", err)
	}

	if string(header[:len(columnarMagic)]) != columnarMagic {
		return nil, fmt.Errorf("not a dscol file: %s", path)
	}
	if header[len(columnarMagic)] != columnarVersion {
		return nil, fmt.Errorf("unsupported dscol version %d", header[len(columnarMagic)])
	}

	codec := Codec(header[len(columnarMagic)+1])

	var records []Record

	for {
		var head [16]byte

		if _, err := io.ReadFull(f, head[:]); err != nil {
			// Clean end of file, or a torn block header.
			break
		}

		compLen := binary.LittleEndian.Uint64(head[0:8])
		wantSum := binary.LittleEndian.Uint64(head[8:16])

		if compLen > maxBlockSize {
			return nil, fmt.Errorf("block length %d exceeds limit", compLen)
		}

		compressed := make([]byte, compLen)
		if _, err := io.ReadFull(f, compressed); err != nil {
			// Torn tail block: drop it, keep earlier blocks.
			break
		}

		if xxhash.Sum64(compressed) != wantSum {
			return nil, fmt.Errorf("block checksum mismatch at record %d", len(records))
		}

		payload, err := decompress(codec, compressed)
		if err != nil {
			return nil, fmt.Errorf("decompress block: %w", err)
		}

		block, err := decodeBlock(payload)
		if err != nil {
			return nil, fmt.Errorf("decode block: %w", err)
		}

		records = append(records, block...)
	}

	return records, nil
}

func decompress(codec Codec, compressed []byte) ([]byte, error) {
	switch codec {
	case CodecZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer dec.Close()

		return dec.DecodeAll(compressed, nil)

	case CodecLZ4:
		return io.ReadAll(lz4.NewReader(bytes.NewReader(compressed)))

	default:
		return nil, fmt.Errorf("unknown codec %d", codec)
	}
}

func decodeBlock(payload []byte) ([]Record, error) {
	buf := bytes.NewReader(payload)

	rows, err := binary.ReadUvarint(buf)
	if err != nil {
		return nil, fmt.Errorf("read row count: %w", err)
	}

	n := int(rows)

	cols := make([][]byte, len(Columns))
	for i := range cols {
		colLen, err := binary.ReadUvarint(buf)
		if err != nil {
			return nil, fmt.Errorf("read column %s length: %w", Columns[i], err)
		}

		col := make([]byte, colLen)
		if _, err := io.ReadFull(buf, col); err != nil {
			return nil, fmt.Errorf("read column %s: %w", Columns[i], err)
		}

		cols[i] = col
	}

	runIDs, err := decodeStrings(cols[0], n)
	if err != nil {
		return nil, err
	}
	operations, err := decodeStrings(cols[2], n)
	if err != nil {
		return nil, err
	}
	structures, err := decodeStrings(cols[3], n)
	if err != nil {
		return nil, err
	}

	for _, i := range []int{1, 4, 5, 6, 7, 8, 9, 10, 11} {
		if len(cols[i]) < 8*n {
			return nil, fmt.Errorf("column %s truncated: %d bytes for %d rows",
				Columns[i], len(cols[i]), n)
		}
	}

	runIndexes := decodeInts(cols[1], n)
	sizes := decodeInts(cols[4], n)
	seeds := decodeInts(cols[5], n)
	timestamps := decodeInts(cols[6], n)
	timeNS := decodeInts(cols[7], n)
	rssBase := decodeInts(cols[9], n)
	rssDelta := decodeInts(cols[10], n)
	memPeak := decodeInts(cols[11], n)

	records := make([]Record, n)
	for i := range records {
		records[i] = Record{
			RunID:       runIDs[i],
			RunIndex:    int(runIndexes[i]),
			Operation:   operations[i],
			Structure:   structures[i],
			Size:        int(sizes[i]),
			Seed:        int64(seeds[i]),
			Timestamp:   time.Unix(0, int64(timestamps[i])).UTC(),
			TimeNS:      int64(timeNS[i]),
			RSSBaseline: rssBase[i],
			RSSDelta:    int64(rssDelta[i]),
			MemPeak:     memPeak[i],
		}
	}

	return records, nil
}

func decodeStrings(col []byte, n int) ([]string, error) {
	buf := bytes.NewReader(col)
	out := make([]string, n)

	for i := range out {
		strLen, err := binary.ReadUvarint(buf)
		if err != nil {
			return nil, fmt.Errorf("read string length: %w", err)
		}

		b := make([]byte, strLen)
		if _, err := io.ReadFull(buf, b); err != nil {
			return nil, fmt.Errorf("read string: %w", err)
		}

		out[i] = string(b)
	}

	return out, nil
}

func decodeInts(col []byte, n int) []uint64 {
	out := make([]uint64, n)
	for i := range out {
		out[i] = binary.LittleEndian.Uint64(col[8*i:])
	}

	return out
}
