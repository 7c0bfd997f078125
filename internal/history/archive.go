package history

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/flate"
)

// ZIP record signatures.
const (
	sigLocalHeader    = 0x04034b50
	sigDataDescriptor = 0x08074b50
	sigCentralDir     = 0x02014b50
	sigEndOfCentral   = 0x06054b50
)

const (
	methodStore   = 0
	methodDeflate = 8

	flagEncrypted      = 0x1
	flagDataDescriptor = 0x8

	zip64ExtraID = 0x0001
	maxUint32    = 0xffffffff
)

// archiveReadBufSize is the read-ahead on the HTTP body.
const archiveReadBufSize = 32 * 1024

// ErrUnsupportedArchive is returned for ZIP features that cannot be read as a stream.
var ErrUnsupportedArchive = errors.New("unsupported archive")

// ErrCorruptArchive is returned for a damaged or truncated archive.
var ErrCorruptArchive = errors.New("corrupt archive")

// StreamArchive reads a ZIP archive from src front to back and writes the
// concatenated contents of its entries to dst, in bufSize chunks. It never
// seeks: entries are located by their local headers and the central
// directory is only used as the end marker. It returns the number of
// decompressed bytes written.
func StreamArchive(ctx context.Context, src io.Reader, dst io.Writer, bufSize int) (int64, error) {
	if bufSize <= 0 {
		bufSize = archiveReadBufSize
	}

	br := bufio.NewReaderSize(src, archiveReadBufSize)
	w := ctxWriter{ctx: ctx, w: dst}
	buf := make([]byte, bufSize)

	var written int64
	for entries := 0; ; entries++ {
		sig, err := readUint32(br)
		if err != nil {
			return written, fmt.Errorf("%w: entry %d: read signature: %v", ErrCorruptArchive, entries, err)
		}

		switch sig {
		case sigLocalHeader:
		case sigCentralDir, sigEndOfCentral:
			return written, nil
		default:
			return written, fmt.Errorf("%w: entry %d: unexpected signature %#08x", ErrCorruptArchive, entries, sig)
		}

		n, err := streamEntry(br, w, buf)
		written += n
		if err != nil {
			if ctx.Err() != nil {
				return written, ctx.Err()
			}
			return written, fmt.Errorf("entry %d: %w", entries, err)
		}
	}
}

// localHeader is the fixed part of a local file header after the signature.
type localHeader struct {
	Version          uint16
	Flags            uint16
	Method           uint16
	ModTime          uint16
	ModDate          uint16
	CRC32            uint32
	CompressedSize   uint32
	UncompressedSize uint32
	NameLen          uint16
	ExtraLen         uint16
}

func streamEntry(br *bufio.Reader, w io.Writer, buf []byte) (int64, error) {
	var h localHeader
	if err := binary.Read(br, binary.LittleEndian, &h); err != nil {
		return 0, fmt.Errorf("%w: read local header: %v", ErrCorruptArchive, err)
	}
	if h.Flags&flagEncrypted != 0 {
		return 0, fmt.Errorf("%w: encrypted entry", ErrUnsupportedArchive)
	}

	if _, err := br.Discard(int(h.NameLen)); err != nil {
		return 0, fmt.Errorf("%w: read name: %v", ErrCorruptArchive, err)
	}
	extra := make([]byte, h.ExtraLen)
	if _, err := io.ReadFull(br, extra); err != nil {
		return 0, fmt.Errorf("%w: read extra: %v", ErrCorruptArchive, err)
	}

	compressed, uncompressed := uint64(h.CompressedSize), uint64(h.UncompressedSize)
	zip64 := false
	if z, ok := findExtra(extra, zip64ExtraID); ok {
		zip64 = true
		if uncompressed == maxUint32 && len(z) >= 8 {
			uncompressed = binary.LittleEndian.Uint64(z)
			z = z[8:]
		}
		if compressed == maxUint32 && len(z) >= 8 {
			compressed = binary.LittleEndian.Uint64(z)
		}
	}

	descriptor := h.Flags&flagDataDescriptor != 0

	var r io.Reader
	switch h.Method {
	case methodDeflate:
		// bufio.Reader is an io.ByteReader, so inflate stops exactly at
		// the end of the deflate stream and the data descriptor that
		// follows stays unread.
		fr := flate.NewReader(br)
		defer fr.Close()
		r = fr
	case methodStore:
		if descriptor && compressed == 0 {
			return 0, fmt.Errorf("%w: stored entry with unknown size", ErrUnsupportedArchive)
		}
		r = io.LimitReader(br, int64(compressed))
	default:
		return 0, fmt.Errorf("%w: compression method %d", ErrUnsupportedArchive, h.Method)
	}

	crc := crc32.NewIEEE()
	n, err := copyBuffer(io.MultiWriter(w, crc), r, buf)
	if err != nil {
		return n, err
	}

	wantCRC, wantSize := h.CRC32, uncompressed
	if descriptor {
		wantCRC, wantSize, err = readDataDescriptor(br, zip64)
		if err != nil {
			return n, err
		}
	}

	if crc.Sum32() != wantCRC {
		return n, fmt.Errorf("%w: checksum %#08x, want %#08x", ErrCorruptArchive, crc.Sum32(), wantCRC)
	}
	if uint64(n) != wantSize {
		return n, fmt.Errorf("%w: %d bytes, want %d", ErrCorruptArchive, n, wantSize)
	}
	return n, nil
}

// copyBuffer is io.CopyBuffer without the WriterTo/ReaderFrom shortcuts, so
// every write to dst is at most len(buf) bytes.
func copyBuffer(dst io.Writer, src io.Reader, buf []byte) (int64, error) {
	var written int64
	for {
		nr, rerr := src.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[:nr])
			written += int64(nw)
			if werr != nil {
				return written, werr
			}
			if nw != nr {
				return written, io.ErrShortWrite
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			if errors.Is(rerr, io.ErrUnexpectedEOF) {
				return written, fmt.Errorf("%w: %v", ErrCorruptArchive, rerr)
			}
			var ce flate.CorruptInputError
			if errors.As(rerr, &ce) {
				return written, fmt.Errorf("%w: %v", ErrCorruptArchive, rerr)
			}
			return written, rerr
		}
	}
}

// readDataDescriptor reads the CRC and uncompressed size trailing an entry.
// The descriptor signature is optional.
func readDataDescriptor(br *bufio.Reader, zip64 bool) (crc uint32, size uint64, err error) {
	first, err := readUint32(br)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: read data descriptor: %v", ErrCorruptArchive, err)
	}
	crc = first
	if first == sigDataDescriptor {
		if crc, err = readUint32(br); err != nil {
			return 0, 0, fmt.Errorf("%w: read data descriptor: %v", ErrCorruptArchive, err)
		}
	}

	sizeLen := 4
	if zip64 {
		sizeLen = 8
	}
	var sizes [16]byte
	if _, err := io.ReadFull(br, sizes[:2*sizeLen]); err != nil {
		return 0, 0, fmt.Errorf("%w: read data descriptor: %v", ErrCorruptArchive, err)
	}
	if zip64 {
		size = binary.LittleEndian.Uint64(sizes[8:16])
	} else {
		size = uint64(binary.LittleEndian.Uint32(sizes[4:8]))
	}
	return crc, size, nil
}

func findExtra(extra []byte, id uint16) ([]byte, bool) {
	for len(extra) >= 4 {
		tag := binary.LittleEndian.Uint16(extra[0:2])
		size := int(binary.LittleEndian.Uint16(extra[2:4]))
		extra = extra[4:]
		if size > len(extra) {
			return nil, false
		}
		if tag == id {
			return extra[:size], true
		}
		extra = extra[size:]
	}
	return nil, false
}

func readUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

// ctxWriter fails writes once ctx is done.
type ctxWriter struct {
	ctx context.Context
	w   io.Writer
}

func (w ctxWriter) Write(p []byte) (int, error) {
	if err := w.ctx.Err(); err != nil {
		return 0, err
	}
	return w.w.Write(p)
}
