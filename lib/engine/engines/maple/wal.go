package maple

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"

	"github.com/ValentinKolb/scdb/lib/engine"
	"github.com/ValentinKolb/scdb/lib/engine/util"
)

// --------------------------------------------------------------------------
// Log format
// --------------------------------------------------------------------------
//
// header: magic (8) | version (1) | seed (8)
// record: op (1) | expiresAt (8) | key len (4) | value len (4) | key | value | crc32 (4)
//
// All integers are little endian, the crc covers the record without the checksum.

const (
	magicNum     = "MAPLEDB\x00" // File format identifier
	mapleVersion = 4             // Log format version

	logFileName = "maple.log"
	headerSize  = len(magicNum) + 1 + 8
	recordHead  = 1 + 8 + 4 + 4
	maxFieldLen = 1 << 30 // larger lengths can only come from a torn or garbled record
)

type opCode uint8

const (
	opSet opCode = iota + 1
	opDelete
)

// record is one decoded log entry
type record struct {
	op        opCode
	expiresAt int64
	key       []byte
	value     []byte
}

// wal is the append-only write-ahead log of a maple store
type wal struct {
	dir     string
	seed    uint64
	bufSize int
	file    *os.File
	w       *bufio.Writer
	size    int64 // bytes in the log, including buffered bytes
	scratch []byte
}

// logPath returns the path of the current log (generation 0) or of a backup generation
func logPath(dir string, generation int) string {
	if generation == 0 {
		return filepath.Join(dir, logFileName)
	}
	return filepath.Join(dir, fmt.Sprintf("%s.%d", logFileName, generation))
}

// tmpLogPath returns the path a compacted log is written to before it is installed
func tmpLogPath(dir string) string {
	return logPath(dir, 0) + ".tmp"
}

// openWAL opens (or creates) the log in dir and replays every valid record through apply.
// A torn or garbled tail, e.g. from a crash during a write, is cut off.
// If the log is missing, the compacted log or the newest backup generation is installed.
func openWAL(dir string, bufSize int, apply func(rec record)) (*wal, error) {
	path := logPath(dir, 0)

	if err := recoverLog(dir); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}

	seed, valid, err := replay(file, apply)
	if err != nil {
		file.Close()
		return nil, err
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stat log: %w", err)
	}

	l := &wal{dir: dir, bufSize: bufSize, file: file, seed: seed}

	switch {
	case valid == 0:
		// new (or empty) log -> write a fresh header
		l.seed = util.GenerateSeed()
		if err := file.Truncate(0); err != nil {
			file.Close()
			return nil, fmt.Errorf("truncate log: %w", err)
		}
		if _, err := file.WriteAt(encodeHeader(l.seed), 0); err != nil {
			file.Close()
			return nil, fmt.Errorf("write log header: %w", err)
		}
		valid = int64(headerSize)
	case valid < stat.Size():
		log.Warningf("cutting off %d bytes of torn log tail in %s", stat.Size()-valid, path)
		if err := file.Truncate(valid); err != nil {
			file.Close()
			return nil, fmt.Errorf("truncate log: %w", err)
		}
	}

	if _, err := file.Seek(valid, io.SeekStart); err != nil {
		file.Close()
		return nil, fmt.Errorf("seek log: %w", err)
	}

	l.size = valid
	l.w = bufio.NewWriterSize(file, bufSize)
	return l, nil
}

// recoverLog installs a replacement if the log is missing and removes a leftover
// compacted log otherwise
func recoverLog(dir string) error {
	path := logPath(dir, 0)
	tmpPath := tmpLogPath(dir)

	if _, err := os.Stat(path); err == nil {
		if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove leftover compacted log: %w", err)
		}
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat log: %w", err)
	}

	for _, candidate := range []string{tmpPath, logPath(dir, 1)} {
		if !hasValidHeader(candidate) {
			continue
		}
		if err := os.Rename(candidate, path); err != nil {
			return fmt.Errorf("recover log from %s: %w", candidate, err)
		}
		log.Warningf("log %s is missing, recovered from %s", path, candidate)
		return syncDir(dir)
	}
	return nil
}

// hasValidHeader reports whether the file at path is a readable log
func hasValidHeader(path string) bool {
	file, err := os.Open(path)
	if err != nil {
		return false
	}
	defer file.Close()

	header := make([]byte, headerSize)
	if _, err := io.ReadFull(file, header); err != nil {
		return false
	}
	return string(header[:len(magicNum)]) == magicNum && header[len(magicNum)] == mapleVersion
}

// replay reads the header and all valid records of the log.
// It returns the seed and the offset after the last valid record (0 if there is no valid header).
func replay(file *os.File, apply func(rec record)) (uint64, int64, error) {
	r := bufio.NewReader(file)

	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, 0, nil // never finished writing the header
		}
		return 0, 0, fmt.Errorf("read log header: %w", err)
	}

	if string(header[:len(magicNum)]) != magicNum {
		return 0, 0, fmt.Errorf("%w: magic number mismatch", engine.ErrCorrupted)
	}
	if v := header[len(magicNum)]; v != mapleVersion {
		return 0, 0, fmt.Errorf("%w: unsupported version: %d (expected %d)", engine.ErrCorrupted, v, mapleVersion)
	}
	seed := binary.LittleEndian.Uint64(header[len(magicNum)+1:])

	offset := int64(headerSize)
	head := make([]byte, recordHead)
	for {
		if _, err := io.ReadFull(r, head); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return seed, offset, nil
			}
			return 0, 0, fmt.Errorf("read log: %w", err)
		}

		op := opCode(head[0])
		keyLen := binary.LittleEndian.Uint32(head[9:])
		valueLen := binary.LittleEndian.Uint32(head[13:])
		if (op != opSet && op != opDelete) || keyLen > maxFieldLen || valueLen > maxFieldLen {
			return seed, offset, nil
		}

		body := make([]byte, int(keyLen)+int(valueLen)+4)
		if _, err := io.ReadFull(r, body); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return seed, offset, nil
			}
			return 0, 0, fmt.Errorf("read log: %w", err)
		}

		checksum := crc32.NewIEEE()
		checksum.Write(head)
		checksum.Write(body[:len(body)-4])
		if checksum.Sum32() != binary.LittleEndian.Uint32(body[len(body)-4:]) {
			return seed, offset, nil
		}

		apply(record{
			op:        op,
			expiresAt: int64(binary.LittleEndian.Uint64(head[1:])),
			key:       body[:keyLen],
			value:     body[keyLen : keyLen+valueLen],
		})
		offset += int64(recordHead + len(body))
	}
}

func encodeHeader(seed uint64) []byte {
	header := make([]byte, 0, headerSize)
	header = append(header, magicNum...)
	header = append(header, mapleVersion)
	return binary.LittleEndian.AppendUint64(header, seed)
}

// encodeRecord appends the encoded record to buf
func encodeRecord(buf []byte, rec record) []byte {
	start := len(buf)
	buf = append(buf, byte(rec.op))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(rec.expiresAt))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(rec.key)))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(rec.value)))
	buf = append(buf, rec.key...)
	buf = append(buf, rec.value...)
	return binary.LittleEndian.AppendUint32(buf, crc32.ChecksumIEEE(buf[start:]))
}

// --------------------------------------------------------------------------
// Writing
// --------------------------------------------------------------------------

// append writes a record and flushes it to the operating system
func (l *wal) append(rec record) error {
	l.scratch = encodeRecord(l.scratch[:0], rec)
	if _, err := l.w.Write(l.scratch); err != nil {
		return fmt.Errorf("append to log: %w", err)
	}
	if err := l.w.Flush(); err != nil {
		return fmt.Errorf("flush log: %w", err)
	}
	l.size += int64(len(l.scratch))
	return nil
}

// rewrite replaces the log with a new one holding only the records produced by emit.
// The replaced log is kept as backup generation 1, older backups are shifted up to
// keep at most `backups` generations.
//
// The new log is installed with a single rename. Until then the current log stays open
// and complete, so a failed rewrite leaves the log usable.
func (l *wal) rewrite(backups int, emit func(write func(rec record) error) error) error {
	current := logPath(l.dir, 0)
	tmpPath := tmpLogPath(l.dir)
	tmp, err := os.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create compacted log: %w", err)
	}
	abort := func(err error) error {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}

	w := bufio.NewWriterSize(tmp, l.bufSize)
	size := int64(headerSize)
	var buf []byte

	err = func() error {
		if _, err := w.Write(encodeHeader(l.seed)); err != nil {
			return err
		}
		if err := emit(func(rec record) error {
			buf = encodeRecord(buf[:0], rec)
			size += int64(len(buf))
			_, err := w.Write(buf)
			return err
		}); err != nil {
			return err
		}
		if err := w.Flush(); err != nil {
			return err
		}
		return tmp.Sync()
	}()
	if err != nil {
		return abort(fmt.Errorf("write compacted log: %w", err))
	}

	// the backup must hold every record of the current log
	if err := l.w.Flush(); err != nil {
		return abort(fmt.Errorf("flush log: %w", err))
	}
	if backups > 0 {
		if err := rotate(l.dir, backups); err != nil {
			return abort(err)
		}
	}

	if err := os.Rename(tmpPath, current); err != nil {
		return abort(fmt.Errorf("install compacted log: %w", err))
	}
	if err := syncDir(l.dir); err != nil {
		log.Warningf("sync store directory %s: %v", l.dir, err)
	}

	if err := l.file.Close(); err != nil {
		log.Warningf("close replaced log: %v", err)
	}
	l.file = tmp
	l.w = bufio.NewWriterSize(tmp, l.bufSize)
	l.size = size
	return nil
}

// rotate shifts the backup generations and links the current log as generation 1.
// The current log itself is not touched.
func rotate(dir string, backups int) error {
	for gen := backups; gen > 1; gen-- {
		if err := os.Rename(logPath(dir, gen-1), logPath(dir, gen)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("rotate log backup %d: %w", gen-1, err)
		}
	}

	first := logPath(dir, 1)
	if err := os.Remove(first); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("rotate log: %w", err)
	}
	if err := os.Link(logPath(dir, 0), first); err != nil {
		if err := copyFile(logPath(dir, 0), first); err != nil {
			return fmt.Errorf("rotate log: %w", err)
		}
	}
	return nil
}

// copyFile copies src to dst and syncs dst, for file systems without hard links
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}

// syncDir makes renames inside dir durable
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

// sizeOnDisk returns the size of the log and all backup generations
func (l *wal) sizeOnDisk(backups int) int64 {
	total := l.size
	for gen := 1; gen <= backups; gen++ {
		if stat, err := os.Stat(logPath(l.dir, gen)); err == nil {
			total += stat.Size()
		}
	}
	return total
}

// close flushes and syncs the log
func (l *wal) close() error {
	if err := l.w.Flush(); err != nil {
		l.file.Close()
		return fmt.Errorf("flush log: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		l.file.Close()
		return fmt.Errorf("sync log: %w", err)
	}
	return l.file.Close()
}
