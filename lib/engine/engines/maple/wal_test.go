package maple

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ValentinKolb/scdb/lib/engine"
)

func testOptions(t *testing.T) *engine.Options {
	opts := engine.DefaultOptions(t.TempDir())
	opts.CompactionInterval = 0
	return opts
}

func mustOpen(t *testing.T, opts *engine.Options) engine.Engine {
	e, err := Open(opts)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func fileSize(t *testing.T, path string) int64 {
	stat, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat %s failed: %v", path, err)
	}
	return stat.Size()
}

func TestTornTailIsCutOff(t *testing.T) {
	opts := testOptions(t)

	e := mustOpen(t, opts)
	for i := 0; i < 10; i++ {
		if err := e.Set([]byte(fmt.Sprintf("key-%d", i)), []byte("value")); err != nil {
			t.Fatal(err)
		}
	}
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}

	// simulate a crash in the middle of the last record
	path := logPath(opts.StorePath, 0)
	intact := fileSize(t, path)
	if err := os.Truncate(path, intact-3); err != nil {
		t.Fatal(err)
	}

	e = mustOpen(t, opts)
	for i := 0; i < 9; i++ {
		if _, found, _ := e.Get([]byte(fmt.Sprintf("key-%d", i))); !found {
			t.Errorf("Expected key-%d to survive", i)
		}
	}
	if _, found, _ := e.Get([]byte("key-9")); found {
		t.Errorf("The torn record must not be replayed")
	}

	// new writes land after the last intact record
	if err := e.Set([]byte("key-9"), []byte("rewritten")); err != nil {
		t.Fatal(err)
	}
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
	e = mustOpen(t, opts)
	if value, found, _ := e.Get([]byte("key-9")); !found || string(value) != "rewritten" {
		t.Errorf("Expected rewritten key-9 after reopen, got %q (found=%v)", value, found)
	}
}

func TestGarbledRecordIsCutOff(t *testing.T) {
	opts := testOptions(t)

	e := mustOpen(t, opts)
	if err := e.Set([]byte("first"), []byte("value")); err != nil {
		t.Fatal(err)
	}
	if err := e.Set([]byte("second"), []byte("value")); err != nil {
		t.Fatal(err)
	}
	e.Close()

	// flip a byte in the value of the last record, its checksum no longer matches
	path := logPath(opts.StorePath, 0)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	data[len(data)-5] ^= 0xff
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	e = mustOpen(t, opts)
	if _, found, _ := e.Get([]byte("first")); !found {
		t.Errorf("Expected first record to survive")
	}
	if _, found, _ := e.Get([]byte("second")); found {
		t.Errorf("Record with bad checksum must not be replayed")
	}
}

func TestBadMagicIsCorruption(t *testing.T) {
	opts := testOptions(t)
	if err := os.MkdirAll(opts.StorePath, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(logPath(opts.StorePath, 0), []byte("NOTMAPLE-and-some-more-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Open(opts); !errors.Is(err, engine.ErrCorrupted) {
		t.Errorf("Expected ErrCorrupted, got %v", err)
	}
}

func TestCompactionShrinksLog(t *testing.T) {
	opts := testOptions(t)
	e := mustOpen(t, opts)

	for round := 0; round < 20; round++ {
		for i := 0; i < 50; i++ {
			if err := e.Set([]byte(fmt.Sprintf("key-%d", i)), []byte(fmt.Sprintf("value-%d", round))); err != nil {
				t.Fatal(err)
			}
		}
	}

	path := logPath(opts.StorePath, 0)
	before := fileSize(t, path)
	if err := e.Compact(); err != nil {
		t.Fatal(err)
	}
	after := fileSize(t, path)

	if after >= before {
		t.Errorf("Expected log to shrink, before %d bytes, after %d bytes", before, after)
	}
	if value, found, _ := e.Get([]byte("key-7")); !found || string(value) != "value-19" {
		t.Errorf("Expected latest value after compaction, got %q", value)
	}
}

func TestBackupGenerations(t *testing.T) {
	opts := testOptions(t)
	opts.RedundantBlocks = 2
	e := mustOpen(t, opts)

	for round := 1; round <= 3; round++ {
		if err := e.Set([]byte("key"), []byte(fmt.Sprintf("round-%d", round))); err != nil {
			t.Fatal(err)
		}
		if err := e.Compact(); err != nil {
			t.Fatal(err)
		}
	}

	for gen := 1; gen <= 2; gen++ {
		if _, err := os.Stat(logPath(opts.StorePath, gen)); err != nil {
			t.Errorf("Expected backup generation %d: %v", gen, err)
		}
	}
	if _, err := os.Stat(logPath(opts.StorePath, 3)); !os.IsNotExist(err) {
		t.Errorf("Expected at most 2 backup generations, got: %v", err)
	}

	// no backups at all
	opts = testOptions(t)
	opts.RedundantBlocks = 0
	e = mustOpen(t, opts)
	if err := e.Set([]byte("key"), []byte("value")); err != nil {
		t.Fatal(err)
	}
	if err := e.Compact(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(logPath(opts.StorePath, 1)); !os.IsNotExist(err) {
		t.Errorf("Expected no backup generation, got: %v", err)
	}
}

func TestBackgroundCompaction(t *testing.T) {
	opts := testOptions(t)
	opts.CompactionInterval = 20 * time.Millisecond
	e := mustOpen(t, opts)

	for i := 0; i < 200; i++ {
		if err := e.Set([]byte("key"), []byte(fmt.Sprintf("value-%03d", i))); err != nil {
			t.Fatal(err)
		}
	}

	// once compacted, the log holds a single record
	compacted := int64(headerSize + len(encodeRecord(nil, record{op: opSet, key: []byte("key"), value: []byte("value-199")})))
	path := logPath(opts.StorePath, 0)

	var size int64
	for i := 0; i < 100 && size != compacted; i++ {
		time.Sleep(10 * time.Millisecond)
		// the log is briefly missing while it is swapped
		if stat, err := os.Stat(path); err == nil {
			size = stat.Size()
		}
	}
	if size != compacted {
		t.Errorf("Background compaction did not rewrite the log, size %d, expected %d", size, compacted)
	}
}

func TestFailedRotationKeepsLogWritable(t *testing.T) {
	opts := testOptions(t)
	opts.RedundantBlocks = 1
	e := mustOpen(t, opts)

	if err := e.Set([]byte("a"), []byte("1")); err != nil {
		t.Fatal(err)
	}

	// a non-empty directory in place of the first backup can't be replaced
	blocker := logPath(opts.StorePath, 1)
	if err := os.MkdirAll(filepath.Join(blocker, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := e.Compact(); err == nil {
		t.Fatal("Expected Compact to fail")
	}
	if _, err := os.Stat(tmpLogPath(opts.StorePath)); !os.IsNotExist(err) {
		t.Errorf("Expected compacted log to be removed, got: %v", err)
	}

	if err := e.Set([]byte("b"), []byte("2")); err != nil {
		t.Fatalf("Expected log to stay writable, got: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}

	e = mustOpen(t, opts)
	for _, key := range []string{"a", "b"} {
		if _, found, _ := e.Get([]byte(key)); !found {
			t.Errorf("Expected %s to survive the failed compaction", key)
		}
	}

	// once the blocker is gone compaction works again
	if err := os.RemoveAll(blocker); err != nil {
		t.Fatal(err)
	}
	if err := e.Compact(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(blocker); err != nil {
		t.Errorf("Expected backup generation 1: %v", err)
	}
}

func TestBackupKeepsReplacedLog(t *testing.T) {
	opts := testOptions(t)
	opts.RedundantBlocks = 1
	e := mustOpen(t, opts)

	if err := e.Set([]byte("key"), []byte("old")); err != nil {
		t.Fatal(err)
	}
	if err := e.Compact(); err != nil {
		t.Fatal(err)
	}
	// written to the new log only
	if err := e.Set([]byte("key"), []byte("new")); err != nil {
		t.Fatal(err)
	}
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}

	if fileSize(t, logPath(opts.StorePath, 1)) >= fileSize(t, logPath(opts.StorePath, 0)) {
		t.Errorf("Expected backup to hold fewer records than the current log")
	}
}

func TestMissingLogIsRecovered(t *testing.T) {
	tests := []struct {
		name   string
		source func(dir string) string
	}{
		{name: "from backup", source: func(dir string) string { return logPath(dir, 1) }},
		{name: "from compacted log", source: tmpLogPath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions(t)
			opts.RedundantBlocks = 1
			e := mustOpen(t, opts)
			if err := e.Set([]byte("key"), []byte("value")); err != nil {
				t.Fatal(err)
			}
			if err := e.Compact(); err != nil {
				t.Fatal(err)
			}
			if err := e.Close(); err != nil {
				t.Fatal(err)
			}

			// simulate a crash between removing the log and installing its replacement
			current := logPath(opts.StorePath, 0)
			if err := os.Rename(current, tt.source(opts.StorePath)); err != nil {
				t.Fatal(err)
			}

			e = mustOpen(t, opts)
			if value, found, _ := e.Get([]byte("key")); !found || string(value) != "value" {
				t.Errorf("Expected key to be recovered, got %q (found=%v)", value, found)
			}
			if _, err := os.Stat(current); err != nil {
				t.Errorf("Expected log to be installed: %v", err)
			}
		})
	}
}

func TestLeftoverCompactedLogIsRemoved(t *testing.T) {
	opts := testOptions(t)
	e := mustOpen(t, opts)
	if err := e.Set([]byte("key"), []byte("value")); err != nil {
		t.Fatal(err)
	}
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}

	tmp := tmpLogPath(opts.StorePath)
	if err := os.WriteFile(tmp, []byte("partial"), 0o644); err != nil {
		t.Fatal(err)
	}

	e = mustOpen(t, opts)
	if _, found, _ := e.Get([]byte("key")); !found {
		t.Error("Expected key to survive")
	}
	if _, err := os.Stat(tmp); !os.IsNotExist(err) {
		t.Errorf("Expected leftover compacted log to be removed, got: %v", err)
	}
}
