package batch

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/pkg/errors"

	"github.com/neuro220/AddonGrab/internal/identifier"
)

const (
	validID1 = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	validID2 = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	validID3 = "cccccccccccccccccccccccccccccccc"
)

// fakeDownloader records the IDs it was asked for and serves canned
// responses.
type fakeDownloader struct {
	calls []string
	data  map[string][]byte
	errs  map[string]error
}

func (f *fakeDownloader) Download(ctx context.Context, id, version string) ([]byte, error) {
	f.calls = append(f.calls, id)
	if err := f.errs[id]; err != nil {
		return nil, err
	}
	if data, ok := f.data[id]; ok {
		return data, nil
	}
	return []byte("archive for " + id), nil
}

// chdir switches to a temp directory for the duration of the test so
// default output paths land somewhere disposable.
func chdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(old) })
	return dir
}

func TestExpandIDs(t *testing.T) {
	t.Run("comma list", func(t *testing.T) {
		got, err := ExpandIDs("a, b,,c ")
		if err != nil {
			t.Fatalf("ExpandIDs() error = %v", err)
		}
		want := []string{"a", "b", "c"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("ExpandIDs() = %v, want %v", got, want)
		}
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "ids.txt")
		if err := os.WriteFile(path, []byte("one\n\ntwo\n  three  \n"), 0o644); err != nil {
			t.Fatal(err)
		}
		got, err := ExpandIDs(path)
		if err != nil {
			t.Fatalf("ExpandIDs() error = %v", err)
		}
		want := []string{"one", "two", "three"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("ExpandIDs() = %v, want %v", got, want)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := ExpandIDs(filepath.Join(t.TempDir(), "nope.txt"))
		if err == nil {
			t.Fatal("ExpandIDs() expected error for missing file")
		}
		if !strings.Contains(err.Error(), "batch file") {
			t.Errorf("error %q should mention the batch file", err)
		}
	})
}

func TestRunSingleSuccess(t *testing.T) {
	dir := chdir(t)
	dl := &fakeDownloader{}

	sum, err := Run(context.Background(), Job{
		IDs:      []string{validID1},
		Platform: identifier.Chrome,
	}, dl)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if sum.Downloaded != 1 || sum.Skipped != 0 {
		t.Errorf("summary = %+v, want 1 downloaded", sum)
	}

	got, err := os.ReadFile(filepath.Join(dir, validID1+".zip"))
	if err != nil {
		t.Fatalf("output file not written: %v", err)
	}
	if string(got) != "archive for "+validID1 {
		t.Errorf("output = %q", got)
	}
}

func TestRunExplicitOutput(t *testing.T) {
	dir := chdir(t)
	out := filepath.Join(dir, "custom.zip")

	_, err := Run(context.Background(), Job{
		IDs:      []string{validID1},
		Platform: identifier.Chrome,
		Output:   out,
	}, &fakeDownloader{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("explicit output not written: %v", err)
	}
}

func TestRunExplicitOutputRequiresSingleID(t *testing.T) {
	dl := &fakeDownloader{}
	_, err := Run(context.Background(), Job{
		IDs:      []string{validID1, validID2},
		Platform: identifier.Chrome,
		Output:   "out.zip",
	}, dl)
	if err == nil {
		t.Fatal("Run() expected error for explicit output with multiple IDs")
	}
	if len(dl.calls) != 0 {
		t.Errorf("no downloads should start, got %v", dl.calls)
	}
}

func TestRunInvalidIDAborts(t *testing.T) {
	chdir(t)
	dl := &fakeDownloader{}

	sum, err := Run(context.Background(), Job{
		IDs:      []string{validID1, "NOT-VALID", validID3},
		Platform: identifier.Chrome,
	}, dl)
	if err == nil {
		t.Fatal("Run() expected error for invalid ID")
	}
	if !strings.Contains(err.Error(), "NOT-VALID") {
		t.Errorf("error %q should name the offending ID", err)
	}
	// The first ID completed, the run aborted at the second; the third
	// must never have been attempted.
	if want := []string{validID1}; !reflect.DeepEqual(dl.calls, want) {
		t.Errorf("downloads attempted = %v, want %v", dl.calls, want)
	}
	if sum.Downloaded != 1 {
		t.Errorf("downloaded = %d, want 1", sum.Downloaded)
	}
}

func TestRunInvalidIDContinues(t *testing.T) {
	chdir(t)
	dl := &fakeDownloader{}

	sum, err := Run(context.Background(), Job{
		IDs:             []string{validID1, "NOT-VALID", validID3},
		Platform:        identifier.Chrome,
		ContinueOnError: true,
	}, dl)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if want := []string{validID1, validID3}; !reflect.DeepEqual(dl.calls, want) {
		t.Errorf("downloads attempted = %v, want %v", dl.calls, want)
	}
	if sum.Downloaded != 2 || sum.Skipped != 1 {
		t.Errorf("summary = %+v, want 2 downloaded and 1 skipped", sum)
	}
}

func TestRunExistingOutput(t *testing.T) {
	dir := chdir(t)
	existing := filepath.Join(dir, validID1+".zip")
	if err := os.WriteFile(existing, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Run("aborts without force", func(t *testing.T) {
		dl := &fakeDownloader{}
		_, err := Run(context.Background(), Job{
			IDs:      []string{validID1},
			Platform: identifier.Chrome,
		}, dl)
		if err == nil || !strings.Contains(err.Error(), "already exists") {
			t.Errorf("Run() error = %v, want already-exists error", err)
		}
		if len(dl.calls) != 0 {
			t.Errorf("no download should start, got %v", dl.calls)
		}
	})

	t.Run("skips with continue-on-error", func(t *testing.T) {
		sum, err := Run(context.Background(), Job{
			IDs:             []string{validID1},
			Platform:        identifier.Chrome,
			ContinueOnError: true,
		}, &fakeDownloader{})
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if sum.Skipped != 1 {
			t.Errorf("skipped = %d, want 1", sum.Skipped)
		}
		got, _ := os.ReadFile(existing)
		if string(got) != "old" {
			t.Error("existing file must not be touched")
		}
	})

	t.Run("overwrites with force", func(t *testing.T) {
		_, err := Run(context.Background(), Job{
			IDs:      []string{validID1},
			Platform: identifier.Chrome,
			Force:    true,
		}, &fakeDownloader{})
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		got, _ := os.ReadFile(existing)
		if string(got) != "archive for "+validID1 {
			t.Errorf("output = %q, want overwritten archive", got)
		}
	})
}

func TestRunDownloadFailure(t *testing.T) {
	chdir(t)
	dl := &fakeDownloader{
		errs: map[string]error{validID2: errors.New("upstream exploded")},
	}
	job := Job{
		IDs:      []string{validID1, validID2, validID3},
		Platform: identifier.Chrome,
	}

	t.Run("aborts", func(t *testing.T) {
		dl.calls = nil
		_, err := Run(context.Background(), job, dl)
		if err == nil || !strings.Contains(err.Error(), validID2) {
			t.Errorf("Run() error = %v, want error naming %s", err, validID2)
		}
		if !strings.Contains(err.Error(), "upstream exploded") {
			t.Errorf("error %q should carry the underlying cause", err)
		}
		if want := []string{validID1, validID2}; !reflect.DeepEqual(dl.calls, want) {
			t.Errorf("downloads attempted = %v, want %v", dl.calls, want)
		}
	})

	t.Run("failed pipeline writes no file", func(t *testing.T) {
		if _, err := os.Stat(validID2 + ".zip"); !os.IsNotExist(err) {
			t.Error("failed download must not leave an output file")
		}
	})

	t.Run("continues", func(t *testing.T) {
		dl.calls = nil
		job := job
		job.ContinueOnError = true
		job.Force = true
		sum, err := Run(context.Background(), job, dl)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if sum.Downloaded != 2 || sum.Skipped != 1 {
			t.Errorf("summary = %+v, want 2 downloaded and 1 skipped", sum)
		}
	})
}

func TestRunContextCanceled(t *testing.T) {
	chdir(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dl := &fakeDownloader{}
	_, err := Run(ctx, Job{IDs: []string{validID1}, Platform: identifier.Chrome}, dl)
	if err != context.Canceled {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if len(dl.calls) != 0 {
		t.Errorf("no download should start after cancellation, got %v", dl.calls)
	}
}
