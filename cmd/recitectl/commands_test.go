package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/maauso/recitation-api/internal/assembler"
	"github.com/maauso/recitation-api/internal/bulk"
	"github.com/maauso/recitation-api/internal/catalog"
	"github.com/maauso/recitation-api/internal/connectivity"
	"github.com/maauso/recitation-api/internal/progress"
	"github.com/maauso/recitation-api/internal/store"
	"github.com/maauso/recitation-api/internal/unit"
)

type storingResolver struct {
	store store.Store
	fail  map[string]bool
}

func (r *storingResolver) Resolve(ctx context.Context, groupID, unitIndex int, _ bool) ([]byte, error) {
	u, err := unit.New(groupID, unitIndex, []byte("mp3"))
	if err != nil {
		return nil, err
	}
	if r.fail[unit.MustKey(groupID, unitIndex)] {
		return nil, errors.New("status 404")
	}
	if err := r.store.Put(ctx, u); err != nil {
		return nil, err
	}
	return u.Data, nil
}

type fakeAssembler struct {
	got assembler.Request
}

func (a *fakeAssembler) Assemble(_ context.Context, req assembler.Request) ([]byte, error) {
	a.got = req
	req.Progress.Report(progress.NewUpdate("", req.Units(), req.Units(), "", nil))
	return []byte("RIFFdata"), nil
}

type cliTestEnv struct {
	cache     *store.MemoryStore
	assembler *fakeAssembler
	svc       *services
}

func setupCLITestEnv(t *testing.T, failing ...string) *cliTestEnv {
	t.Helper()
	cat := catalog.NewStatic(
		catalog.Chapter{ID: 1, Name: "Al-Fatiha", UnitCount: 3},
		catalog.Chapter{ID: 2, Name: "Al-Baqara", UnitCount: 2},
	)
	cat.SetVerses(1, []catalog.Verse{{Index: 1, Text: "alpha"}, {Index: 2, Text: "beta"}, {Index: 3, Text: "gamma"}})

	cache := store.NewMemoryStore()
	fail := make(map[string]bool)
	for _, k := range failing {
		fail[k] = true
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	asm := &fakeAssembler{}
	return &cliTestEnv{
		cache:     cache,
		assembler: asm,
		svc: &services{
			Catalog:    cat,
			Assembler:  asm,
			Downloader: bulk.New(&storingResolver{store: cache, fail: fail}, cat, connectivity.Static(true), logger),
			Cache:      cache,
		},
	}
}

func runCLI(t *testing.T, env *cliTestEnv, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand(newCommandContext(env.svc))
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected %q to contain %q", haystack, needle)
	}
}

func TestChaptersCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env, "chapters")
	if err != nil {
		t.Fatalf("chapters: %v", err)
	}
	requireContains(t, out, "Al-Fatiha")
	requireContains(t, out, "Al-Baqara")
}

func TestVersesCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env, "verses", "1", "--from", "2")
	if err != nil {
		t.Fatalf("verses: %v", err)
	}
	if out != "2. beta\n3. gamma\n" {
		t.Errorf("unexpected output %q", out)
	}

	if _, _, err := runCLI(t, env, "verses", "x"); err == nil {
		t.Error("expected error for non-numeric group")
	}
}

func TestAssembleCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	path := filepath.Join(t.TempDir(), "out.wav")

	out, stderr, err := runCLI(t, env, "assemble", "1", "2", "3", "-o", path)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	requireContains(t, out, "Wrote "+path)
	requireContains(t, stderr, "[100%] verse 2/2")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(data) != "RIFFdata" {
		t.Errorf("output = %q", data)
	}
	if got := env.assembler.got; got.GroupID != 1 || got.StartUnit != 2 || got.EndUnit != 3 || !got.WriteThrough {
		t.Errorf("unexpected request %+v", got)
	}
}

func TestAssembleCommand_Stdout(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env, "assemble", "1", "1", "1", "-o", "-", "--no-cache")
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if out != "RIFFdata" {
		t.Errorf("stdout = %q", out)
	}
	if env.assembler.got.WriteThrough {
		t.Error("expected --no-cache to disable write-through")
	}
}

func TestAssembleCommand_InvalidArgs(t *testing.T) {
	env := setupCLITestEnv(t)

	for _, args := range [][]string{
		{"assemble", "1", "3", "2"},
		{"assemble", "1", "0", "2"},
		{"assemble", "1", "2"},
	} {
		if _, _, err := runCLI(t, env, args...); err == nil {
			t.Errorf("expected error for %v", args)
		}
	}
}

func TestDownloadCommand(t *testing.T) {
	env := setupCLITestEnv(t, "002001")

	out, stderr, err := runCLI(t, env, "download", "2", "1")
	if !errors.Is(err, bulk.ErrPartialFailure) {
		t.Fatalf("expected partial failure, got %v", err)
	}
	requireContains(t, out, "Stored 4 of 5 verses")
	requireContains(t, out, "status 404")
	requireContains(t, stderr, "[ 20%] verse 1/3 of chapter 1")
	requireContains(t, stderr, "[100%] verse 2/2 of chapter 2")

	n, err := env.cache.Count(context.Background())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 4 {
		t.Errorf("cached = %d, want 4", n)
	}
}

func TestCacheCommands(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, env, "download", "1", "2"); err != nil {
		t.Fatalf("download: %v", err)
	}

	out, _, err := runCLI(t, env, "cache", "list")
	if err != nil {
		t.Fatalf("cache list: %v", err)
	}
	requireContains(t, out, "Total")

	out, _, err = runCLI(t, env, "cache", "show", "1")
	if err != nil {
		t.Fatalf("cache show: %v", err)
	}
	requireContains(t, out, "Chapter 1: 3 cached [1 2 3]")

	if _, _, err := runCLI(t, env, "cache", "delete", "1"); err != nil {
		t.Fatalf("cache delete: %v", err)
	}
	out, _, err = runCLI(t, env, "cache", "show", "1")
	if err != nil {
		t.Fatalf("cache show: %v", err)
	}
	requireContains(t, out, "Chapter 1: 0 cached []")

	out, _, err = runCLI(t, env, "cache", "clear")
	if err != nil {
		t.Fatalf("cache clear: %v", err)
	}
	requireContains(t, out, "Cleared 2 verses")

	out, _, err = runCLI(t, env, "cache", "list")
	if err != nil {
		t.Fatalf("cache list: %v", err)
	}
	requireContains(t, out, "Cache is empty")
}

func TestRenderTable(t *testing.T) {
	out := renderTable([]string{"A", "B"}, [][]string{{"1"}, {"2", "x"}}, []columnAlignment{alignRight})
	requireContains(t, out, "A")
	requireContains(t, out, "x")
	if renderTable(nil, nil, nil) != "" {
		t.Error("expected empty table for no headers")
	}
}
