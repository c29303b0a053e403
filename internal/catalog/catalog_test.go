package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/topcoder-platform/challenge-api-v6-sub000/internal/phase"
)

type countingSource struct {
	defs      []phase.Definition
	templates map[string]phase.Template
	defCalls  atomic.Int32
	tplCalls  atomic.Int32
	delay     time.Duration
	err       error
}

func (s *countingSource) ListDefinitions(context.Context) ([]phase.Definition, error) {
	s.defCalls.Add(1)
	time.Sleep(s.delay)
	if s.err != nil {
		return nil, s.err
	}
	return s.defs, nil
}

func (s *countingSource) Template(_ context.Context, id string) (phase.Template, error) {
	s.tplCalls.Add(1)
	time.Sleep(s.delay)
	t, ok := s.templates[id]
	if !ok {
		return phase.Template{}, phase.BadRequest(phase.ErrInvalidTemplateID, id)
	}
	return t, nil
}

func newSource() *countingSource {
	return &countingSource{
		defs: []phase.Definition{
			{ID: "reg", Name: phase.NameRegistration, DefaultDuration: 86400},
			{ID: "sub", Name: phase.NameSubmission, DefaultDuration: 604800},
		},
		templates: map[string]phase.Template{
			"std": {ID: "std", IsActive: true, Entries: []phase.TemplateEntry{
				{PhaseID: "reg", DefaultDuration: 86400},
				{PhaseID: "sub", DefaultDuration: 604800, Predecessor: "reg"},
			}},
		},
	}
}

func TestCacheDefinitions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	src := newSource()
	c := New(src, src)

	defs, err := c.Definitions(ctx)
	require.NoError(t, err)
	assert.Len(t, defs, 2)

	d, ok, err := c.Definition(ctx, "sub")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, phase.NameSubmission, d.Name)

	d, ok, err = c.DefinitionByName(ctx, phase.NameRegistration)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "reg", d.ID)

	_, ok, err = c.DefinitionByName(ctx, "Nope")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, int32(1), src.defCalls.Load(), "definitions loaded once")

	// Mutating the returned map does not leak into the cache.
	delete(defs, "reg")
	_, ok, _ = c.Definition(ctx, "reg")
	assert.True(t, ok)
}

func TestCacheConcurrentFirstLoad(t *testing.T) {
	t.Parallel()
	src := newSource()
	src.delay = 20 * time.Millisecond
	c := New(src, src)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Template(context.Background(), "std")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), src.tplCalls.Load())
}

func TestCacheTemplate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	src := newSource()
	c := New(src, src)

	r, err := c.Template(ctx, "std")
	require.NoError(t, err)
	assert.Len(t, r.Entries(), 2)
	e, ok := r.Entry("sub")
	require.True(t, ok)
	assert.Equal(t, "reg", e.Predecessor)
	rank, ok := r.Rank("sub")
	require.True(t, ok)
	assert.Equal(t, 1, rank)

	_, err = c.Template(ctx, "")
	assert.ErrorIs(t, err, phase.ErrInvalidTemplateID)

	_, err = c.Template(ctx, "missing")
	assert.True(t, phase.IsBadRequest(err))
	assert.ErrorIs(t, err, phase.ErrInvalidTemplateID)
}

func TestCacheInvalidate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	src := newSource()
	c := New(src, src)

	_, err := c.Template(ctx, "std")
	require.NoError(t, err)
	_, err = c.Definitions(ctx)
	require.NoError(t, err)

	// Underlying data changes; the cache keeps serving the old copy.
	src.defs = append(src.defs, phase.Definition{ID: "rev", Name: phase.NameReview})
	defs, _ := c.Definitions(ctx)
	assert.Len(t, defs, 2)

	c.InvalidateTemplate("std")
	_, err = c.Template(ctx, "std")
	require.NoError(t, err)
	assert.Equal(t, int32(2), src.tplCalls.Load())
	assert.Equal(t, int32(1), src.defCalls.Load())

	c.Invalidate()
	defs, _ = c.Definitions(ctx)
	assert.Len(t, defs, 3)
	assert.Equal(t, int32(2), src.defCalls.Load())
}

// gatedSource holds every template load until release is closed.
type gatedSource struct {
	*countingSource
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func (s *gatedSource) Template(ctx context.Context, id string) (phase.Template, error) {
	s.once.Do(func() { close(s.started) })
	<-s.release
	return s.countingSource.Template(ctx, id)
}

func TestCacheInvalidateTemplateDropsInflightLoad(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	src := newSource()
	gated := &gatedSource{countingSource: src, started: make(chan struct{}), release: make(chan struct{})}
	c := New(src, gated)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := c.Template(ctx, "std")
		assert.NoError(t, err)
	}()
	<-gated.started
	c.InvalidateTemplate("std")
	close(gated.release)
	<-done

	_, err := c.Template(ctx, "std")
	require.NoError(t, err)
	assert.Equal(t, int32(2), src.tplCalls.Load(), "the load that raced the flush is not cached")
}

func TestParseTemplateFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "mini.yaml")
	writeFile(t, path, "id: mini\nname: Mini\nactive: true\nphases:\n  - phase_id: reg\n    duration: 3600\n")

	tpl, err := ParseTemplateFile(path)
	require.NoError(t, err)
	assert.Equal(t, "mini", tpl.ID)
	require.Len(t, tpl.Entries, 1)
	assert.Equal(t, "reg", tpl.Entries[0].PhaseID)

	_, err = ParseTemplateFile(filepath.Join(dir, "absent.toml"))
	assert.Error(t, err)
}

func TestCacheSourceError(t *testing.T) {
	t.Parallel()
	src := newSource()
	src.err = errors.New("db down")
	c := New(src, src)

	_, err := c.Definitions(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")

	// Failures are not cached.
	src.err = nil
	_, err = c.Definitions(context.Background())
	assert.NoError(t, err)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestFileSource(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()

	writeFile(t, filepath.Join(dir, DefinitionsFile), `
[[phases]]
id = "reg"
name = "Registration"
description = "Members register"
duration = 86400

[[phases]]
id = "sub"
name = "Submission"
duration = 604800
`)
	writeFile(t, filepath.Join(dir, TemplatesDir, "standard.toml"), `
id = "std"
name = "Standard"

[[phases]]
phase_id = "reg"
duration = 86400

[[phases]]
phase_id = "sub"
duration = 604800
predecessor = "reg"
`)
	writeFile(t, filepath.Join(dir, TemplatesDir, "retired.yaml"), `
id: old
name: Retired
active: false
phases:
  - phase_id: reg
    duration: 3600
`)
	writeFile(t, filepath.Join(dir, TemplatesDir, "README.md"), "ignored")

	src := FileSource{Dir: dir}

	defs, err := src.ListDefinitions(ctx)
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "Members register", defs[0].Description)
	assert.Equal(t, int64(604800), defs[1].DefaultDuration)

	all, err := src.Templates(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "old", all[0].ID)
	assert.False(t, all[0].IsActive)

	std, err := src.Template(ctx, "std")
	require.NoError(t, err)
	assert.True(t, std.IsActive, "active defaults to true")
	assert.Equal(t, []phase.TemplateEntry{
		{PhaseID: "reg", DefaultDuration: 86400},
		{PhaseID: "sub", DefaultDuration: 604800, Predecessor: "reg"},
	}, std.Entries)

	_, err = src.Template(ctx, "nope")
	assert.ErrorIs(t, err, phase.ErrInvalidTemplateID)
}

func TestFileSourceMissingDir(t *testing.T) {
	t.Parallel()
	src := FileSource{Dir: filepath.Join(t.TempDir(), "absent")}
	defs, err := src.ListDefinitions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, defs)
	tpls, err := src.Templates(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tpls)
}

func TestFileSourceRejectsTemplateWithoutID(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, TemplatesDir, "bad.toml"), "name = \"x\"\n")
	_, err := FileSource{Dir: dir}.Templates(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.toml")
}

func TestWatcherReportsChanges(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, TemplatesDir), 0o755))

	w, err := NewWatcher(dir)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	path := filepath.Join(dir, TemplatesDir, "fast.yaml")
	writeFile(t, path, "id: fast\n")

	select {
	case ch := <-w.Changes:
		assert.Equal(t, path, ch.File)
		assert.False(t, ch.Removed)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for catalog change")
	}
}
