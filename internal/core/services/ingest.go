package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-ingest/internal/logger"
)

// Ensure IngestOrchestrator implements the interface.
var _ driving.IngestService = (*IngestOrchestrator)(nil)

const (
	defaultLockTTL      = 10 * time.Minute
	defaultStoreTimeout = 2 * time.Minute
	archiveTimeout      = 2 * time.Minute
)

// callCounter is implemented by embedding services that count provider calls.
type callCounter interface {
	Calls() int
}

// IngestOrchestrator runs the pipeline: load, extract, normalise, chunk,
// deduplicate, embed and persist.
type IngestOrchestrator struct {
	settings   domain.Settings
	loaders    []driven.Loader
	extractors driven.ExtractorRegistry
	normaliser driven.TextNormaliser
	pipeline   driven.PostProcessorPipeline
	embedder   driven.EmbeddingService
	store      driven.VectorStore

	cache    driven.DedupCache
	archive  driven.SourceArchive
	lock     driven.RunLock
	progress driving.ProgressFunc

	lockTTL      time.Duration
	storeTimeout time.Duration

	// embedCalls counts EmbedBatch calls when the embedder does not.
	embedCalls atomic.Int64
}

// IngestOption configures an IngestOrchestrator.
type IngestOption func(*IngestOrchestrator)

// WithDedupCache shares persisted fingerprints across processes.
func WithDedupCache(cache driven.DedupCache) IngestOption {
	return func(o *IngestOrchestrator) { o.cache = cache }
}

// WithArchive copies every raw document to the archive before extraction.
func WithArchive(archive driven.SourceArchive) IngestOption {
	return func(o *IngestOrchestrator) { o.archive = archive }
}

// WithRunLock serialises runs on the same collection across processes.
func WithRunLock(lock driven.RunLock, ttl time.Duration) IngestOption {
	return func(o *IngestOrchestrator) {
		o.lock = lock
		if ttl > 0 {
			o.lockTTL = ttl
		}
	}
}

// WithProgress receives progress events.
func WithProgress(fn driving.ProgressFunc) IngestOption {
	return func(o *IngestOrchestrator) { o.progress = fn }
}

// WithStoreTimeout bounds each store call, including dedup lookups.
func WithStoreTimeout(d time.Duration) IngestOption {
	return func(o *IngestOrchestrator) {
		if d > 0 {
			o.storeTimeout = d
		}
	}
}

// NewIngestOrchestrator creates an orchestrator. The settings must already
// be validated. embedder may be nil for dry runs.
func NewIngestOrchestrator(
	settings domain.Settings,
	loaders []driven.Loader,
	extractors driven.ExtractorRegistry,
	normaliser driven.TextNormaliser,
	pipeline driven.PostProcessorPipeline,
	embedder driven.EmbeddingService,
	store driven.VectorStore,
	opts ...IngestOption,
) *IngestOrchestrator {
	o := &IngestOrchestrator{
		settings:     settings,
		loaders:      loaders,
		extractors:   extractors,
		normaliser:   normaliser,
		pipeline:     pipeline,
		embedder:     embedder,
		store:        store,
		lockTTL:      defaultLockTTL,
		storeTimeout: defaultStoreTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes one ingestion run. Only configuration problems are returned
// as errors; everything else is recorded in the report.
func (o *IngestOrchestrator) Run(ctx context.Context) (*domain.RunReport, error) {
	report := &domain.RunReport{
		RunID:      uuid.NewString(),
		Mode:       o.settings.Mode,
		Collection: o.settings.Collection,
		StartedAt:  time.Now(),
	}

	loaders, warnings, err := o.activeLoaders(ctx)
	if err != nil {
		return nil, err
	}
	report.Warnings = append(report.Warnings, warnings...)
	for _, w := range warnings {
		logger.Warn("%s", w)
	}

	if !o.settings.DryRun && o.embedder == nil {
		return nil, domain.NewConfigError("embedding_provider", "no embedding service configured")
	}

	if o.lock != nil {
		release, err := o.acquireLock(ctx)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	logger.Info("Starting run %s (mode %s, collection %s, store %s)",
		report.RunID, o.settings.Mode, o.settings.Collection, o.store.Name())

	dedup := NewDedupIndex(o.settings.Collection, o.store, o.cache, WithLookupTimeout(o.storeTimeout))
	if o.settings.Store.PreloadIDs {
		if n, err := dedup.Preload(ctx); err != nil {
			logger.Warn("%v", err)
		} else if n > 0 {
			logger.Debug("Preloaded %d fingerprints", n)
		}
	}

	callsBefore := o.calls()

	agg := newAggregator(report, o.progress)
	go agg.run()

	r := &ingestRun{
		o:       o,
		runCtx:  ctx,
		dedup:   dedup,
		agg:     agg,
		group:   new(errgroup.Group),
		batches: o.settings.BatchSize,
		sources: make(map[sourceRef]*sourceState),
		refs:    make(map[string]struct{}),
	}
	r.group.SetLimit(max(1, o.settings.Concurrency))

	for _, loader := range loaders {
		logger.Section(loader.Name())
		r.consume(ctx, loader)
	}
	r.flush()
	_ = r.group.Wait()

	interrupted := ctx.Err() != nil
	agg.send(func(rep *domain.RunReport) {
		rep.EmbedCalls = o.calls() - callsBefore
		rep.Interrupted = interrupted
		rep.FinishedAt = time.Now()
		if o.settings.DryRun {
			rep.Warnings = append(rep.Warnings, "dry run: nothing was embedded or written")
		}
	}, &driving.ProgressEvent{Kind: driving.ProgressFinished, Ref: report.RunID})
	agg.close()

	if interrupted {
		logger.Warn("Run interrupted: %d chunks not dispatched", report.ChunksAborted)
	}
	logger.Info("Run %s complete: %d documents, %d chunks persisted, %d skipped, %d failed",
		report.RunID, report.DocumentsLoaded, report.ChunksPersisted, report.ChunksSkipped, report.ChunksFailed())
	return report, nil
}

// activeLoaders validates the loaders selected by the mode.
func (o *IngestOrchestrator) activeLoaders(ctx context.Context) ([]driven.Loader, []string, error) {
	return SelectLoaders(ctx, o.settings.Mode, o.loaders)
}

// SelectLoaders returns the loaders the mode includes whose input validates.
// In "both" mode a missing input is a warning unless every input is missing;
// otherwise a validation failure is returned as is.
func SelectLoaders(ctx context.Context, mode domain.Mode, loaders []driven.Loader) ([]driven.Loader, []string, error) {
	var (
		active   []driven.Loader
		warnings []string
		errs     []error
	)
	for _, l := range loaders {
		if !mode.Includes(l.Origin()) {
			continue
		}
		if err := l.Validate(ctx); err != nil {
			if mode != domain.ModeBoth {
				return nil, nil, err
			}
			errs = append(errs, err)
			warnings = append(warnings, fmt.Sprintf("skipping %s input: %v", l.Origin(), err))
			continue
		}
		active = append(active, l)
	}
	if len(active) == 0 {
		if len(errs) > 0 {
			return nil, nil, domain.NewConfigError("mode", "no usable input: %w", errors.Join(errs...))
		}
		return nil, nil, domain.NewConfigError("mode", "no loader for mode %q", mode)
	}
	return active, warnings, nil
}

// acquireLock takes the run lock and keeps it alive until the returned
// release function is called.
func (o *IngestOrchestrator) acquireLock(ctx context.Context) (func(), error) {
	name := "ingest:" + o.settings.Collection
	ok, err := o.lock.Acquire(ctx, name, o.lockTTL)
	if err != nil {
		return nil, domain.NewConfigError("redis_url", "acquire run lock: %w", err)
	}
	if !ok {
		return nil, &domain.ConfigError{
			Field: "collection",
			Err:   fmt.Errorf("%w for collection %q", domain.ErrLockHeld, o.settings.Collection),
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(o.lockTTL / 3)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				held, err := o.lock.Extend(context.WithoutCancel(ctx), name, o.lockTTL)
				if err != nil {
					logger.Warn("extend run lock: %v", err)
				} else if !held {
					logger.Warn("run lock %s was lost", name)
				}
			}
		}
	}()

	return func() {
		close(stop)
		<-done
		relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := o.lock.Release(relCtx, name); err != nil {
			logger.Warn("release run lock: %v", err)
		}
	}, nil
}

func (o *IngestOrchestrator) calls() int {
	if c, ok := o.embedder.(callCounter); ok {
		return c.Calls()
	}
	return int(o.embedCalls.Load())
}

// ingestRun holds the state of one Run call.
type ingestRun struct {
	o       *IngestOrchestrator
	runCtx  context.Context
	dedup   *DedupIndex
	agg     *aggregator
	group   *errgroup.Group
	batches int
	pending []domain.Chunk

	// sources tracks the chunks of each source until all its batches finish.
	mu      sync.Mutex
	sources map[sourceRef]*sourceState
	refs    map[string]struct{}

	// pruneMu orders prunes against the dedup checks of other documents.
	pruneMu sync.Mutex
}

// sourceRef identifies a source the way stored records do.
type sourceRef struct {
	origin domain.Origin
	id     string
}

// sourceState is the outcome so far of one source's batches.
type sourceState struct {
	keep    map[string]struct{}
	pending int
	failed  bool
}

// consume drains one loader. Documents are handled sequentially in loader order.
func (r *ingestRun) consume(ctx context.Context, loader driven.Loader) {
	docs, errs := loader.Load(ctx)
	for docs != nil || errs != nil {
		select {
		case doc, ok := <-docs:
			if !ok {
				docs = nil
				continue
			}
			if ctx.Err() != nil {
				continue
			}
			r.handleDocument(ctx, doc)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			r.loadFailed(sourceOf(err), err)
		}
	}
}

func (r *ingestRun) handleDocument(ctx context.Context, raw domain.RawDocument) {
	chunks, empty, err := r.prepare(ctx, &raw)
	if err != nil {
		r.loadFailed(raw.SourceID, &domain.LoadError{SourceID: raw.SourceID, Err: err})
		return
	}

	r.agg.send(func(rep *domain.RunReport) {
		rep.DocumentsLoaded++
		if empty {
			rep.DocumentsEmpty++
			rep.Warnings = append(rep.Warnings, fmt.Sprintf("%s: no extractable text", raw.SourceID))
		}
	}, &driving.ProgressEvent{Kind: driving.ProgressDocumentLoaded, Ref: raw.SourceID, Chunks: len(chunks)})
	if empty {
		logger.Warn("%s: no extractable text", raw.SourceID)
		return
	}

	r.pruneMu.Lock()
	r.reference(chunks)
	fresh := make([]domain.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if r.dedup.AlreadyIngested(ctx, c.ID) || !r.dedup.Queue(c.ID) {
			continue
		}
		fresh = append(fresh, c)
	}
	r.pruneMu.Unlock()
	skipped := len(chunks) - len(fresh)
	logger.Debug("%s: %d chunks, %d already ingested", raw.SourceID, len(chunks), skipped)

	r.agg.send(func(rep *domain.RunReport) {
		rep.ChunksProduced += len(chunks)
		rep.ChunksSkipped += skipped
	}, nil)
	if skipped > 0 {
		r.agg.send(nil, &driving.ProgressEvent{Kind: driving.ProgressChunksSkipped, Ref: raw.SourceID, Chunks: skipped})
	}
	if r.o.settings.DryRun {
		return
	}
	ref := sourceRef{origin: raw.Origin, id: raw.SourceID}
	if r.track(ref, chunks, len(fresh)) {
		r.prune(ref)
	}
	if len(fresh) == 0 {
		return
	}
	r.agg.send(nil, &driving.ProgressEvent{Kind: driving.ProgressChunksQueued, Ref: raw.SourceID, Chunks: len(fresh)})

	r.pending = append(r.pending, fresh...)
	for len(r.pending) >= r.batches {
		batch := make([]domain.Chunk, r.batches)
		copy(batch, r.pending)
		r.pending = r.pending[r.batches:]
		r.dispatch(batch)
	}
}

// prepare archives, extracts, normalises and chunks one document. A panic in
// any stage is returned as an error.
func (r *ingestRun) prepare(ctx context.Context, raw *domain.RawDocument) (chunks []domain.Chunk, empty bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			chunks, empty = nil, false
			err = fmt.Errorf("%w: panic: %v", domain.ErrNormalization, p)
		}
	}()

	r.archiveRaw(ctx, raw)

	src, err := r.o.extractors.Extract(ctx, raw)
	if err != nil {
		return nil, false, fmt.Errorf("extract: %w", err)
	}

	doc := r.o.normaliser.NormaliseDocument(src)
	if strings.TrimSpace(doc.Text) == "" {
		return nil, true, nil
	}

	chunks, err = r.o.pipeline.Process(ctx, doc)
	if err != nil {
		return nil, false, fmt.Errorf("chunk: %w", err)
	}
	return chunks, false, nil
}

func (r *ingestRun) archiveRaw(ctx context.Context, raw *domain.RawDocument) {
	if r.o.archive == nil || len(raw.Content) == 0 {
		return
	}
	actx, cancel := context.WithTimeout(ctx, archiveTimeout)
	defer cancel()
	key := r.o.archive.Key(r.o.settings.Collection, raw)
	loc, err := r.o.archive.Put(actx, key, raw.Content, raw.MIMEType)
	if err != nil {
		logger.Warn("archive %s: %v", raw.SourceID, err)
		return
	}
	logger.Debug("archived %s to %s", raw.SourceID, loc)
}

func (r *ingestRun) loadFailed(ref string, err error) {
	logger.Warn("load failed: %v", err)
	r.agg.send(func(rep *domain.RunReport) {
		rep.DocumentsFailed++
		rep.Failures = append(rep.Failures, domain.Failure{
			Kind:  domain.FailureLoad,
			Ref:   ref,
			Error: err.Error(),
		})
	}, &driving.ProgressEvent{Kind: driving.ProgressDocumentFailed, Ref: ref})
}

// flush dispatches the partially filled batch left after all loaders ran.
func (r *ingestRun) flush() {
	if len(r.pending) == 0 {
		return
	}
	batch := r.pending
	r.pending = nil
	r.dispatch(batch)
}

// dispatch hands a batch to the worker pool, blocking while every worker is
// busy. Once the run is cancelled, batches are counted as aborted instead.
func (r *ingestRun) dispatch(batch []domain.Chunk) {
	if r.runCtx.Err() != nil {
		r.abort(batch)
		return
	}
	r.group.Go(func() error {
		if r.runCtx.Err() != nil {
			r.abort(batch)
			return nil
		}
		r.processBatch(batch)
		return nil
	})
}

func (r *ingestRun) abort(batch []domain.Chunk) {
	r.settle(batch, false)
	r.agg.send(func(rep *domain.RunReport) { rep.ChunksAborted += len(batch) }, nil)
}

// reference records chunk ids produced in this run; prunes never delete them.
func (r *ingestRun) reference(chunks []domain.Chunk) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range chunks {
		r.refs[c.ID] = struct{}{}
	}
}

// track registers the chunks of a source and the number of them still to be
// persisted. It reports whether the source is already complete.
func (r *ingestRun) track(ref sourceRef, chunks []domain.Chunk, fresh int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.sources[ref]
	if !ok {
		st = &sourceState{keep: make(map[string]struct{}, len(chunks))}
		r.sources[ref] = st
	}
	for _, c := range chunks {
		st.keep[c.ID] = struct{}{}
	}
	st.pending += fresh
	return st.pending == 0 && !st.failed
}

// settle records the outcome of a batch and prunes every source whose
// batches have now all succeeded.
func (r *ingestRun) settle(batch []domain.Chunk, ok bool) {
	var done []sourceRef
	r.mu.Lock()
	for _, c := range batch {
		ref := sourceRef{origin: c.Origin, id: c.SourceID}
		st, tracked := r.sources[ref]
		if !tracked {
			continue
		}
		st.pending--
		if !ok {
			st.failed = true
		}
		if st.pending == 0 && !st.failed {
			done = append(done, ref)
		}
	}
	r.mu.Unlock()

	for _, ref := range done {
		r.prune(ref)
	}
}

// prune deletes the stored chunks of a source that its current version no
// longer produces. Chunks referenced by any document of this run are kept.
func (r *ingestRun) prune(ref sourceRef) {
	r.mu.Lock()
	st := r.sources[ref]
	r.mu.Unlock()
	if st == nil {
		return
	}

	keep := func(id string) bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		if _, ok := st.keep[id]; ok {
			return true
		}
		_, ok := r.refs[id]
		return ok
	}

	r.pruneMu.Lock()
	defer r.pruneMu.Unlock()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.runCtx), r.o.storeTimeout)
	defer cancel()
	deleted, err := r.o.store.DeleteSourceExcept(ctx, r.o.settings.Collection, ref.origin, ref.id, keep)
	if err != nil {
		logger.Warn("prune %s: %v", ref.id, err)
		return
	}
	if len(deleted) == 0 {
		return
	}
	r.dedup.Forget(ctx, deleted...)
	logger.Info("%s: removed %d outdated chunks", ref.id, len(deleted))
	r.agg.send(func(rep *domain.RunReport) { rep.ChunksPruned += len(deleted) }, nil)
}

// processBatch embeds, validates and persists one batch. It runs detached
// from run cancellation so an in-flight batch finishes or fails cleanly.
func (r *ingestRun) processBatch(batch []domain.Chunk) {
	ctx := context.WithoutCancel(r.runCtx)
	id := batchID(batch)
	n := len(batch)

	texts := make([]string, n)
	for i, c := range batch {
		texts[i] = c.Text
	}

	r.o.embedCalls.Add(1)
	vectors, err := r.o.embedder.EmbedBatch(ctx, texts)
	if err == nil {
		err = validateVectors(vectors, n, r.o.embedder.Dimensions())
	}
	if err != nil {
		r.batchFailed(domain.StageEmbed, id, n, err)
		r.settle(batch, false)
		return
	}

	records := make([]domain.StoreRecord, n)
	ids := make([]string, n)
	for i, c := range batch {
		md := domain.CopyMetadata(c.Metadata)
		md["source_id"] = c.SourceID
		md["origin"] = string(c.Origin)
		md["chunk_index"] = c.Index
		records[i] = domain.StoreRecord{ID: c.ID, Text: c.Text, Embedding: vectors[i], Metadata: md}
		ids[i] = c.ID
	}

	sctx, cancel := context.WithTimeout(ctx, r.o.storeTimeout)
	err = r.o.store.Upsert(sctx, r.o.settings.Collection, records)
	cancel()
	if err != nil {
		r.agg.send(func(rep *domain.RunReport) { rep.ChunksEmbedded += n }, nil)
		r.batchFailed(domain.StageStore, id, n, err)
		r.settle(batch, false)
		return
	}

	r.dedup.MarkIngested(ctx, ids...)
	logger.Debug("batch %s persisted", id)
	r.agg.send(func(rep *domain.RunReport) {
		rep.ChunksEmbedded += n
		rep.ChunksPersisted += n
	}, &driving.ProgressEvent{Kind: driving.ProgressBatchDone, Ref: id, Chunks: n})
	r.settle(batch, true)
}

func (r *ingestRun) batchFailed(stage domain.BatchStage, id string, n int, err error) {
	berr := &domain.BatchError{Stage: stage, BatchID: id, Err: err}
	logger.Error("%v", berr)

	kind := domain.FailureEmbed
	if stage == domain.StageStore {
		kind = domain.FailureStore
	}
	r.agg.send(func(rep *domain.RunReport) {
		if stage == domain.StageStore {
			rep.ChunksPersistFailed += n
		} else {
			rep.ChunksEmbedFailed += n
		}
		rep.Failures = append(rep.Failures, domain.Failure{
			Kind:   kind,
			Ref:    id,
			Chunks: n,
			Error:  berr.Error(),
		})
	}, &driving.ProgressEvent{Kind: driving.ProgressBatchFailed, Ref: id, Chunks: n})
}

// validateVectors checks one non-empty vector per text, all of one size.
func validateVectors(vectors [][]float32, want, dims int) error {
	if len(vectors) != want {
		return fmt.Errorf("%w: got %d vectors for %d texts", domain.ErrVectorCountMismatch, len(vectors), want)
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return fmt.Errorf("%w: vector %d is empty", domain.ErrVectorCountMismatch, i)
		}
		if dims == 0 {
			dims = len(v)
		}
		if len(v) != dims {
			return fmt.Errorf("%w: vector %d has %d dimensions, want %d",
				domain.ErrVectorCountMismatch, i, len(v), dims)
		}
	}
	return nil
}

// batchID names a batch by its first and last fingerprints and size.
func batchID(batch []domain.Chunk) string {
	if len(batch) == 0 {
		return "empty"
	}
	first := domain.Fingerprint(batch[0].ID).Short()
	last := domain.Fingerprint(batch[len(batch)-1].ID).Short()
	return fmt.Sprintf("%s..%s/%d", first, last, len(batch))
}

func sourceOf(err error) string {
	var lerr *domain.LoadError
	if errors.As(err, &lerr) {
		return lerr.SourceID
	}
	return "unknown"
}
