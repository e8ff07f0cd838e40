// Package gateway is the HTTP entry point for cached reads: it resolves a
// request's Host to an origin, opens or creates the object's metadata
// file, drives a read plan over the requested byte range, and streams each
// step's client-visible slice to the response — reading CACHE steps from
// the block store and filling ORIGIN steps through the fill coordinator.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/originblock/blockcache/internal/bytesize"
	"github.com/originblock/blockcache/internal/logger"
	"github.com/originblock/blockcache/internal/telemetry"
	"github.com/originblock/blockcache/pkg/blockhash"
	"github.com/originblock/blockcache/pkg/fillcoordinator"
	"github.com/originblock/blockcache/pkg/metrics"
	"github.com/originblock/blockcache/pkg/objectmeta"
	"github.com/originblock/blockcache/pkg/originmap"
	"github.com/originblock/blockcache/pkg/readplan"
	"github.com/originblock/blockcache/pkg/store/block"
)

// Config configures a Gateway.
type Config struct {
	// CacheRoot is the directory metadata files and block files are
	// written under.
	CacheRoot string

	// DefaultBlockSize is the block size assigned to an object the first
	// time its metadata file is created.
	DefaultBlockSize bytesize.ByteSize

	// MaxCoverageBlockSkipSize bounds read-plan gap coalescing (see
	// pkg/readplan). Zero falls back to readplan.DefaultMaxCoverageBlockSkipSize.
	MaxCoverageBlockSkipSize bytesize.ByteSize
}

// Gateway serves client byte-range requests out of the block cache.
type Gateway struct {
	origins                  *originmap.Map
	store                    block.Store
	fill                     *fillcoordinator.Coordinator
	client                   *http.Client
	metrics                  metrics.PipelineMetrics
	cacheRoot                string
	blockSize                uint32
	maxCoverageBlockSkipSize int64
}

// New creates a Gateway. client is used for the HEAD/zero-range requests
// issued to create metadata and to check origin consistency; it may be the
// same *http.Client the fill coordinator was built with.
func New(cfg Config, origins *originmap.Map, store block.Store, fill *fillcoordinator.Coordinator, client *http.Client, pipelineMetrics metrics.PipelineMetrics) *Gateway {
	if client == nil {
		client = http.DefaultClient
	}
	return &Gateway{
		origins:                  origins,
		store:                    store,
		fill:                     fill,
		client:                   client,
		metrics:                  pipelineMetrics,
		cacheRoot:                cfg.CacheRoot,
		blockSize:                uint32(cfg.DefaultBlockSize),
		maxCoverageBlockSkipSize: int64(cfg.MaxCoverageBlockSkipSize),
	}
}

// ServeHTTP implements http.Handler.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	host := hostOnly(r.Host)
	ctx, span := telemetry.StartGatewayRequestSpan(r.Context(), host, r.URL.Path)
	defer span.End()
	r = r.WithContext(ctx)

	origin, ok := g.origins.Lookup(host)
	if !ok {
		g.writeNotFound(w)
		return
	}

	if err := g.serveObject(ctx, w, r, host, origin); err != nil {
		logger.ErrorCtx(ctx, "gateway: serving object failed",
			"host", host, "path", r.URL.Path, "error", err)
		telemetry.RecordError(ctx, err)
	}
}

// serveObject drives one request end to end: resolve/create metadata,
// check origin consistency, build the read plan, stream every step.
func (g *Gateway) serveObject(ctx context.Context, w http.ResponseWriter, r *http.Request, host string, origin originmap.Origin) error {
	identity := host + r.URL.Path
	metaPath := g.metaPath(identity)

	meta, ownClose, freshlyCreated, err := g.openOrCreateMeta(ctx, metaPath, identity, origin, r.URL.Path)
	if err != nil {
		http.Error(w, "origin unavailable", http.StatusBadGateway)
		return err
	}
	defer func() {
		if ownClose {
			meta.Close()
		}
	}()

	if ownClose && !freshlyCreated {
		mismatch, err := g.checkOriginMismatch(ctx, origin, r.URL.Path, meta)
		if err != nil {
			logger.WarnCtx(ctx, "gateway: origin consistency check failed, serving from stale metadata",
				"path", r.URL.Path, "error", err)
		} else if mismatch {
			if err := g.fill.InvalidateObject(ctx, metaPath, blockhash.Prefix([]byte(identity))); err != nil {
				return fmt.Errorf("gateway: invalidating stale object: %w", err)
			}
			meta.Close()
			meta, ownClose, _, err = g.openOrCreateMeta(ctx, metaPath, identity, origin, r.URL.Path)
			if err != nil {
				return err
			}
		}
	}

	start, end, err := parseRange(r.Header.Get("Range"), int64(meta.Preamble.SizeBytes))
	if err != nil {
		http.Error(w, err.Error(), http.StatusRequestedRangeNotSatisfiable)
		return nil
	}

	if r.Header.Get("Range") != "" {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, meta.Preamble.SizeBytes))
		w.Header().Set("Content-Length", strconv.FormatInt(end-start+1, 10))
		w.WriteHeader(http.StatusPartialContent)
	} else {
		w.Header().Set("Content-Length", strconv.FormatInt(end-start+1, 10))
		w.WriteHeader(http.StatusOK)
	}

	planner := readplan.New(start, end, int64(meta.Preamble.SizeBytes), int64(meta.Preamble.BlockSize), meta.CoverageSnapshot(), g.maxCoverageBlockSkipSize)
	var sent int64
	for {
		step, ok := planner.Next()
		if !ok {
			break
		}
		metrics.ObservePlanStep(g.metrics, step.Kind.String())

		n, err := g.serveStep(ctx, w, r, origin, identity, meta, step)
		sent += n
		if err != nil {
			return err
		}
	}
	telemetry.SetAttributes(ctx, telemetry.BytesSent(sent))
	return nil
}

// serveStep streams one read-plan step's client-visible slice to w.
func (g *Gateway) serveStep(ctx context.Context, w http.ResponseWriter, r *http.Request, origin originmap.Origin, identity string, meta *objectmeta.OpenObjectMeta, step readplan.Step) (int64, error) {
	ctx, span := telemetry.StartReadPlanStepSpan(ctx, step.Kind.String(), int64(step.BlockStartNum), int64(step.BlockEndNum))
	defer span.End()

	blockSize := int64(meta.Preamble.BlockSize)
	flusher, _ := w.(http.Flusher)

	if step.Kind == readplan.StepCache {
		var sent int64
		for blockNum := step.BlockStartNum; blockNum <= step.BlockEndNum; blockNum++ {
			off, length := sliceBounds(step, blockNum, blockSize)
			key := blockhash.Key([]byte(identity), meta.Preamble.BlockSize, uint16(blockNum))
			data, err := g.store.ReadBlockRange(ctx, key, off, length)
			if err != nil {
				return sent, fmt.Errorf("gateway: reading cached block %d: %w", blockNum, err)
			}
			n, err := w.Write(data)
			sent += int64(n)
			if err != nil {
				return sent, err
			}
		}
		if flusher != nil {
			flusher.Flush()
		}
		return sent, nil
	}

	var sent int64
	var writeErr error
	err := g.fill.Fill(ctx, fillcoordinator.FillRequest{
		ClientRequest: r,
		Origin:        origin,
		ObjectPath:    identity,
		Step:          step,
		Meta:          meta,
	}, func(blockNum uint64, data []byte) error {
		off, length := sliceBounds(step, blockNum, blockSize)
		end := off + length
		if end > int64(len(data)) {
			end = int64(len(data))
		}
		if off > end {
			off = end
		}
		n, werr := w.Write(data[off:end])
		sent += int64(n)
		if werr != nil {
			writeErr = werr
			return werr
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	})
	if err != nil {
		return sent, err
	}
	return sent, writeErr
}

// sliceBounds returns the (offset, length) within blockNum's bytes that
// must reach the client, given step's per-step client offsets: non-edge
// blocks are emitted in full.
func sliceBounds(step readplan.Step, blockNum uint64, blockSize int64) (offset, length int64) {
	offset = 0
	end := blockSize - 1
	if blockNum == step.BlockStartNum {
		offset = step.ClientStartOffset
	}
	if blockNum == step.BlockEndNum {
		end = step.ClientEndOffset
	}
	if end < offset {
		end = offset
	}
	return offset, end - offset + 1
}

// openOrCreateMeta opens the metadata file at metaPath, or creates it by
// issuing a HEAD request to origin when it doesn't exist yet.
//
// The first returned bool reports whether this call owns the handle's
// lifecycle and must Close it. A concurrent creation request deduped by
// CreateMetaOnce shares the winner's *OpenObjectMeta without owning it —
// closing it would race the winner's own request, which is still reading
// and writing blocks through the same handle. The second bool reports
// whether this call is the one that just created the file, in which case
// an origin-consistency check is redundant (the metadata was just built
// from a live origin response).
func (g *Gateway) openOrCreateMeta(ctx context.Context, metaPath, identity string, origin originmap.Origin, objectPath string) (*objectmeta.OpenObjectMeta, bool, bool, error) {
	meta, err := objectmeta.Open(metaPath)
	if err == nil {
		return meta, true, false, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, false, false, fmt.Errorf("gateway: opening metadata %s: %w", metaPath, err)
	}

	owner := false
	meta, err = g.fill.CreateMetaOnce(identity, func() (*objectmeta.OpenObjectMeta, error) {
		m, cerr := g.createMeta(ctx, metaPath, origin, objectPath)
		if cerr == nil {
			owner = true
		}
		return m, cerr
	})
	if err != nil {
		return nil, false, false, err
	}
	return meta, owner, owner, nil
}

// createMeta issues a HEAD request to origin to learn the object's size and
// ETag, then creates a fresh all-zero-coverage metadata file.
func (g *Gateway) createMeta(ctx context.Context, metaPath string, origin originmap.Origin, objectPath string) (*objectmeta.OpenObjectMeta, error) {
	url, err := origin.ResolveURLFor(objectPath)
	if err != nil {
		return nil, fmt.Errorf("gateway: resolving origin URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return nil, fmt.Errorf("gateway: building HEAD request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway: HEAD %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway: origin HEAD %s returned %s", url, resp.Status)
	}
	if resp.ContentLength < 0 {
		return nil, fmt.Errorf("gateway: origin HEAD %s did not report Content-Length", url)
	}

	preamble := objectmeta.Preamble{
		Version:   objectmeta.VersionV0,
		SizeBytes: uint64(resp.ContentLength),
		BlockSize: g.blockSize,
	}
	if etag := resp.Header.Get("ETag"); etag != "" {
		preamble.Headers = append(preamble.Headers, objectmeta.Header{Name: "ETag", Value: etag})
	}

	blockCount := int((uint64(resp.ContentLength) + uint64(g.blockSize) - 1) / uint64(g.blockSize))
	if blockCount == 0 {
		blockCount = 1
	}

	if err := os.MkdirAll(filepath.Dir(metaPath), 0o755); err != nil {
		return nil, fmt.Errorf("gateway: creating metadata directory: %w", err)
	}

	meta, err := objectmeta.Create(metaPath, preamble, blockCount)
	if err != nil && errors.Is(err, os.ErrExist) {
		// Lost a cross-worker race to create the file; open the winner's.
		return objectmeta.Open(metaPath)
	}
	return meta, err
}

// checkOriginMismatch issues a HEAD request and compares the result against
// already-stored metadata, catching an object whose origin representation
// changed since it was cached.
func (g *Gateway) checkOriginMismatch(ctx context.Context, origin originmap.Origin, objectPath string, meta *objectmeta.OpenObjectMeta) (bool, error) {
	url, err := origin.ResolveURLFor(objectPath)
	if err != nil {
		return false, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false, err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("origin HEAD returned %s", resp.Status)
	}

	if resp.ContentLength >= 0 && uint64(resp.ContentLength) != meta.Preamble.SizeBytes {
		return true, nil
	}
	if etag := resp.Header.Get("ETag"); etag != "" {
		for _, h := range meta.Preamble.Headers {
			if h.Name == "ETag" {
				return h.Value != etag, nil
			}
		}
	}
	return false, nil
}

// metaPath derives the on-disk metadata file path for an object identity
// (host+path). The scheme is this project's own choice (spec.md leaves it
// out of scope): sharded the same way block files are, under cacheRoot/meta.
func (g *Gateway) metaPath(identity string) string {
	h := blockhash.Prefix([]byte(identity))
	return filepath.Join(g.cacheRoot, "meta", h+".meta")
}

func (g *Gateway) writeNotFound(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte(notFoundHTML))
}

// hostOnly strips an optional :port suffix from a Host header value.
func hostOnly(host string) string {
	for i := len(host) - 1; i >= 0; i-- {
		if host[i] == ':' {
			return host[:i]
		}
		if host[i] == ']' {
			break
		}
	}
	return host
}

