// Package fillcoordinator drives ORIGIN read-plan steps: it issues the
// origin Range fetch, splits the response on block boundaries, persists
// newly-arrived blocks through the block store, and advances an object's
// coverage bitmap. The block store's create-exclusive semantics are the
// only cross-worker synchronization; within a single worker, singleflight
// dedupes concurrent attempts to create the same object's metadata file.
//
// Grounded on the block-aligned Range-caching transport pattern used
// across the corpus (a singleflight-guarded fetch that splits an
// upstream response into fixed-size blocks and backfills a cache), with
// the coalescing and coverage-marking rules specified for this project.
package fillcoordinator

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/originblock/blockcache/internal/telemetry"
	"github.com/originblock/blockcache/pkg/blockhash"
	"github.com/originblock/blockcache/pkg/bufpool"
	"github.com/originblock/blockcache/pkg/metrics"
	"github.com/originblock/blockcache/pkg/objectmeta"
	"github.com/originblock/blockcache/pkg/originmap"
	"github.com/originblock/blockcache/pkg/readplan"
	"github.com/originblock/blockcache/pkg/store/block"
)

// Coordinator orchestrates origin fetches for ORIGIN read-plan steps.
type Coordinator struct {
	client  *http.Client
	store   block.Store
	metrics metrics.PipelineMetrics

	// objectLocks dedupes concurrent metadata-file creation attempts for
	// the same object within this worker. Cross-worker races are resolved
	// by the metadata file's own create-exclusive open.
	objectLocks singleflight.Group
}

// New creates a Coordinator. client defaults to http.DefaultClient if nil.
func New(client *http.Client, store block.Store, pipelineMetrics metrics.PipelineMetrics) *Coordinator {
	if client == nil {
		client = http.DefaultClient
	}
	return &Coordinator{client: client, store: store, metrics: pipelineMetrics}
}

// BlockHandler receives each block's bytes as they are split out of the
// origin response, in step order, whether newly written, raced against
// another filler, or already covered before this fetch began. The gateway
// uses this to stream the client-visible slice of the step to the
// response body.
type BlockHandler func(blockNum uint64, data []byte) error

// FillRequest describes one ORIGIN step to service.
type FillRequest struct {
	// ClientRequest supplies the headers to forward to origin verbatim
	// (Host and Range are overwritten).
	ClientRequest *http.Request

	Origin     originmap.Origin
	ObjectPath string
	Step       readplan.Step
	Meta       *objectmeta.OpenObjectMeta
}

// Fill issues the origin Range request for req.Step, splits the response
// into blocks, writes each uncovered block through the store, marks
// coverage, and invokes onBlock for every block in the step's range.
func (c *Coordinator) Fill(ctx context.Context, req FillRequest, onBlock BlockHandler) error {
	ctx, span := telemetry.StartOriginFetchSpan(ctx, req.Origin.Authority)
	defer span.End()

	upstreamReq, err := c.buildUpstreamRequest(ctx, req)
	if err != nil {
		return err
	}

	start := time.Now()
	resp, err := c.client.Do(upstreamReq)
	if err != nil {
		return fmt.Errorf("fillcoordinator: origin fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return fmt.Errorf("fillcoordinator: origin returned status %s", resp.Status)
	}

	blockSize := int64(req.Meta.Preamble.BlockSize)
	sizeBytes := int64(req.Meta.Preamble.SizeBytes)
	lastBlock := uint64(req.Meta.BlockCount() - 1)

	var fetchedBytes int64
	for blockNum := req.Step.BlockStartNum; blockNum <= req.Step.BlockEndNum; blockNum++ {
		length := blockSize
		if blockNum == lastBlock {
			length = sizeBytes - int64(blockNum)*blockSize
		}

		buf := bufpool.Get(int(length))
		n, readErr := io.ReadFull(resp.Body, buf)
		data := buf[:n]
		fetchedBytes += int64(n)

		if readErr != nil && readErr != io.EOF && readErr != io.ErrUnexpectedEOF {
			bufpool.Put(buf)
			return fmt.Errorf("fillcoordinator: reading block %d from origin: %w", blockNum, readErr)
		}

		if !req.Meta.IsCovered(int(blockNum)) {
			if writeErr := c.writeBlock(ctx, req.ObjectPath, blockSize, blockNum, data, req.Meta); writeErr != nil {
				bufpool.Put(buf)
				return writeErr
			}
		}

		if onBlock != nil {
			if err := onBlock(blockNum, data); err != nil {
				bufpool.Put(buf)
				return err
			}
		}
		bufpool.Put(buf)

		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
	}

	metrics.ObserveOriginFetch(c.metrics, fetchedBytes, time.Since(start))
	return nil
}

// writeBlock attempts to create the block file for blockNum. ErrBlockExists
// means another filler already owns this block; the caller still forwards
// the bytes it read but does not write or mark coverage again.
func (c *Coordinator) writeBlock(ctx context.Context, objectPath string, blockSize int64, blockNum uint64, data []byte, meta *objectmeta.OpenObjectMeta) error {
	key := blockKey(objectPath, uint32(blockSize), blockNum)

	err := c.store.CreateBlock(ctx, key, data)
	if err == block.ErrBlockExists {
		metrics.ObserveBlockCreateRace(c.metrics)
		return nil
	}
	if err != nil {
		return fmt.Errorf("fillcoordinator: writing block %d: %w", blockNum, err)
	}

	if err := meta.MarkCovered(int(blockNum)); err != nil {
		return fmt.Errorf("fillcoordinator: marking block %d covered: %w", blockNum, err)
	}
	metrics.ObserveCoverageMark(c.metrics)
	return nil
}

// buildUpstreamRequest clones the client request's headers, strips Host,
// points the request at the resolved origin, and sets the Range header
// for this step.
func (c *Coordinator) buildUpstreamRequest(ctx context.Context, req FillRequest) (*http.Request, error) {
	url, err := req.Origin.ResolveURLFor(req.ObjectPath)
	if err != nil {
		return nil, fmt.Errorf("fillcoordinator: resolving origin URL: %w", err)
	}

	upstream, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fillcoordinator: building origin request: %w", err)
	}

	if req.ClientRequest != nil {
		upstream.Header = req.ClientRequest.Header.Clone()
	}
	upstream.Header.Del("Host")
	upstream.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", req.Step.ByteStart, req.Step.ByteEnd))
	upstream.Host = req.Origin.Authority

	return upstream, nil
}

// CreateMetaOnce deduplicates concurrent attempts, within this worker, to
// create or open the metadata file for objectKey. create is invoked by
// exactly one caller per outstanding key; the rest block on its result.
func (c *Coordinator) CreateMetaOnce(objectKey string, create func() (*objectmeta.OpenObjectMeta, error)) (*objectmeta.OpenObjectMeta, error) {
	v, err, _ := c.objectLocks.Do(objectKey, func() (interface{}, error) {
		return create()
	})
	if err != nil {
		return nil, err
	}
	return v.(*objectmeta.OpenObjectMeta), nil
}

// InvalidateObject drops an object's metadata file and every block under
// blockKeyPrefix. Used when an origin response no longer matches the
// stored metadata (size or ETag changed since the object was first
// cached), per the invalidate-and-retry-from-scratch policy.
func (c *Coordinator) InvalidateObject(ctx context.Context, metaPath, blockKeyPrefix string) error {
	metrics.ObserveOriginMismatch(c.metrics)

	if err := os.Remove(metaPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("fillcoordinator: removing stale metadata %s: %w", metaPath, err)
	}
	if err := c.store.DeleteByPrefix(ctx, blockKeyPrefix); err != nil {
		return fmt.Errorf("fillcoordinator: deleting stale blocks under %s: %w", blockKeyPrefix, err)
	}
	return nil
}

// blockKey derives the sharded block-store key for (objectPath, blockSize, blockNum).
func blockKey(objectPath string, blockSize uint32, blockNum uint64) string {
	return blockhash.Key([]byte(objectPath), blockSize, uint16(blockNum))
}
