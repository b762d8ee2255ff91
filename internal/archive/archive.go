// Package archive uploads cheatsheet snapshots to S3-compatible object
// storage. Snapshots are batched into JSONL objects partitioned by date so
// curation history can be replayed or audited offline.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/OneChainTech/dynamic-cheatsheet/internal/metrics"
)

// Config contains settings for the snapshot archiver.
type Config struct {
	Bucket string
	Prefix string
	Region string
	// Endpoint overrides the S3 endpoint for MinIO-compatible stores.
	Endpoint string
	// AccessKey and SecretKey are optional; empty values fall back to the
	// ambient AWS credential chain.
	AccessKey     string
	SecretKey     string
	FlushInterval time.Duration
	QueueSize     int
}

// Record is one archived curation outcome. The full cheatsheet is included
// so an object is self-contained.
type Record struct {
	Timestamp  time.Time `json:"timestamp"`
	SessionID  string    `json:"session_id"`
	QueryID    string    `json:"query_id"`
	Question   string    `json:"question,omitempty"`
	Status     string    `json:"status"`
	Added      int       `json:"added"`
	Kept       int       `json:"kept"`
	Superseded int       `json:"superseded"`
	Length     int       `json:"length"`
	Cheatsheet string    `json:"cheatsheet"`
}

// putObjectAPI is the slice of the S3 client the archiver uses.
type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Archiver batches records and flushes them to object storage.
type Archiver struct {
	cfg    Config
	client putObjectAPI
	logger *slog.Logger

	mu    sync.Mutex
	queue []Record

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New builds an S3 client from the config and starts the flush loop.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Archiver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive: bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("archive: load aws config: %w", err)
	}

	s3Opts := []func(*s3.Options){}
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return NewWithClient(cfg, s3.NewFromConfig(awsCfg, s3Opts...), logger), nil
}

// NewWithClient wires an existing S3 client, used by tests and MinIO
// deployments with custom client tuning.
func NewWithClient(cfg Config, client putObjectAPI, logger *slog.Logger) *Archiver {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 30 * time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if logger == nil {
		logger = slog.Default()
	}

	a := &Archiver{
		cfg:    cfg,
		client: client,
		logger: logger,
		queue:  make([]Record, 0, cfg.QueueSize),
		stopCh: make(chan struct{}),
	}

	a.wg.Add(1)
	go a.flushLoop()
	return a
}

// Enqueue queues a record for upload. A full queue triggers an async flush.
func (a *Archiver) Enqueue(rec Record) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	a.mu.Lock()
	a.queue = append(a.queue, rec)
	depth := len(a.queue)
	a.mu.Unlock()

	metrics.ArchiveQueueDepth.Set(float64(depth))
	if depth >= a.cfg.QueueSize {
		go func() {
			if err := a.Flush(context.Background()); err != nil {
				a.logger.Warn("archive flush failed", "error", err)
			}
		}()
	}
}

// Flush uploads all queued records as one JSONL object.
func (a *Archiver) Flush(ctx context.Context) error {
	a.mu.Lock()
	if len(a.queue) == 0 {
		a.mu.Unlock()
		return nil
	}
	records := a.queue
	a.queue = make([]Record, 0, a.cfg.QueueSize)
	a.mu.Unlock()

	metrics.ArchiveQueueDepth.Set(0)

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	for i := range records {
		if err := encoder.Encode(&records[i]); err != nil {
			a.logger.Warn("archive record encode failed", "session_id", records[i].SessionID, "error", err)
		}
	}

	key := a.objectKey(time.Now().UTC())
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		metrics.ArchiveUploadsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("archive: upload %q: %w", key, err)
	}

	metrics.ArchiveUploadsTotal.WithLabelValues("ok").Inc()
	a.logger.Debug("archived cheatsheet snapshots", "key", key, "records", len(records))
	return nil
}

// Close stops the flush loop and uploads anything still queued.
func (a *Archiver) Close(ctx context.Context) error {
	a.stopOnce.Do(func() { close(a.stopCh) })
	a.wg.Wait()
	return a.Flush(ctx)
}

func (a *Archiver) flushLoop() {
	defer a.wg.Done()

	ticker := time.NewTicker(a.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := a.Flush(context.Background()); err != nil {
				a.logger.Warn("archive flush failed", "error", err)
			}
		case <-a.stopCh:
			return
		}
	}
}

// objectKey builds a date-partitioned key, e.g.
// prefix/year=2026/month=08/day=23/hour=14/cheatsheets_1724421600000000000.jsonl.
func (a *Archiver) objectKey(t time.Time) string {
	datePrefix := fmt.Sprintf("year=%d/month=%02d/day=%02d/hour=%02d",
		t.Year(), t.Month(), t.Day(), t.Hour())
	filename := fmt.Sprintf("cheatsheets_%d.jsonl", t.UnixNano())

	if a.cfg.Prefix != "" {
		return path.Join(a.cfg.Prefix, datePrefix, filename)
	}
	return path.Join(datePrefix, filename)
}
