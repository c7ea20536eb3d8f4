package audit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/klauspost/compress/zstd"

	domain "skyguard/internal/types"
)

// ArchiveSource lists and removes entries eligible for archival.
// db.AuditRepository implements it.
type ArchiveSource interface {
	ListOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]domain.AuditLogEntry, error)
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
}

// ObjectPutter is the subset of the S3 client used for uploads.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Archiver moves old audit entries to S3 as zstd-compressed JSON Lines.
type Archiver struct {
	source ArchiveSource
	s3     ObjectPutter
	bucket string
	clock  domain.Clock
	logger *slog.Logger
}

// NewArchiver creates an Archiver writing to bucket.
func NewArchiver(source ArchiveSource, s3Client ObjectPutter, bucket string, clock domain.Clock, logger *slog.Logger) *Archiver {
	if clock == nil {
		clock = domain.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{source: source, s3: s3Client, bucket: bucket, clock: clock, logger: logger}
}

// Archive uploads entries older than retention in batches of batchSize and
// deletes each batch once its upload succeeds. A failed upload leaves that
// batch in place for the next run. Returns the number of entries archived.
func (a *Archiver) Archive(ctx context.Context, retention time.Duration, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	now := a.clock.Now()
	cutoff := now.Add(-retention)
	total := 0

	for batch := 0; ; batch++ {
		entries, err := a.source.ListOlderThan(ctx, cutoff, batchSize)
		if err != nil {
			return total, fmt.Errorf("listing audit logs for archival: %w", err)
		}
		if len(entries) == 0 {
			break
		}

		data, err := EncodeBatch(entries)
		if err != nil {
			return total, fmt.Errorf("encoding audit archive: %w", err)
		}

		key := fmt.Sprintf("audit/%04d/%02d/%02d/%d-%03d.jsonl.zst",
			now.Year(), now.Month(), now.Day(), now.Unix(), batch)
		_, err = a.s3.PutObject(ctx, &s3.PutObjectInput{
			Bucket:          aws.String(a.bucket),
			Key:             aws.String(key),
			Body:            bytes.NewReader(data),
			ContentType:     aws.String("application/x-ndjson"),
			ContentEncoding: aws.String("zstd"),
			StorageClass:    types.StorageClassGlacierIr,
		})
		if err != nil {
			return total, fmt.Errorf("uploading audit archive to %s: %w", key, err)
		}

		ids := make([]string, len(entries))
		for i, e := range entries {
			ids[i] = e.ID
		}
		deleted, err := a.source.DeleteByIDs(ctx, ids)
		if err != nil {
			return total, fmt.Errorf("deleting archived audit logs: %w", err)
		}
		total += int(deleted)

		a.logger.InfoContext(ctx, "archived audit log batch",
			"batch_size", len(entries),
			"s3_key", key,
			"total_archived", total,
		)

		if len(entries) < batchSize {
			break
		}
	}
	return total, nil
}

var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	decoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
)

// EncodeBatch serializes entries as JSON Lines and compresses them with zstd.
func EncodeBatch(entries []domain.AuditLogEntry) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range entries {
		if err := enc.Encode(&entries[i]); err != nil {
			return nil, err
		}
	}
	return encoder.EncodeAll(buf.Bytes(), nil), nil
}

// DecodeBatch reverses EncodeBatch. Used when restoring an archive.
func DecodeBatch(data []byte) ([]domain.AuditLogEntry, error) {
	raw, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompression failed: %w", err)
	}
	var out []domain.AuditLogEntry
	sc := bufio.NewScanner(bytes.NewReader(raw))
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		if len(bytes.TrimSpace(sc.Bytes())) == 0 {
			continue
		}
		var e domain.AuditLogEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, sc.Err()
}
