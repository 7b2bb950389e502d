package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"tradeboard/config"
	"tradeboard/internal/board"
	"tradeboard/internal/metrics"
	"tradeboard/logger"
	"tradeboard/models"
)

// Source is the slice of the board the archive reads from.
type Source interface {
	Bars() []models.Bar
	Observe(fn func(board.Change)) (cancel func())
}

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Writer uploads the candle series to S3 as parquet whenever it changed
// since the previous flush. Each object holds the full series at flush time.
type Writer struct {
	cfg     config.ArchiveConfig
	version string
	src     Source
	client  objectPutter
	session string

	dirty   atomic.Bool
	uploads atomic.Int64
	flushMu sync.Mutex
	now     func() time.Time
	log     *logger.Entry
}

// New configures the AWS SDK and the S3 client the way the storage writers
// do: static credentials when both keys are set, the default chain otherwise.
func New(ctx context.Context, cfg config.ArchiveConfig, version string, src Source) (*Writer, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})

	w := newWriter(cfg, version, src, client)
	w.log.WithFields(logger.Fields{
		"bucket":     cfg.Bucket,
		"region":     cfg.Region,
		"endpoint":   cfg.Endpoint,
		"path_style": cfg.PathStyle,
	}).Info("archive writer initialized")
	return w, nil
}

func newWriter(cfg config.ArchiveConfig, version string, src Source, client objectPutter) *Writer {
	return &Writer{
		cfg:     cfg,
		version: version,
		src:     src,
		client:  client,
		session: uuid.NewString()[:8],
		now:     time.Now,
		log:     logger.GetLogger().WithComponent("archive"),
	}
}

// Run flushes every FlushInterval and once more on shutdown.
func (w *Writer) Run(ctx context.Context) {
	cancel := w.src.Observe(func(c board.Change) {
		if c.Topic == models.TopicCandles {
			w.dirty.Store(true)
		}
	})
	defer cancel()

	interval := w.cfg.FlushInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, done := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			if err := w.Flush(shutdownCtx, "shutdown"); err != nil {
				w.log.WithError(err).Warn("final archive flush failed")
			}
			done()
			return
		case <-ticker.C:
			if err := w.Flush(ctx, "interval"); err != nil {
				w.log.WithError(err).Warn("archive flush failed")
			}
		}
	}
}

var errNothingToArchive = errors.New("series is empty")

// Flush uploads the series when it changed. A failed upload leaves the
// writer dirty so the next flush retries.
func (w *Writer) Flush(ctx context.Context, reason string) error {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	if !w.dirty.Swap(false) {
		return nil
	}

	err := w.upload(ctx, reason)
	if err != nil && !errors.Is(err, errNothingToArchive) {
		w.dirty.Store(true)
		metrics.Emit(nil, metrics.Metric{
			Component: "archive",
			Name:      metrics.ArchiveUploadErrors,
			Topic:     models.TopicCandles,
			Kind:      metrics.Counter,
			Value:     1,
			Fields:    logger.Fields{"reason": reason},
		})
		return err
	}
	return nil
}

func (w *Writer) upload(ctx context.Context, reason string) error {
	bars := w.src.Bars()
	if len(bars) == 0 {
		return errNothingToArchive
	}

	data, err := encodeBars(bars, w.cfg.Compression)
	if err != nil {
		return err
	}

	key := w.objectKey(bars[0].Asset)
	_, err = w.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"content-type":       "parquet",
			"compression":        w.cfg.Compression,
			"bars":               strconv.Itoa(len(bars)),
			"tradeboard-version": w.version,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3 bucket %s: %w", w.cfg.Bucket, err)
	}

	w.uploads.Add(1)
	metrics.Emit(nil, metrics.Metric{
		Component: "archive",
		Name:      metrics.ArchiveBarsUploaded,
		Topic:     models.TopicCandles,
		Kind:      metrics.Gauge,
		Value:     float64(len(bars)),
		Fields:    logger.Fields{"reason": reason, "unit": "count"},
	})
	w.log.WithFields(logger.Fields{
		"key":    key,
		"bars":   len(bars),
		"bytes":  len(data),
		"reason": reason,
	}).Info("series archived")
	return nil
}

// objectKey is <prefix>/<asset>/<yyyy>/<mm>/<dd>/bars_<session>_<ts>.parquet.
func (w *Writer) objectKey(asset string) string {
	if asset == "" {
		asset = "unknown"
	}
	now := w.now().UTC()
	filename := fmt.Sprintf("bars_%s_%s.parquet", w.session, now.Format("20060102150405"))
	return path.Join(w.cfg.Prefix, asset, now.Format("2006"), now.Format("01"), now.Format("02"), filename)
}

// Uploads reports how many objects were written.
func (w *Writer) Uploads() int64 { return w.uploads.Load() }
