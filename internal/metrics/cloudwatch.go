package metrics

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"tradeboard/config"
	"tradeboard/logger"
)

const (
	// PutMetricData accepts at most 1000 datums per call.
	maxDatumsPerPut = 1000
	maxPendingDatum = 10 * maxDatumsPerPut
)

type cloudWatchAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// cloudWatchExporter buffers component metrics from the handler registry and
// publishes them to CloudWatch every interval.
type cloudWatchExporter struct {
	client    cloudWatchAPI
	namespace string
	interval  time.Duration

	mu      sync.Mutex
	pending []cwtypes.MetricDatum
	dropped int

	log *logger.Entry
}

// StartCloudWatch registers a CloudWatch exporter when enabled in cfg. The
// returned stop function unregisters it and flushes what is buffered.
func StartCloudWatch(ctx context.Context, cfg config.CloudWatchConfig) (stop func(), err error) {
	if !cfg.Enabled {
		return func() {}, nil
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	exp := newCloudWatchExporter(cloudwatch.NewFromConfig(awsCfg), cfg.Namespace, cfg.FlushInterval)
	exp.log.WithFields(logger.Fields{
		"region":    awsCfg.Region,
		"namespace": cfg.Namespace,
	}).Info("cloudwatch exporter started")
	return exp.start(ctx), nil
}

func newCloudWatchExporter(client cloudWatchAPI, namespace string, interval time.Duration) *cloudWatchExporter {
	if interval <= 0 {
		interval = time.Minute
	}
	return &cloudWatchExporter{
		client:    client,
		namespace: namespace,
		interval:  interval,
		log:       logger.GetLogger().WithComponent("cloudwatch"),
	}
}

func (e *cloudWatchExporter) start(ctx context.Context) func() {
	id := RegisterMetricHandler(e.handle)
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.flush(ctx)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			UnregisterMetricHandler(id)
			cancel()
			<-done
			flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer flushCancel()
			e.flush(flushCtx)
		})
	}
}

func (e *cloudWatchExporter) handle(m Metric) {
	unit := cwtypes.StandardUnitCount
	if raw, ok := m.Fields["unit"].(string); ok {
		if parsed, found := metricUnitFromString(raw); found {
			unit = parsed
		}
	}

	dims := []cwtypes.Dimension{{Name: aws.String("component"), Value: aws.String(m.Component)}}
	for k, v := range m.Labels() {
		if k == "unit" || len(dims) >= 30 {
			continue
		}
		if s, ok := v.(string); ok && s != "" {
			dims = append(dims, cwtypes.Dimension{Name: aws.String(k), Value: aws.String(s)})
		}
	}

	datum := cwtypes.MetricDatum{
		MetricName: aws.String(string(m.Name)),
		Dimensions: dims,
		Unit:       unit,
		Value:      aws.Float64(m.Value),
		Timestamp:  aws.Time(m.Timestamp),
	}

	e.mu.Lock()
	if len(e.pending) >= maxPendingDatum {
		e.pending = e.pending[1:]
		e.dropped++
	}
	e.pending = append(e.pending, datum)
	e.mu.Unlock()
}

func (e *cloudWatchExporter) flush(ctx context.Context) {
	e.mu.Lock()
	data := e.pending
	dropped := e.dropped
	e.pending = nil
	e.dropped = 0
	e.mu.Unlock()

	if dropped > 0 {
		e.log.WithField("dropped", dropped).Warn("cloudwatch buffer overflowed")
	}

	for start := 0; start < len(data); start += maxDatumsPerPut {
		end := start + maxDatumsPerPut
		if end > len(data) {
			end = len(data)
		}
		if _, err := e.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(e.namespace),
			MetricData: data[start:end],
		}); err != nil {
			e.log.WithError(err).Warn("failed to publish CloudWatch metrics")
			return
		}
	}

	if len(data) > 0 {
		e.log.WithField("datums", len(data)).Debug("published metrics to CloudWatch")
	}
}

func metricUnitFromString(unit string) (cwtypes.StandardUnit, bool) {
	switch strings.ToLower(unit) {
	case "count":
		return cwtypes.StandardUnitCount, true
	case "percent":
		return cwtypes.StandardUnitPercent, true
	case "bytes":
		return cwtypes.StandardUnitBytes, true
	case "seconds":
		return cwtypes.StandardUnitSeconds, true
	default:
		return cwtypes.StandardUnitCount, false
	}
}
