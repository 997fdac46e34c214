package monitor

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/ezlinkai/fal-studio/common/config"
	"github.com/ezlinkai/fal-studio/common/logger"
)

// MetricPutter 是 cloudwatch.Client 中用到的部分
type MetricPutter interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// proxyWindow 一个上报周期内的代理流量
type proxyWindow struct {
	successLatencies []float64
	failureLatencies []float64

	requests      int64
	maxConcurrent int64

	clientErrors int64 // 4xx
	serverErrors int64 // 5xx，不含超时
	policyErrors int64 // 401 403 429
	timeouts     int64 // 504
}

type saturationWindow struct {
	goroutines []float64
	allocMB    []float64
}

// Reporter 汇总代理请求指标并定期写入 CloudWatch
type Reporter struct {
	client    MetricPutter
	namespace string
	interval  time.Duration

	mu         sync.Mutex
	window     *proxyWindow
	saturation *saturationWindow
	inflight   int64

	cancel context.CancelFunc
	done   chan struct{}
}

var globalReporter atomic.Pointer[Reporter]

func NewReporter(client MetricPutter, namespace string, interval time.Duration) *Reporter {
	return &Reporter{
		client:     client,
		namespace:  namespace,
		interval:   interval,
		window:     &proxyWindow{},
		saturation: &saturationWindow{},
	}
}

// StartCloudWatchReporter 未开启 CLOUDWATCH_ENABLED 时什么都不做
func StartCloudWatchReporter(ctx context.Context) error {
	if !config.CloudWatchEnabled {
		return nil
	}
	if globalReporter.Load() != nil {
		return fmt.Errorf("cloudwatch reporter already started")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(config.CloudWatchRegion))
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}
	reporter := NewReporter(cloudwatch.NewFromConfig(cfg), config.CloudWatchNamespace, config.CloudWatchFlushInterval)
	reporter.Start(ctx, config.CloudWatchSampleInterval)
	globalReporter.Store(reporter)
	logger.SysLog(fmt.Sprintf("CloudWatch reporter started (namespace: %s, region: %s, flush: %s)",
		config.CloudWatchNamespace, config.CloudWatchRegion, config.CloudWatchFlushInterval))
	return nil
}

func StopCloudWatchReporter() {
	if reporter := globalReporter.Swap(nil); reporter != nil {
		reporter.Stop()
		logger.SysLog("CloudWatch reporter stopped")
	}
}

// RecordProxyRequest 由代理中间件在每次转发结束后调用
func RecordProxyRequest(latency time.Duration, statusCode int) {
	if reporter := globalReporter.Load(); reporter != nil {
		reporter.Record(latency, statusCode)
	}
}

func ProxyRequestStarted() {
	if reporter := globalReporter.Load(); reporter != nil {
		reporter.Begin()
	}
}

func ProxyRequestFinished() {
	if reporter := globalReporter.Load(); reporter != nil {
		reporter.End()
	}
}

func (r *Reporter) Start(ctx context.Context, sampleInterval time.Duration) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	go func() {
		defer close(r.done)
		flushTicker := time.NewTicker(r.interval)
		sampleTicker := time.NewTicker(sampleInterval)
		defer flushTicker.Stop()
		defer sampleTicker.Stop()
		r.sample()
		for {
			select {
			case <-ctx.Done():
				return
			case <-sampleTicker.C:
				r.sample()
			case <-flushTicker.C:
				r.Flush(ctx)
			}
		}
	}()
}

// Stop 停止循环并做最后一次上报
func (r *Reporter) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r.Flush(ctx)
}

func (r *Reporter) Begin() {
	current := atomic.AddInt64(&r.inflight, 1)
	r.mu.Lock()
	if current > r.window.maxConcurrent {
		r.window.maxConcurrent = current
	}
	r.mu.Unlock()
}

func (r *Reporter) End() {
	atomic.AddInt64(&r.inflight, -1)
}

func (r *Reporter) Record(latency time.Duration, statusCode int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w := r.window
	w.requests++
	ms := float64(latency.Milliseconds())
	if statusCode < http.StatusBadRequest {
		w.successLatencies = append(w.successLatencies, ms)
		return
	}
	w.failureLatencies = append(w.failureLatencies, ms)
	switch classifyStatus(statusCode) {
	case "policy_error":
		w.policyErrors++
	case "timeout":
		w.timeouts++
	case "client_error":
		w.clientErrors++
	case "server_error":
		w.serverErrors++
	}
}

func classifyStatus(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 400:
		return "success"
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden || statusCode == http.StatusTooManyRequests:
		return "policy_error"
	case statusCode == http.StatusGatewayTimeout:
		return "timeout"
	case statusCode >= 400 && statusCode < 500:
		return "client_error"
	case statusCode >= 500:
		return "server_error"
	default:
		return "unknown"
	}
}

func (r *Reporter) sample() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saturation.goroutines = append(r.saturation.goroutines, float64(runtime.NumGoroutine()))
	r.saturation.allocMB = append(r.saturation.allocMB, float64(m.Alloc/1024/1024))
}

// Flush 取出当前窗口并写入 CloudWatch，空窗口不上报
func (r *Reporter) Flush(ctx context.Context) {
	r.mu.Lock()
	window, saturation := r.window, r.saturation
	r.window, r.saturation = &proxyWindow{}, &saturationWindow{}
	r.mu.Unlock()

	data := r.buildMetrics(window, saturation, time.Now())
	if len(data) == 0 {
		return
	}
	const maxMetricsPerRequest = 1000
	for i := 0; i < len(data); i += maxMetricsPerRequest {
		end := i + maxMetricsPerRequest
		if end > len(data) {
			end = len(data)
		}
		_, err := r.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(r.namespace),
			MetricData: data[i:end],
		})
		if err != nil {
			logger.SysError(fmt.Sprintf("Failed to send CloudWatch metrics: %s", err.Error()))
		}
	}
}

func (r *Reporter) buildMetrics(w *proxyWindow, s *saturationWindow, now time.Time) []types.MetricDatum {
	if w.requests == 0 && len(s.goroutines) == 0 {
		return nil
	}
	timestamp := aws.Time(now)
	datum := func(name string, value float64, unit types.StandardUnit) types.MetricDatum {
		return types.MetricDatum{
			MetricName: aws.String(name),
			Value:      aws.Float64(value),
			Unit:       unit,
			Timestamp:  timestamp,
		}
	}

	var data []types.MetricDatum
	data = append(data, latencyMetrics("ProxySuccessLatency", w.successLatencies, datum)...)
	data = append(data, latencyMetrics("ProxyFailureLatency", w.failureLatencies, datum)...)
	if w.requests > 0 {
		failures := w.clientErrors + w.serverErrors + w.policyErrors + w.timeouts
		data = append(data,
			datum("ProxyRequestCount", float64(w.requests), types.StandardUnitCount),
			datum("ProxyQPS", float64(w.requests)/r.interval.Seconds(), types.StandardUnitCountSecond),
			datum("ProxyErrorRate", float64(failures)/float64(w.requests)*100, types.StandardUnitPercent),
		)
	}
	counters := []struct {
		name  string
		value int64
	}{
		{"ProxyMaxConcurrent", w.maxConcurrent},
		{"ProxyClientErrors", w.clientErrors},
		{"ProxyServerErrors", w.serverErrors},
		{"ProxyPolicyErrors", w.policyErrors},
		{"ProxyTimeouts", w.timeouts},
	}
	for _, counter := range counters {
		if counter.value > 0 {
			data = append(data, datum(counter.name, float64(counter.value), types.StandardUnitCount))
		}
	}
	if len(s.goroutines) > 0 {
		avg, max := calculateStats(s.goroutines)
		data = append(data,
			datum("GoroutineCount", avg, types.StandardUnitCount),
			datum("MaxGoroutineCount", max, types.StandardUnitCount),
		)
	}
	if len(s.allocMB) > 0 {
		avg, max := calculateStats(s.allocMB)
		data = append(data,
			datum("MemoryAllocMB", avg, types.StandardUnitMegabytes),
			datum("MaxMemoryAllocMB", max, types.StandardUnitMegabytes),
		)
	}
	return data
}

// latencyMetrics 平均值、P50、P95、P99 与最大值
func latencyMetrics(name string, latencies []float64, datum func(string, float64, types.StandardUnit) types.MetricDatum) []types.MetricDatum {
	if len(latencies) == 0 {
		return nil
	}
	sorted := make([]float64, len(latencies))
	copy(sorted, latencies)
	sort.Float64s(sorted)
	avg, max := calculateStats(sorted)
	return []types.MetricDatum{
		datum(name+"Avg", avg, types.StandardUnitMilliseconds),
		datum(name+"P50", calculatePercentile(sorted, 0.50), types.StandardUnitMilliseconds),
		datum(name+"P95", calculatePercentile(sorted, 0.95), types.StandardUnitMilliseconds),
		datum(name+"P99", calculatePercentile(sorted, 0.99), types.StandardUnitMilliseconds),
		datum(name+"Max", max, types.StandardUnitMilliseconds),
	}
}

func calculatePercentile(sortedValues []float64, percentile float64) float64 {
	if len(sortedValues) == 0 {
		return 0
	}
	index := int(float64(len(sortedValues)) * percentile)
	if index >= len(sortedValues) {
		index = len(sortedValues) - 1
	}
	return sortedValues[index]
}

func calculateStats(values []float64) (avg float64, max float64) {
	if len(values) == 0 {
		return 0, 0
	}
	sum := 0.0
	max = values[0]
	for _, v := range values {
		sum += v
		if v > max {
			max = v
		}
	}
	return sum / float64(len(values)), max
}
