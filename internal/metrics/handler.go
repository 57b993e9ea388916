package metrics

import (
	"encoding/json"
	"math"
	"net/http"
	"sort"
	"time"

	dto "github.com/prometheus/client_model/go"
)

// Summary is the JSON body of the admin metrics endpoint.
type Summary struct {
	HTTP          httpSummary      `json:"http"`
	Auth          authInfo         `json:"auth"`
	Leads         leadInfo         `json:"leads"`
	Notifications notificationInfo `json:"notifications"`
	RateLimit     rateLimitInfo    `json:"rateLimit"`
	DB            dbInfo           `json:"db"`
	Server        serverInfo       `json:"server"`
}

type httpSummary struct {
	TotalRequests float64 `json:"totalRequests"`
	ErrorRate     float64 `json:"errorRate"`
	P50Latency    float64 `json:"p50Latency"`
	P95Latency    float64 `json:"p95Latency"`
	P99Latency    float64 `json:"p99Latency"`
}

type authInfo struct {
	Failures  float64 `json:"failures"`
	Successes float64 `json:"successes"`
}

type leadInfo struct {
	Created float64 `json:"created"`
}

type notificationInfo struct {
	Sent    float64 `json:"sent"`
	Errors  float64 `json:"errors"`
	Skipped float64 `json:"skipped"`
	Dropped float64 `json:"dropped"`
}

type rateLimitInfo struct {
	Rejections float64 `json:"rejections"`
}

type dbInfo struct {
	TotalConns    float64 `json:"totalConns"`
	IdleConns     float64 `json:"idleConns"`
	AcquiredConns float64 `json:"acquiredConns"`
}

type serverInfo struct {
	StartTime     float64 `json:"startTime"`
	UptimeSeconds float64 `json:"uptimeSeconds"`
}

// Handler serves a JSON digest of the registry.
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := m.Summarize()
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error": "Internal server error",
				"code":  "internal_error",
			})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache, no-store")
		_ = json.NewEncoder(w).Encode(summary)
	}
}

// Summarize gathers the registry into a Summary.
func (m *Metrics) Summarize() (*Summary, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return nil, err
	}
	fam := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		fam[f.GetName()] = f
	}

	requests := fam["leadline_http_requests_total"]
	duration := fam["leadline_http_request_duration_seconds"]
	notes := fam["leadline_notifications_total"]
	start := gaugeValue(fam["leadline_server_start_time_seconds"])

	return &Summary{
		HTTP: httpSummary{
			TotalRequests: sumCounter(requests, nil),
			ErrorRate:     errorRate(requests),
			P50Latency:    histogramPercentile(duration, 0.50),
			P95Latency:    histogramPercentile(duration, 0.95),
			P99Latency:    histogramPercentile(duration, 0.99),
		},
		Auth: authInfo{
			Failures:  sumCounter(fam["leadline_auth_failures_total"], nil),
			Successes: sumCounter(fam["leadline_auth_successes_total"], nil),
		},
		Leads: leadInfo{
			Created: sumCounter(fam["leadline_leads_created_total"], nil),
		},
		Notifications: notificationInfo{
			Sent:    sumCounter(notes, label("status", "sent")),
			Errors:  sumCounter(notes, label("status", "error")),
			Skipped: sumCounter(notes, label("status", "skipped")),
			Dropped: sumCounter(notes, label("status", "dropped")),
		},
		RateLimit: rateLimitInfo{
			Rejections: sumCounter(fam["leadline_ratelimit_rejections_total"], nil),
		},
		DB: dbInfo{
			TotalConns:    gaugeValue(fam["leadline_db_pool_total_conns"]),
			IdleConns:     gaugeValue(fam["leadline_db_pool_idle_conns"]),
			AcquiredConns: gaugeValue(fam["leadline_db_pool_acquired_conns"]),
		},
		Server: serverInfo{
			StartTime:     start,
			UptimeSeconds: float64(time.Now().Unix()) - start,
		},
	}, nil
}

// --- Prometheus metric helpers ---

type metricFilter func(*dto.Metric) bool

func label(name, value string) metricFilter {
	return func(m *dto.Metric) bool {
		for _, lp := range m.GetLabel() {
			if lp.GetName() == name && lp.GetValue() == value {
				return true
			}
		}
		return false
	}
}

func sumCounter(f *dto.MetricFamily, keep metricFilter) float64 {
	if f == nil {
		return 0
	}
	var total float64
	for _, m := range f.GetMetric() {
		if m.GetCounter() == nil || (keep != nil && !keep(m)) {
			continue
		}
		total += m.GetCounter().GetValue()
	}
	return total
}

func gaugeValue(f *dto.MetricFamily) float64 {
	if f == nil || len(f.GetMetric()) == 0 {
		return 0
	}
	return f.GetMetric()[0].GetGauge().GetValue()
}

// errorRate is the share of requests answered with a 5xx status.
func errorRate(f *dto.MetricFamily) float64 {
	total := sumCounter(f, nil)
	if total == 0 {
		return 0
	}
	serverErrors := sumCounter(f, func(m *dto.Metric) bool {
		for _, lp := range m.GetLabel() {
			if lp.GetName() == "status_code" {
				code := lp.GetValue()
				return len(code) > 0 && code[0] == '5'
			}
		}
		return false
	})
	return serverErrors / total
}

// histogramPercentile estimates quantile q across all series in the family
// by linear interpolation within the bucket that crosses the rank.
func histogramPercentile(f *dto.MetricFamily, q float64) float64 {
	if f == nil {
		return 0
	}

	type bucket struct {
		upperBound      float64
		cumulativeCount uint64
	}
	var totalCount uint64
	bucketMap := make(map[float64]uint64)

	for _, m := range f.GetMetric() {
		h := m.GetHistogram()
		if h == nil {
			continue
		}
		totalCount += h.GetSampleCount()
		for _, b := range h.GetBucket() {
			bucketMap[b.GetUpperBound()] += b.GetCumulativeCount()
		}
	}
	if totalCount == 0 {
		return 0
	}

	buckets := make([]bucket, 0, len(bucketMap))
	for ub, count := range bucketMap {
		if !math.IsInf(ub, 1) {
			buckets = append(buckets, bucket{upperBound: ub, cumulativeCount: count})
		}
	}
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].upperBound < buckets[j].upperBound
	})

	rank := q * float64(totalCount)
	var prevBound float64
	var prevCount uint64
	for _, b := range buckets {
		if float64(b.cumulativeCount) >= rank {
			inBucket := b.cumulativeCount - prevCount
			if inBucket == 0 {
				return b.upperBound
			}
			fraction := (rank - float64(prevCount)) / float64(inBucket)
			return prevBound + fraction*(b.upperBound-prevBound)
		}
		prevBound = b.upperBound
		prevCount = b.cumulativeCount
	}

	if len(buckets) > 0 {
		return buckets[len(buckets)-1].upperBound
	}
	return 0
}
