package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

var defaultBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}

type routeKey struct {
	route  string
	method string
}

type requestKey struct {
	routeKey
	code int
}

type histogram struct {
	counts []uint64
	sum    float64
	count  uint64
}

// Collector aggregates HTTP request counters and latency histograms keyed by
// route template and method.
type Collector struct {
	namespace string
	buckets   []float64

	mu       sync.Mutex
	requests map[requestKey]uint64
	errors   map[routeKey]uint64
	latency  map[routeKey]*histogram
}

// NewCollector creates a collector whose series are prefixed with namespace.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "taskboard"
	}
	return &Collector{
		namespace: namespace,
		buckets:   defaultBuckets,
		requests:  make(map[requestKey]uint64),
		errors:    make(map[routeKey]uint64),
		latency:   make(map[routeKey]*histogram),
	}
}

// ObserveHTTPRequest records one finished request.
func (c *Collector) ObserveHTTPRequest(route, method string, status int, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := routeKey{route: route, method: method}
	c.requests[requestKey{routeKey: key, code: status}]++
	if status >= 500 {
		c.errors[key]++
	}

	hist := c.latency[key]
	if hist == nil {
		hist = &histogram{counts: make([]uint64, len(c.buckets))}
		c.latency[key] = hist
	}
	seconds := duration.Seconds()
	hist.count++
	hist.sum += seconds
	for idx, bound := range c.buckets {
		if seconds <= bound {
			hist.counts[idx]++
		}
	}
}

// Handler exposes the metrics in Prometheus text exposition format.
func (c *Collector) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = fmt.Fprint(w, c.render())
	})
}

func (c *Collector) render() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	requestKeys := make([]requestKey, 0, len(c.requests))
	for key := range c.requests {
		requestKeys = append(requestKeys, key)
	}
	sort.Slice(requestKeys, func(i, j int) bool {
		if requestKeys[i].routeKey != requestKeys[j].routeKey {
			return lessRoute(requestKeys[i].routeKey, requestKeys[j].routeKey)
		}
		return requestKeys[i].code < requestKeys[j].code
	})
	errorKeys := sortedRoutes(c.errors)
	latencyKeys := make([]routeKey, 0, len(c.latency))
	for key := range c.latency {
		latencyKeys = append(latencyKeys, key)
	}
	sort.Slice(latencyKeys, func(i, j int) bool { return lessRoute(latencyKeys[i], latencyKeys[j]) })

	var b strings.Builder
	ns := c.namespace

	fmt.Fprintf(&b, "# HELP %s_http_requests_total Total number of HTTP requests processed.\n", ns)
	fmt.Fprintf(&b, "# TYPE %s_http_requests_total counter\n", ns)
	for _, key := range requestKeys {
		fmt.Fprintf(&b, "%s_http_requests_total{%s,code=\"%d\"} %d\n", ns, labels(key.routeKey), key.code, c.requests[key])
	}

	fmt.Fprintf(&b, "# HELP %s_http_request_errors_total Total number of HTTP requests that resulted in a server error.\n", ns)
	fmt.Fprintf(&b, "# TYPE %s_http_request_errors_total counter\n", ns)
	for _, key := range errorKeys {
		fmt.Fprintf(&b, "%s_http_request_errors_total{%s} %d\n", ns, labels(key), c.errors[key])
	}

	fmt.Fprintf(&b, "# HELP %s_http_request_duration_seconds HTTP request duration in seconds.\n", ns)
	fmt.Fprintf(&b, "# TYPE %s_http_request_duration_seconds histogram\n", ns)
	for _, key := range latencyKeys {
		hist := c.latency[key]
		for idx, bound := range c.buckets {
			fmt.Fprintf(&b, "%s_http_request_duration_seconds_bucket{%s,le=\"%s\"} %d\n", ns, labels(key), formatFloat(bound), hist.counts[idx])
		}
		fmt.Fprintf(&b, "%s_http_request_duration_seconds_bucket{%s,le=\"+Inf\"} %d\n", ns, labels(key), hist.count)
		fmt.Fprintf(&b, "%s_http_request_duration_seconds_sum{%s} %s\n", ns, labels(key), formatFloat(hist.sum))
		fmt.Fprintf(&b, "%s_http_request_duration_seconds_count{%s} %d\n", ns, labels(key), hist.count)
	}
	return b.String()
}

func sortedRoutes(m map[routeKey]uint64) []routeKey {
	keys := make([]routeKey, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return lessRoute(keys[i], keys[j]) })
	return keys
}

func lessRoute(a, b routeKey) bool {
	if a.route == b.route {
		return a.method < b.method
	}
	return a.route < b.route
}

func labels(key routeKey) string {
	return fmt.Sprintf("route=\"%s\",method=\"%s\"", escape(key.route), escape(key.method))
}

func escape(value string) string {
	value = strings.ReplaceAll(value, "\\", "\\\\")
	value = strings.ReplaceAll(value, "\"", "\\\"")
	value = strings.ReplaceAll(value, "\n", "")
	return value
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
