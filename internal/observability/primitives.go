package observability

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

// Prometheus text exposition for the handful of series this service exports.
// Series are written in label order so scrapes diff cleanly.

// family is one labelled float series set shared by counters and gauges.
type family struct {
	name   string
	help   string
	kind   string
	labels []string

	mu   sync.RWMutex
	vals map[string]float64
}

func newFamily(name, help, kind string, labels []string) family {
	return family{name: name, help: help, kind: kind, labels: labels, vals: map[string]float64{}}
}

func (f *family) apply(values []string, fn func(float64) float64) {
	key := labelString(f.labels, values)
	f.mu.Lock()
	f.vals[key] = fn(f.vals[key])
	f.mu.Unlock()
}

func (f *family) get(values []string) float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.vals[labelString(f.labels, values)]
}

func (f *family) write(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n", f.name, f.help, f.name, f.kind); err != nil {
		return err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, k := range sortedKeys(f.vals) {
		if _, err := fmt.Fprintf(w, "%s%s %g\n", f.name, k, f.vals[k]); err != nil {
			return err
		}
	}
	return nil
}

type CounterVec struct{ f family }

func NewCounterVec(name, help string, labels []string) *CounterVec {
	return &CounterVec{f: newFamily(name, help, "counter", labels)}
}

func (c *CounterVec) Inc(values ...string) { c.Add(1, values...) }

func (c *CounterVec) Add(v float64, values ...string) {
	if c == nil || v < 0 {
		return
	}
	c.f.apply(values, func(cur float64) float64 { return cur + v })
}

// Value returns the current value of one series.
func (c *CounterVec) Value(values ...string) float64 {
	if c == nil {
		return 0
	}
	return c.f.get(values)
}

func (c *CounterVec) WritePrometheus(w io.Writer) error {
	if c == nil {
		return nil
	}
	return c.f.write(w)
}

type GaugeVec struct{ f family }

func NewGaugeVec(name, help string, labels []string) *GaugeVec {
	return &GaugeVec{f: newFamily(name, help, "gauge", labels)}
}

func (g *GaugeVec) Set(v float64, values ...string) {
	if g == nil {
		return
	}
	g.f.apply(values, func(float64) float64 { return v })
}

func (g *GaugeVec) WritePrometheus(w io.Writer) error {
	if g == nil {
		return nil
	}
	return g.f.write(w)
}

// Gauge is an unlabelled GaugeVec.
type Gauge struct{ GaugeVec }

func NewGauge(name, help string) *Gauge {
	return &Gauge{GaugeVec{f: newFamily(name, help, "gauge", nil)}}
}

func (g *Gauge) Set(v float64) {
	if g != nil {
		g.GaugeVec.Set(v)
	}
}

func (g *Gauge) Inc() { g.add(1) }
func (g *Gauge) Dec() { g.add(-1) }

func (g *Gauge) add(d float64) {
	if g == nil {
		return
	}
	g.f.apply(nil, func(cur float64) float64 { return cur + d })
}

func (g *Gauge) Value() float64 {
	if g == nil {
		return 0
	}
	return g.f.get(nil)
}

func (g *Gauge) WritePrometheus(w io.Writer) error {
	if g == nil {
		return nil
	}
	return g.f.write(w)
}

type HistogramVec struct {
	name    string
	help    string
	labels  []string
	buckets []float64

	mu   sync.Mutex
	vals map[string]*histogram
}

type histogram struct {
	counts []uint64
	sum    float64
	total  uint64
}

var defaultBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5}

func NewHistogramVec(name, help string, labels []string, buckets []float64) *HistogramVec {
	if len(buckets) == 0 {
		buckets = defaultBuckets
	}
	return &HistogramVec{name: name, help: help, labels: labels, buckets: buckets, vals: map[string]*histogram{}}
}

func (h *HistogramVec) Observe(v float64, values ...string) {
	if h == nil {
		return
	}
	key := labelString(h.labels, values)
	h.mu.Lock()
	defer h.mu.Unlock()
	hist := h.vals[key]
	if hist == nil {
		hist = &histogram{counts: make([]uint64, len(h.buckets))}
		h.vals[key] = hist
	}
	hist.sum += v
	hist.total++
	// Buckets are cumulative; sort.SearchFloat64s finds the first le >= v.
	for i := sort.SearchFloat64s(h.buckets, v); i < len(h.buckets); i++ {
		hist.counts[i]++
	}
}

func (h *HistogramVec) WritePrometheus(w io.Writer) error {
	if h == nil {
		return nil
	}
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s histogram\n", h.name, h.help, h.name); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, k := range sortedKeys(h.vals) {
		hist := h.vals[k]
		var b strings.Builder
		for i, le := range h.buckets {
			fmt.Fprintf(&b, "%s_bucket%s %d\n", h.name, withLe(k, fmt.Sprintf("%g", le)), hist.counts[i])
		}
		fmt.Fprintf(&b, "%s_bucket%s %d\n", h.name, withLe(k, "+Inf"), hist.total)
		fmt.Fprintf(&b, "%s_sum%s %g\n%s_count%s %d\n", h.name, k, hist.sum, h.name, k, hist.total)
		if _, err := io.WriteString(w, b.String()); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

// labelString renders {a="x",b="y"}. Missing values read as "unknown".
func labelString(names, values []string) string {
	if len(names) == 0 {
		return ""
	}
	parts := make([]string, len(names))
	for i, name := range names {
		val := "unknown"
		if i < len(values) {
			val = values[i]
		}
		parts[i] = name + `="` + labelEscaper.Replace(val) + `"`
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func withLe(labels, le string) string {
	pair := `le="` + labelEscaper.Replace(le) + `"`
	if labels == "" || labels == "{}" || !strings.HasSuffix(labels, "}") {
		return "{" + pair + "}"
	}
	return strings.TrimSuffix(labels, "}") + "," + pair + "}"
}
