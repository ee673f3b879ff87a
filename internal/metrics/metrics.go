// Package metrics counts resync outcomes for the shutdown summary.
package metrics

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type Registry struct {
	outcomes sync.Map
}

type outcomeStats struct {
	count         atomic.Int64
	durationNanos atomic.Int64
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) RecordResync(outcome string, duration time.Duration) {
	if r == nil {
		return
	}
	if strings.TrimSpace(outcome) == "" {
		outcome = "unknown"
	}
	stats := r.outcomeStats(outcome)
	stats.count.Add(1)
	stats.durationNanos.Add(duration.Nanoseconds())
}

func (r *Registry) Count(outcome string) int64 {
	if r == nil {
		return 0
	}
	value, ok := r.outcomes.Load(outcome)
	if !ok {
		return 0
	}
	return value.(*outcomeStats).count.Load()
}

func (r *Registry) Total() int64 {
	var total int64
	for _, name := range r.outcomeNames() {
		total += r.Count(name)
	}
	return total
}

// Fields renders the counters as logger fields: "<outcome>" holds the count
// and "<outcome>_seconds" the summed duration.
func (r *Registry) Fields() map[string]string {
	fields := map[string]string{}
	if r == nil {
		return fields
	}
	names := r.outcomeNames()
	sort.Strings(names)
	for _, name := range names {
		stats := r.outcomeStats(name)
		seconds := float64(stats.durationNanos.Load()) / float64(time.Second)
		fields[name] = strconv.FormatInt(stats.count.Load(), 10)
		fields[name+"_seconds"] = strconv.FormatFloat(seconds, 'f', 3, 64)
	}
	return fields
}

func (r *Registry) outcomeStats(name string) *outcomeStats {
	value, _ := r.outcomes.LoadOrStore(name, &outcomeStats{})
	return value.(*outcomeStats)
}

func (r *Registry) outcomeNames() []string {
	if r == nil {
		return nil
	}
	var names []string
	r.outcomes.Range(func(key, value interface{}) bool {
		if name, ok := key.(string); ok {
			names = append(names, name)
		}
		return true
	})
	return names
}
