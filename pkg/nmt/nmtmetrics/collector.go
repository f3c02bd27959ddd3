// Copyright 2021 Intel Corporation. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package nmtmetrics exposes a Tracker's counters as Prometheus
// metrics, the way pkg/policycollector exposes a policy's metrics: a
// thin prometheus.Collector wrapping the domain object and polling it
// on every Collect.
package nmtmetrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/intel/native-memory-tracker/pkg/nmt"
)

const namespace = "nmt"

var (
	reservedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "reserved_bytes"),
		"Current reserved bytes for a memory tag.",
		[]string{"tag"}, nil,
	)
	committedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "committed_bytes"),
		"Current committed bytes for a memory tag.",
		[]string{"tag"}, nil,
	)
	peakReservedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "peak_reserved_bytes"),
		"Peak reserved bytes seen for a memory tag.",
		[]string{"tag"}, nil,
	)
	peakCommittedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "peak_committed_bytes"),
		"Peak committed bytes seen for a memory tag.",
		[]string{"tag"}, nil,
	)
	droppedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "dropped_total"),
		"Recording calls dropped after an allocation failure.",
		nil, nil,
	)
	tagOverflowDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "tag_overflow"),
		"1 once the memory tag namespace has been exhausted, 0 until then.",
		nil, nil,
	)
	degradedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "degraded"),
		"1 if the tracker has observed an invariant violation and clamped a counter, 0 otherwise.",
		nil, nil,
	)
)

// Collector adapts a *nmt.Tracker to prometheus.Collector.
type Collector struct {
	tracker *nmt.Tracker
}

// NewCollector returns a Collector polling tracker.
func NewCollector(tracker *nmt.Tracker) *Collector {
	return &Collector{tracker: tracker}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- reservedDesc
	ch <- committedDesc
	ch <- peakReservedDesc
	ch <- peakCommittedDesc
	ch <- droppedDesc
	ch <- degradedDesc
	ch <- tagOverflowDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for tag, counters := range c.tracker.Snapshot() {
		ch <- prometheus.MustNewConstMetric(reservedDesc, prometheus.GaugeValue, float64(counters.Reserve), tag)
		ch <- prometheus.MustNewConstMetric(committedDesc, prometheus.GaugeValue, float64(counters.Commit), tag)
		ch <- prometheus.MustNewConstMetric(peakReservedDesc, prometheus.GaugeValue, float64(counters.PeakReserve), tag)
		ch <- prometheus.MustNewConstMetric(peakCommittedDesc, prometheus.GaugeValue, float64(counters.PeakCommit), tag)
	}
	ch <- prometheus.MustNewConstMetric(droppedDesc, prometheus.CounterValue, float64(c.tracker.Dropped()))
	degraded := 0.0
	if c.tracker.Status() != "active" {
		degraded = 1.0
	}
	ch <- prometheus.MustNewConstMetric(degradedDesc, prometheus.GaugeValue, degraded)
	ch <- prometheus.MustNewConstMetric(tagOverflowDesc, prometheus.GaugeValue, float64(c.tracker.TagOverflows()))
}

// Register installs the collector with reg, matching
// policycollector.RegisterPolicyMetricsCollector's direct-registration
// style.
func Register(reg prometheus.Registerer, tracker *nmt.Tracker) error {
	return reg.Register(NewCollector(tracker))
}
