// Package metrics exports kernel statistics to Prometheus.
//
// Scrapes run on HTTP goroutines, which may not call into the kernel. A
// Sampler thread copies the counters into a Snapshot that Collect reads.
package metrics

import (
	"strconv"
	"sync/atomic"

	"sparkrt/kernel"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sparkrt"

// Snapshot is one sample of the kernel state.
type Snapshot struct {
	Stats   kernel.Stats
	Threads []kernel.ThreadInfo
	Now     uint64
}

// Collector implements prometheus.Collector over the latest Snapshot.
type Collector struct {
	snap atomic.Pointer[Snapshot]

	ticksDesc       *prometheus.Desc
	switchesDesc    *prometheus.Desc
	preemptionsDesc *prometheus.Desc
	sleepScansDesc  *prometheus.Desc
	createdDesc     *prometheus.Desc
	reapedDesc      *prometheus.Desc
	overflowsDesc   *prometheus.Desc
	faultsDesc      *prometheus.Desc
	allocFailsDesc  *prometheus.Desc

	threadsDesc       *prometheus.Desc
	heapUsedDesc      *prometheus.Desc
	heapAvailableDesc *prometheus.Desc

	threadRunTimeDesc   *prometheus.Desc
	threadStackUsedDesc *prometheus.Desc
	threadStackSizeDesc *prometheus.Desc
	threadPriorityDesc  *prometheus.Desc
}

func kernelDesc(name, help string) *prometheus.Desc {
	return prometheus.NewDesc(prometheus.BuildFQName(namespace, "kernel", name), help, nil, nil)
}

var threadLabels = []string{"id", "name"}

// NewCollector returns a collector with no sample; it reports nothing until
// Store is called.
func NewCollector() *Collector {
	return &Collector{
		ticksDesc:       kernelDesc("ticks_total", "Tick interrupts processed."),
		switchesDesc:    kernelDesc("context_switches_total", "Context switches performed."),
		preemptionsDesc: kernelDesc("preemptions_total", "Switches forced by a higher priority thread or an expired time slice."),
		sleepScansDesc:  kernelDesc("sleep_scans_total", "Walks of the sleep queue."),
		createdDesc:     kernelDesc("threads_created_total", "Threads created."),
		reapedDesc:      kernelDesc("threads_reaped_total", "Dead threads whose stacks were freed."),
		overflowsDesc:   kernelDesc("stack_overflows_total", "Stack guard violations detected."),
		faultsDesc:      kernelDesc("faults_total", "Kernel misuse faults."),
		allocFailsDesc:  kernelDesc("alloc_failures_total", "Failed kernel heap allocations."),

		threadsDesc:       kernelDesc("threads", "Live threads, idle included."),
		heapUsedDesc:      kernelDesc("heap_used_bytes", "Bytes allocated from the kernel heap."),
		heapAvailableDesc: kernelDesc("heap_available_bytes", "Bytes left in the kernel heap."),

		threadRunTimeDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "thread", "run_ticks_total"),
			"Ticks charged to a thread while it was running.",
			threadLabels, nil,
		),
		threadStackUsedDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "thread", "stack_used_bytes"),
			"Stack high-water mark of a thread.",
			threadLabels, nil,
		),
		threadStackSizeDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "thread", "stack_size_bytes"),
			"Stack size of a thread.",
			threadLabels, nil,
		),
		threadPriorityDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "thread", "priority"),
			"Current priority of a thread.",
			threadLabels, nil,
		),
	}
}

// Store replaces the sample reported by Collect.
func (c *Collector) Store(s *Snapshot) { c.snap.Store(s) }

// Load returns the latest sample or nil.
func (c *Collector) Load() *Snapshot { return c.snap.Load() }

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.ticksDesc
	ch <- c.switchesDesc
	ch <- c.preemptionsDesc
	ch <- c.sleepScansDesc
	ch <- c.createdDesc
	ch <- c.reapedDesc
	ch <- c.overflowsDesc
	ch <- c.faultsDesc
	ch <- c.allocFailsDesc
	ch <- c.threadsDesc
	ch <- c.heapUsedDesc
	ch <- c.heapAvailableDesc
	ch <- c.threadRunTimeDesc
	ch <- c.threadStackUsedDesc
	ch <- c.threadStackSizeDesc
	ch <- c.threadPriorityDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.snap.Load()
	if s == nil {
		return
	}
	st := s.Stats
	for _, m := range []struct {
		d *prometheus.Desc
		v uint64
	}{
		{c.ticksDesc, st.Ticks},
		{c.switchesDesc, st.Switches},
		{c.preemptionsDesc, st.Preemptions},
		{c.sleepScansDesc, st.SleepScans},
		{c.createdDesc, st.Created},
		{c.reapedDesc, st.Reaped},
		{c.overflowsDesc, st.Overflows},
		{c.faultsDesc, st.Faults},
		{c.allocFailsDesc, st.AllocFails},
	} {
		ch <- prometheus.MustNewConstMetric(m.d, prometheus.CounterValue, float64(m.v))
	}
	ch <- prometheus.MustNewConstMetric(c.threadsDesc, prometheus.GaugeValue, float64(st.Threads))
	ch <- prometheus.MustNewConstMetric(c.heapUsedDesc, prometheus.GaugeValue, float64(st.HeapUsed))
	ch <- prometheus.MustNewConstMetric(c.heapAvailableDesc, prometheus.GaugeValue, float64(st.HeapAvailable))

	for _, t := range s.Threads {
		id := strconv.FormatUint(uint64(t.ID), 10)
		ch <- prometheus.MustNewConstMetric(c.threadRunTimeDesc, prometheus.CounterValue, float64(t.RunTime), id, t.Name)
		ch <- prometheus.MustNewConstMetric(c.threadStackUsedDesc, prometheus.GaugeValue, float64(t.StackUsed), id, t.Name)
		ch <- prometheus.MustNewConstMetric(c.threadStackSizeDesc, prometheus.GaugeValue, float64(t.StackSize), id, t.Name)
		ch <- prometheus.MustNewConstMetric(c.threadPriorityDesc, prometheus.GaugeValue, float64(t.Priority), id, t.Name)
	}
}
