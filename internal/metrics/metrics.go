package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OutcomeCounter returns call log counts grouped by screening outcome.
type OutcomeCounter interface {
	CountByOutcome(ctx context.Context) (map[string]int64, error)
}

// BlockCounter returns the number of callers currently blocked.
type BlockCounter interface {
	CountActiveBlocks(ctx context.Context, now time.Time) (int64, error)
}

// RowCounter counts rows in a table (tenants, trust entries).
type RowCounter interface {
	Count(ctx context.Context) (int64, error)
}

// NotificationStats exposes delivery counters from the notification queue.
type NotificationStats interface {
	Sent() uint64
	Dropped() uint64
	Failed() uint64
	Skipped() uint64
}

// Providers groups the scrape-time data sources. Any field may be nil.
type Providers struct {
	Outcomes      OutcomeCounter
	Blocks        BlockCounter
	Tenants       RowCounter
	Trust         RowCounter
	Notifications NotificationStats
}

// Collector is a prometheus.Collector that gathers CallBunker metrics at
// scrape time.
type Collector struct {
	p         Providers
	outcomes  []string
	startTime time.Time
	logger    *slog.Logger

	decisionsDesc     *prometheus.Desc
	blockedDesc       *prometheus.Desc
	tenantsDesc       *prometheus.Desc
	trustedDesc       *prometheus.Desc
	notificationsDesc *prometheus.Desc
	uptimeDesc        *prometheus.Desc
}

// NewCollector creates a collector. outcomes lists the outcome labels that
// are always exported, so absent outcomes report zero rather than vanish.
func NewCollector(p Providers, outcomes []string, startTime time.Time, logger *slog.Logger) *Collector {
	return &Collector{
		p:         p,
		outcomes:  outcomes,
		startTime: startTime,
		logger:    logger.With("subsystem", "metrics"),

		decisionsDesc: prometheus.NewDesc(
			"callbunker_screening_decisions_total",
			"Screening decisions recorded in the call log, by outcome",
			[]string{"outcome"}, nil,
		),
		blockedDesc: prometheus.NewDesc(
			"callbunker_blocked_callers",
			"Callers currently inside a block window",
			nil, nil,
		),
		tenantsDesc: prometheus.NewDesc(
			"callbunker_tenants",
			"Number of provisioned tenants",
			nil, nil,
		),
		trustedDesc: prometheus.NewDesc(
			"callbunker_trusted_callers",
			"Trust list entries across all tenants",
			nil, nil,
		),
		notificationsDesc: prometheus.NewDesc(
			"callbunker_notifications_total",
			"Notifications handled by the dispatcher, by result",
			[]string{"result"}, nil,
		),
		uptimeDesc: prometheus.NewDesc(
			"callbunker_uptime_seconds",
			"Seconds since the process started",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.decisionsDesc
	ch <- c.blockedDesc
	ch <- c.tenantsDesc
	ch <- c.trustedDesc
	ch <- c.notificationsDesc
	ch <- c.uptimeDesc
}

// Collect implements prometheus.Collector. It queries all providers at
// scrape time; a failing provider is logged and its metric omitted.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if c.p.Outcomes != nil {
		counts, err := c.p.Outcomes.CountByOutcome(ctx)
		if err != nil {
			c.logger.Error("counting call outcomes", "error", err)
		} else {
			seen := make(map[string]bool, len(c.outcomes))
			for _, o := range c.outcomes {
				seen[o] = true
				ch <- prometheus.MustNewConstMetric(c.decisionsDesc, prometheus.CounterValue, float64(counts[o]), o)
			}
			for o, n := range counts {
				if !seen[o] {
					ch <- prometheus.MustNewConstMetric(c.decisionsDesc, prometheus.CounterValue, float64(n), o)
				}
			}
		}
	}

	if c.p.Blocks != nil {
		n, err := c.p.Blocks.CountActiveBlocks(ctx, time.Now())
		if err != nil {
			c.logger.Error("counting active blocks", "error", err)
		} else {
			ch <- prometheus.MustNewConstMetric(c.blockedDesc, prometheus.GaugeValue, float64(n))
		}
	}

	c.collectCount(ctx, ch, c.p.Tenants, c.tenantsDesc, "tenants")
	c.collectCount(ctx, ch, c.p.Trust, c.trustedDesc, "trust entries")

	if n := c.p.Notifications; n != nil {
		ch <- prometheus.MustNewConstMetric(c.notificationsDesc, prometheus.CounterValue, float64(n.Sent()), "sent")
		ch <- prometheus.MustNewConstMetric(c.notificationsDesc, prometheus.CounterValue, float64(n.Failed()), "failed")
		ch <- prometheus.MustNewConstMetric(c.notificationsDesc, prometheus.CounterValue, float64(n.Dropped()), "dropped")
		ch <- prometheus.MustNewConstMetric(c.notificationsDesc, prometheus.CounterValue, float64(n.Skipped()), "skipped")
	}

	ch <- prometheus.MustNewConstMetric(
		c.uptimeDesc, prometheus.GaugeValue,
		time.Since(c.startTime).Seconds(),
	)
}

func (c *Collector) collectCount(ctx context.Context, ch chan<- prometheus.Metric, rc RowCounter, desc *prometheus.Desc, what string) {
	if rc == nil {
		return
	}
	n, err := rc.Count(ctx)
	if err != nil {
		c.logger.Error("counting "+what, "error", err)
		return
	}
	ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, float64(n))
}
