package parser

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LinesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eflp_parser_lines_total",
			Help: "Total number of input lines read",
		},
		[]string{"vendor"},
	)

	RecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eflp_parser_records_total",
			Help: "Total number of normalized records emitted",
		},
		[]string{"vendor"},
	)

	SkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eflp_parser_skipped_lines_total",
			Help: "Total number of lines skipped as unmatched or blank",
		},
		[]string{"vendor"},
	)

	ParseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eflp_parser_parse_duration_seconds",
			Help:    "Duration of a whole-input parse in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"vendor"},
	)

	ParseErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eflp_parser_errors_total",
			Help: "Total number of failed parses",
		},
		[]string{"vendor", "kind"},
	)
)

// delimitedLabel stands in for the vendor label on CSV/TSV files, which are
// decoded whatever vendor was requested.
const delimitedLabel = "delimited"

func observe(vendor string, s Stats) {
	LinesTotal.WithLabelValues(vendor).Add(float64(s.Lines))
	RecordsTotal.WithLabelValues(vendor).Add(float64(s.Records))
	SkippedTotal.WithLabelValues(vendor).Add(float64(s.Skipped))
	ParseDuration.WithLabelValues(vendor).Observe(s.Duration.Seconds())
}
