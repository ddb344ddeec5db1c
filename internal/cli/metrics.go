package cli

import (
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// metricRows flattens the minisync counters gathered from g into
// name/value rows. Families are sorted by name, labeled series by labels.
func metricRows(g prometheus.Gatherer) ([][]string, error) {
	families, err := g.Gather()
	if err != nil {
		return nil, err
	}
	var rows [][]string
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), "minisync_") {
			continue
		}
		for _, m := range mf.GetMetric() {
			name := mf.GetName()
			if labels := m.GetLabel(); len(labels) > 0 {
				pairs := make([]string, len(labels))
				for i, l := range labels {
					pairs[i] = l.GetName() + "=" + strconv.Quote(l.GetValue())
				}
				name += "{" + strings.Join(pairs, ",") + "}"
			}
			rows = append(rows, []string{name, strconv.FormatFloat(m.GetCounter().GetValue(), 'f', -1, 64)})
		}
	}
	return rows, nil
}

// reportMetrics prints the sync counters to stderr when --metrics is set,
// so JSON on stdout stays a single document.
func (e *env) reportMetrics(opts *RootOptions, cmd *cobra.Command) {
	if !opts.Metrics {
		return
	}
	rows, err := metricRows(e.reg)
	if err != nil {
		e.logger.Warn("gather metrics", "error", err)
		return
	}
	writeTable(cmd.ErrOrStderr(), []string{"Metric", "Value"}, rows)
}
