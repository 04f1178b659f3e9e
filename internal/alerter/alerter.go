// Package alerter evaluates threshold rules against statistics reports and
// sends a consolidated notification when any of them match.
package alerter

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"sort"
	"strings"
	"time"

	"PcapLedger/internal/config"
	"PcapLedger/internal/core/model"
	"PcapLedger/internal/notification"

	"github.com/gomarkdown/markdown"
)

const protocolMetricPrefix = "protocol:"

// Alert is a rule that matched, with the observed value.
type Alert struct {
	Rule  config.AlerterRule
	Value float64
	Unit  string
}

// Alerter holds validated rules and the notifier triggered alerts go to.
type Alerter struct {
	rules    []config.AlerterRule
	notifier notification.Notifier
}

// New validates the rules of cfg. A nil notifier means alerts are only
// returned, never sent.
func New(cfg config.AlerterConfig, notifier notification.Notifier) (*Alerter, error) {
	for i, rule := range cfg.Rules {
		if err := validateRule(rule); err != nil {
			return nil, fmt.Errorf("alerter rule %d (%s): %w", i, rule.Name, err)
		}
	}
	return &Alerter{rules: cfg.Rules, notifier: notifier}, nil
}

func validateRule(rule config.AlerterRule) error {
	switch rule.Operator {
	case ">", "<", "=", ">=", "<=":
	default:
		return fmt.Errorf("unknown operator '%s'", rule.Operator)
	}
	switch rule.Metric {
	case "total_packets", "total_bytes", "average_size":
		return nil
	}
	if label, ok := strings.CutPrefix(rule.Metric, protocolMetricPrefix); ok {
		if !model.Protocol(label).Valid() {
			return fmt.Errorf("unknown protocol label '%s'", label)
		}
		return nil
	}
	return fmt.Errorf("unknown metric '%s'", rule.Metric)
}

// Evaluate returns the rules that match report, in rule order.
func (a *Alerter) Evaluate(report model.Report) []Alert {
	var alerts []Alert
	for _, rule := range a.rules {
		value, unit := observe(report, rule.Metric)
		if check(value, rule.Threshold, rule.Operator) {
			alerts = append(alerts, Alert{Rule: rule, Value: value, Unit: unit})
		}
	}
	return alerts
}

func observe(report model.Report, metric string) (float64, string) {
	switch metric {
	case "total_packets":
		return float64(report.TotalPackets), "packets"
	case "total_bytes":
		return float64(report.PacketSizeStats.Total), "bytes"
	case "average_size":
		return report.PacketSizeStats.Average, "bytes"
	}
	label := strings.TrimPrefix(metric, protocolMetricPrefix)
	return float64(report.ProtocolDistribution[label]), "packets"
}

// check compares a value against a threshold based on an operator.
func check(value, threshold float64, operator string) bool {
	switch operator {
	case ">":
		return value > threshold
	case "<":
		return value < threshold
	case "=":
		return value == threshold
	case ">=":
		return value >= threshold
	case "<=":
		return value <= threshold
	default:
		return false
	}
}

// Render builds the notification subject and HTML body for alerts, followed
// by an overview of the report they were raised against.
func Render(alerts []Alert, report model.Report) (subject, body string) {
	parts := make([]string, 0, len(alerts))
	for _, al := range alerts {
		parts = append(parts, fmt.Sprintf("<h3>Alert: %s</h3>"+
			"<ul>"+
			"<li><b>Metric:</b> <code>%s</code></li>"+
			"<li><b>Condition:</b> <code>%s %.2f</code></li>"+
			"<li><b>Observed Value:</b> <code>%s %s</code></li>"+
			"</ul>",
			html.EscapeString(al.Rule.Name), html.EscapeString(al.Rule.Metric),
			html.EscapeString(al.Rule.Operator), al.Rule.Threshold,
			formatValue(al.Value), al.Unit))
	}

	subject = fmt.Sprintf("PcapLedger Alert Summary (%d Triggered)", len(alerts))
	body = "<h1>PcapLedger Alert Summary</h1>" +
		"<p>The following alerts were triggered by the latest statistics report:</p><hr>" +
		strings.Join(parts, "<hr>")

	overview := markdown.ToHTML([]byte(overviewMarkdown(report)), nil, nil)
	body += "<hr><h2>Traffic Overview</h2>" + string(overview)
	return subject, body
}

const overviewTopN = 5

func overviewMarkdown(report model.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%d** packets, **%d** bytes.\n\n", report.TotalPackets, report.PacketSizeStats.Total)

	labels := make([]string, 0, len(report.ProtocolDistribution))
	for label := range report.ProtocolDistribution {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	b.WriteString("| Protocol | Packets |\n|---|---|\n")
	for _, label := range labels {
		fmt.Fprintf(&b, "| %s | %d |\n", label, report.ProtocolDistribution[label])
	}

	if len(report.TopSourceIPs) > 0 {
		b.WriteString("\n| Source | Packets |\n|---|---|\n")
		for _, c := range report.TopSourceIPs[:min(overviewTopN, len(report.TopSourceIPs))] {
			fmt.Fprintf(&b, "| `%s` | %d |\n", c.Key, c.Count)
		}
	}
	return b.String()
}

func formatValue(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.2f", v)
}

// Check evaluates report and sends one consolidated notification when any
// rule matches. The matched alerts are returned even if sending fails.
func (a *Alerter) Check(report model.Report) ([]Alert, error) {
	alerts := a.Evaluate(report)
	if len(alerts) == 0 || a.notifier == nil {
		return alerts, nil
	}

	slog.Info("alert evaluation completed", "triggered", len(alerts))
	subject, body := Render(alerts, report)
	if err := a.notifier.Send(subject, body); err != nil {
		return alerts, fmt.Errorf("failed to send alert notification: %w", err)
	}
	return alerts, nil
}

// ReportSource produces the report a periodic check evaluates.
type ReportSource func(ctx context.Context) (model.Report, error)

// Run checks the report from source every interval until ctx is done.
func (a *Alerter) Run(ctx context.Context, interval time.Duration, source ReportSource) {
	slog.Info("alerter started", "interval", interval, "rules", len(a.rules))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			report, err := source(ctx)
			if err != nil {
				slog.Error("alerter could not build report", "error", err)
				continue
			}
			if _, err := a.Check(report); err != nil {
				slog.Error("alerter notification failed", "error", err)
			}
		case <-ctx.Done():
			slog.Info("alerter stopped")
			return
		}
	}
}
