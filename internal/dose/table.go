package dose

import "strings"

// impulse computes bounded per-channel deltas for a single event,
// keyed on (source, severity, type-prefix). This is the single frozen
// table this package commits to in place of an open
// question ("the DOSE impulse table in the source is implicit across
// several source files"). Deltas are small and additive; Tick's decay
// pulls everything back toward baseline between events, so the table
// only needs to get the *direction* and rough *magnitude* right.
func impulse(eventType, severity, source string) (d, o, s, e float64) {
	switch {
	case strings.HasPrefix(eventType, "health.check.issue"):
		s -= severityScale(severity, 0.10)
		e -= severityScale(severity, 0.05)
	case strings.HasPrefix(eventType, "health.check.summary"):
		s += 0.02
	case strings.HasPrefix(eventType, "exploration."), strings.HasPrefix(eventType, "sensor."):
		d += 0.06
	case strings.HasPrefix(eventType, "runtime.crash"):
		s -= 0.15
		e -= 0.12
	case strings.HasPrefix(eventType, "runtime.polling"):
		s -= severityScale(severity, 0.05)
	case strings.HasPrefix(eventType, "runtime.reconnect"):
		o -= 0.03
		s -= 0.03
	case strings.HasPrefix(eventType, "type2.result"):
		e += 0.08
		d += 0.02
	case strings.HasPrefix(eventType, "type2.budget.exhausted"):
		s -= 0.04
	case strings.HasPrefix(eventType, "life.stage.changed"):
		d += 0.10
		o += 0.05
	case strings.HasPrefix(eventType, "operator."):
		o += 0.08
	case strings.HasPrefix(eventType, "eventbus.subscriber_error"):
		s -= 0.02
	}

	if source == "operator" || source == "router" {
		o += 0.03
	}
	if severity == "critical" {
		s -= 0.10
		e -= 0.08
	}

	return d, o, s, e
}

// severityScale scales a base magnitude by severity: warn gets the
// base, error 1.5x, critical 2x, and any other severity (info) half
// the base.
func severityScale(severity string, base float64) float64 {
	switch severity {
	case "critical":
		return base * 2
	case "error":
		return base * 1.5
	case "warn":
		return base
	default:
		return base * 0.5
	}
}
