package mqtt

import "strings"

// Match reports whether topic matches the subscription filter, honoring
// the "+" single-level and "#" multi-level wildcards. It implements local
// dispatch matching only; broker-side rules such as "#" not matching
// $SYS topics are left to the broker.
func Match(filter, topic string) bool {
	if filter == topic {
		return true
	}

	fp := strings.Split(filter, "/")
	tp := strings.Split(topic, "/")

	for i, part := range fp {
		if part == "#" {
			return true
		}

		if i >= len(tp) {
			return false
		}

		if part != "+" && part != tp[i] {
			return false
		}
	}

	return len(fp) == len(tp)
}
