// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package topics implements MQTT topic filter matching, validation and the
// command-endpoint subscription filter grammar.
package topics

import "strings"

// Match checks if the topic matches the given filter according to MQTT
// wildcard rules:
//   - '+' matches exactly one topic level.
//   - '#' matches any number of trailing levels and must be the last level.
//   - Topics starting with '$' are not matched by filters starting with a
//     wildcard.
//
// A malformed filter never matches; the error is not surfaced because the
// endpoint only matches against filters it built itself.
func Match(filter, topic string) bool {
	if ValidateFilter(filter) != nil || topic == "" {
		return false
	}
	if filter == topic {
		return true
	}

	filterLevels := strings.Split(filter, "/")
	topicLevels := strings.Split(topic, "/")

	// "The Server MUST NOT match Topic Filters starting with a wildcard
	// character with Topic Names beginning with a $ character."
	if strings.HasPrefix(topic, "$") && (filterLevels[0] == "+" || filterLevels[0] == "#") {
		return false
	}

	for i, fLevel := range filterLevels {
		if fLevel == "#" {
			// Matches the parent and any number of child levels.
			return true
		}
		if i >= len(topicLevels) {
			// Filter is longer than the topic and the extra level is not '#'.
			return false
		}
		if fLevel == "+" {
			continue
		}
		if fLevel != topicLevels[i] {
			return false
		}
	}

	// All filter levels consumed without '#'; topic must be fully consumed too.
	return len(filterLevels) == len(topicLevels)
}
