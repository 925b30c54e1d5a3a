// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package topics

import (
	"errors"
	"strings"
)

// Literal segments of the command topic space.
const (
	commandPrefix  = "vehicles/"
	commandSegment = "/commands/"
)

// ErrInvalidSegment indicates a topic segment that is empty or would break
// the filter grammar.
var ErrInvalidSegment = errors.New("invalid topic segment")

// CommandFilter builds the subscription filter for a command endpoint:
//
//	vehicles/<modelID>/commands/<clientID>/<commandName>
//
// An empty commandName subscribes to all commands via the single-level
// wildcard. modelID and clientID must be nonempty literal segments.
func CommandFilter(modelID, clientID, commandName string) (string, error) {
	if err := validateSegment(modelID); err != nil {
		return "", err
	}
	if err := validateSegment(clientID); err != nil {
		return "", err
	}
	if commandName == "" {
		commandName = "+"
	} else if err := validateSegment(commandName); err != nil {
		return "", err
	}

	var b strings.Builder
	b.Grow(len(commandPrefix) + len(modelID) + len(commandSegment) + len(clientID) + 1 + len(commandName))
	b.WriteString(commandPrefix)
	b.WriteString(modelID)
	b.WriteString(commandSegment)
	b.WriteString(clientID)
	b.WriteByte('/')
	b.WriteString(commandName)

	return b.String(), nil
}

// validateSegment rejects segments that are empty or contain separator,
// wildcard or null characters.
func validateSegment(s string) error {
	if s == "" || strings.ContainsAny(s, "/+#") || strings.ContainsRune(s, 0) {
		return ErrInvalidSegment
	}
	return nil
}
