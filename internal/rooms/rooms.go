// Package rooms derives the canonical identifier of a two-party conversation.
//
// Every caller (server broadcast target, client join target, history key) must
// go through CanonicalID; a caller that skips the sort splits a conversation
// into two rooms that never see each other's messages.
package rooms

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const delimiter = "-"

var ErrInvalidRoom = errors.New("invalid room id")

// CanonicalID returns "{min}-{max}" for the unordered pair {a, b}.
func CanonicalID(a, b int) string {
	if a > b {
		a, b = b, a
	}
	return strconv.Itoa(a) + delimiter + strconv.Itoa(b)
}

// Parse splits a canonical room id back into its participants, lowest first.
func Parse(room string) (int, int, error) {
	left, right, ok := strings.Cut(room, delimiter)
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidRoom, room)
	}
	a, err := strconv.Atoi(left)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidRoom, room)
	}
	b, err := strconv.Atoi(right)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidRoom, room)
	}
	if CanonicalID(a, b) != room {
		return 0, 0, fmt.Errorf("%w: %q is not canonical", ErrInvalidRoom, room)
	}
	return a, b, nil
}

// Peer returns the participant of room that is not self.
func Peer(room string, self int) (int, error) {
	a, b, err := Parse(room)
	if err != nil {
		return 0, err
	}
	switch self {
	case a:
		return b, nil
	case b:
		return a, nil
	}
	return 0, fmt.Errorf("%w: user %d is not a participant of %s", ErrInvalidRoom, self, room)
}
