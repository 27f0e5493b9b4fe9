package rooms

import (
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/require"
)

func TestCanonicalIDExample(t *testing.T) {
	require.Equal(t, "7-42", CanonicalID(7, 42))
	require.Equal(t, "7-42", CanonicalID(42, 7))
}

func TestCanonicalIDSymmetry(t *testing.T) {
	symmetric := func(a, b uint32) bool {
		return CanonicalID(int(a), int(b)) == CanonicalID(int(b), int(a))
	}
	require.NoError(t, quick.Check(symmetric, nil))
}

func TestCanonicalIDUniqueness(t *testing.T) {
	unique := func(a, b, c, d uint32) bool {
		samePair := (a == c && b == d) || (a == d && b == c)
		sameID := CanonicalID(int(a), int(b)) == CanonicalID(int(c), int(d))
		return samePair == sameID
	}
	require.NoError(t, quick.Check(unique, &quick.Config{MaxCount: 5000}))
}

func TestCanonicalIDUniquenessNearCollisions(t *testing.T) {
	// Pairs whose concatenated digits coincide must still differ.
	require.NotEqual(t, CanonicalID(1, 23), CanonicalID(12, 3))
	require.NotEqual(t, CanonicalID(11, 1), CanonicalID(1, 11))
}

func TestParseRoundTrip(t *testing.T) {
	roundTrip := func(a, b uint32) bool {
		x, y, err := Parse(CanonicalID(int(a), int(b)))
		if err != nil {
			return false
		}
		lo, hi := int(a), int(b)
		if lo > hi {
			lo, hi = hi, lo
		}
		return x == lo && y == hi
	}
	require.NoError(t, quick.Check(roundTrip, nil))
}

func TestParseRejects(t *testing.T) {
	for _, room := range []string{"", "7", "42-7", "a-b", "7-", "-7", "7-42-1", "07-42"} {
		t.Run(room, func(t *testing.T) {
			_, _, err := Parse(room)
			require.ErrorIs(t, err, ErrInvalidRoom)
		})
	}
}

func TestPeer(t *testing.T) {
	req := require.New(t)

	peer, err := Peer("7-42", 7)
	req.NoError(err)
	req.Equal(42, peer)

	peer, err = Peer("7-42", 42)
	req.NoError(err)
	req.Equal(7, peer)

	_, err = Peer("7-42", 9)
	req.ErrorIs(err, ErrInvalidRoom)
}
