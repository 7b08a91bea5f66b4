package store

import "testing"

func TestPRSERV(t *testing.T) {
	cases := []struct {
		id   int64
		want string
	}{
		{1, "0000000001"},
		{10, "000000000A"},
		{35, "000000000Z"},
		{36, "0000000010"},
		{1295, "00000000ZZ"},
		{1296, "0000000100"},
		// Beyond the padded width the identifier simply grows.
		{9007199254740991, "2GOSA7PA2GV"},
	}

	for _, tc := range cases {
		if got := PRSERV(tc.id); got != tc.want {
			t.Errorf("PRSERV(%d) = %q, want %q", tc.id, got, tc.want)
		}
	}
}
