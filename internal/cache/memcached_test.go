package cache

import "testing"

// TestNewMemcachedCache_RequiresAddrs verifies that the store identifier is
// mandatory; a missing address list is a construction error, not a default.
func TestNewMemcachedCache_RequiresAddrs(t *testing.T) {
	for _, addrs := range []string{"", "  ", " , "} {
		if _, err := NewMemcachedCache(addrs, 3600, 0, 0); err == nil {
			t.Errorf("NewMemcachedCache(%q) error = nil, want error", addrs)
		}
	}
}

// TestNewMemcachedCache_RejectsBadTTL verifies TTL bounds checking at startup.
func TestNewMemcachedCache_RejectsBadTTL(t *testing.T) {
	for _, ttl := range []int{0, -1, 31 * 24 * 60 * 60} {
		if _, err := NewMemcachedCache("localhost:11211", ttl, 0, 0); err == nil {
			t.Errorf("NewMemcachedCache(ttl=%d) error = nil, want error", ttl)
		}
	}
}

// TestParseAddrs verifies comma-separated address parsing.
func TestParseAddrs(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"localhost:11211", 1},
		{"host1:11211, host2:11211", 2},
		{" , host1:11211 ,", 1},
		{"", 0},
	}
	for _, tc := range tests {
		if got := parseAddrs(tc.in); len(got) != tc.want {
			t.Errorf("parseAddrs(%q) = %v, want %d addrs", tc.in, got, tc.want)
		}
	}
}
