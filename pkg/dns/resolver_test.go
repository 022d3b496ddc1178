package dns

import (
	"testing"

	"github.com/miekg/dns"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInstanceName(t *testing.T) {
	tests := []struct {
		input       string
		wantService string
		wantN       int
		wantErr     bool
	}{
		{input: "qrs-1", wantService: "qrs", wantN: 1},
		{input: "qrs.search-3", wantService: "qrs.search", wantN: 3},
		{input: "web-api-2", wantService: "web-api", wantN: 2},
		{input: "qrs", wantErr: true},
		{input: "qrs-abc", wantErr: true},
		{input: "qrs-0", wantErr: true},
		{input: "-1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			service, n, err := parseInstanceName(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantService, service)
			assert.Equal(t, tt.wantN, n)
		})
	}
}

func addrs(t *testing.T, rrs []dns.RR) []string {
	t.Helper()
	out := make([]string, 0, len(rrs))
	for _, rr := range rrs {
		a, ok := rr.(*dns.A)
		require.True(t, ok)
		out = append(out, a.A.String())
	}
	return out
}

func TestResolver(t *testing.T) {
	reg := NewRegistry("rolekeeper")
	reg.Set("qrs.search", []Endpoint{ep("w1", "10.0.0.1"), ep("w2", "10.0.0.2"), ep("w3", "10.0.0.3")})
	r := NewResolver(reg, zerolog.Nop())

	rrs, err := r.Resolve("qrs.search.rolekeeper.")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"}, addrs(t, rrs))
	assert.Equal(t, "qrs.search.rolekeeper.", rrs[0].Header().Name)
	assert.Equal(t, uint32(recordTTL), rrs[0].Header().Ttl)

	rrs, err = r.Resolve("qrs.search-2.rolekeeper")
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.2"}, addrs(t, rrs))
	assert.Equal(t, "qrs.search-2.rolekeeper.", rrs[0].Header().Name)

	_, err = r.Resolve("qrs.search-4.rolekeeper")
	assert.Error(t, err)
	_, err = r.Resolve("bs.search.rolekeeper")
	assert.Error(t, err)
}

func TestResolverInDomain(t *testing.T) {
	r := NewResolver(NewRegistry("rolekeeper"), zerolog.Nop())
	assert.True(t, r.InDomain("qrs.search.rolekeeper."))
	assert.True(t, r.InDomain("ROLEKEEPER"))
	assert.False(t, r.InDomain("example.com."))
	assert.False(t, r.InDomain("notrolekeeper."))
}
