package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAuthorization(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   Presented
		ok     bool
	}{
		{name: "token scheme", header: "Token abc", want: Presented{Scheme: SchemeToken, Token: "abc"}, ok: true},
		{name: "bearer scheme", header: "Bearer  abc ", want: Presented{Scheme: SchemeBearer, Token: "abc"}, ok: true},
		{name: "basic with code", header: "Basic " + b64("abc:123456"), want: Presented{Scheme: SchemeBasic, Token: "abc", Code: "123456"}, ok: true},
		{name: "basic without code", header: "Basic " + b64("abc"), want: Presented{Scheme: SchemeBasic, Token: "abc"}, ok: true},
		{name: "basic empty user", header: "Basic " + b64(":123456")},
		{name: "empty"},
		{name: "scheme only", header: "Bearer"},
		{name: "unknown scheme", header: "Negotiate abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, why := ParseAuthorization(tt.header)
			require.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
				assert.Empty(t, why)
			} else {
				assert.NotEmpty(t, why)
			}
		})
	}
}

func TestCandidates(t *testing.T) {
	t.Run("printable decoding yields two candidates", func(t *testing.T) {
		c := Candidates(b64("token-1"))
		require.Len(t, c, 2)
		assert.Equal(t, EncodingRaw, c[0].Encoding)
		assert.False(t, c[0].Key.Base64)
		assert.Equal(t, EncodingBase64, c[1].Encoding)
		assert.True(t, c[1].Key.Base64)
		assert.Equal(t, "token-1", c[1].Key.Token.Value())
	})

	t.Run("binary decoding is ignored", func(t *testing.T) {
		c := Candidates("abc")
		require.Len(t, c, 1)
		assert.Equal(t, EncodingRaw, c[0].Encoding)
	})

	t.Run("unpadded input decodes", func(t *testing.T) {
		c := Candidates("aGVsbG8")
		require.Len(t, c, 2)
		assert.Equal(t, "hello", c[1].Key.Token.Value())
	})
}

func TestMessages(t *testing.T) {
	unknown := newReason(ReasonUnknownToken)
	expired := newReason(ReasonExpired)

	assert.Equal(t, []string{"Unknown token"}, Messages([]Reason{unknown, unknown}))
	assert.Equal(t, []string{"Token has expired"}, Messages([]Reason{unknown, expired, expired}))
	assert.Empty(t, Messages(nil))
}
