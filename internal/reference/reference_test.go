package reference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celerix-dev/celerix-aci/pkg/services"
)

func TestIsReference(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"http://data.media.theplatform.com/media/data/Media/1", true},
		{"https://data.media.theplatform.com/media/data/Media/1", true},
		{"http://access.auth.theplatform.com/data/Account/1", true},
		{"http://data.media.theplatform.com/media/data/Media/Field/1", false},
		{"http://web.theplatform.com/media/data/Media/1", false},
		{"http://feed.media.theplatform.com/f/abc/1", false},
		{"http://www.comcast.com/data/Media/1", false},
		{"htt p://data.media.theplatform.com/media/data/Media/1", false},
		{"http://data.media.theplatform.com/media/data/Media", false},
		{"ftp://data.media.theplatform.com/media/data/Media/1", false},
		{"just a title", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsReference(tt.in), tt.in)
	}
}

func TestIsFieldReference(t *testing.T) {
	assert.True(t, IsFieldReference("http://data.media.theplatform.com/media/data/Media/Field/1"))
	assert.False(t, IsFieldReference("http://data.media.theplatform.com/media/data/Media/1"))
	assert.False(t, IsFieldReference("http://web.theplatform.com/media/data/Media/Field/1"))
	assert.False(t, IsFieldReference("http://data.media.theplatform.com/media/data/Media/Field/1/abc"))
	assert.False(t, IsFieldReference("not a url"))
}

func TestIsPortableReference(t *testing.T) {
	c := NewClassifier(services.Default())

	for _, s := range []string{TargetAccount, NoIDFound, NoGUIDFound, NoQualifiedFieldNameFound} {
		assert.True(t, c.IsPortableReference(s), s)
	}

	tests := []struct {
		in   string
		want bool
	}{
		{"urn:cts:aci:Media+Data+Service:Media:1:guid-1", true},
		{"URN:CTS:ACI:Media%20Data%20Service:Media:1:guid-1", true},
		{"urn:cts:aci:Media+Data+Service:MediaField:1:http%3A%2F%2Fexample.com$rating", true},
		{"urn:cts:aci:Media+Data+Service:Player:1:guid-1", false},
		{"urn:cts:aci:Nope+Service:Media:1:guid-1", false},
		{"urn:cts:aci:Media+Data+Service:Media:abc:guid-1", false},
		{"urn:cts:xyz:Media+Data+Service:Media:1:guid-1", false},
		{"urn:cts:aci:Media Data Service:Media:1:guid-1", false},
		{"http://data.media.theplatform.com/media/data/Media/1", false},
		{"urn:cts:aci:", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, c.IsPortableReference(tt.in), tt.in)
	}
}

func TestIsPortableFieldReference(t *testing.T) {
	c := NewClassifier(services.Default())

	assert.True(t, c.IsPortableFieldReference("urn:cts:aci:Media+Data+Service:MediaField:1:ns$rating"))
	assert.False(t, c.IsPortableFieldReference("urn:cts:aci:Media+Data+Service:Media:1:guid-1"))
	assert.False(t, c.IsPortableFieldReference(TargetAccount))
}

func TestClassesAreDisjoint(t *testing.T) {
	c := NewClassifier(services.Default())
	values := []string{
		"http://data.media.theplatform.com/media/data/Media/1",
		"http://data.media.theplatform.com/media/data/Media/Field/1",
		EncodeReference("Media Data Service", "Media", "1", "g"),
		EncodeFieldReference("Media Data Service", "MediaField", "1", "http://ns", "f"),
		TargetAccount,
	}
	for _, v := range values {
		assert.False(t, (IsReference(v) || IsFieldReference(v)) && c.IsPortableReference(v), v)
	}
}

func TestTokenRoundTrip(t *testing.T) {
	c := NewClassifier(services.Default())

	ref := EncodeReference("Media Data Service", "Media", "1", "guid with space")
	assert.Equal(t, "urn:cts:aci:Media+Data+Service:Media:1:guid+with+space", ref)
	assert.True(t, c.IsPortableReference(ref))

	tok, err := Parse(ref)
	require.NoError(t, err)
	assert.Equal(t, Token{Service: "Media Data Service", Endpoint: "Media", Owner: "1", Key: "guid with space"}, tok)
	assert.False(t, tok.IsField())

	field := EncodeFieldReference("Media Data Service", "MediaField", "1", "http://example.com/ns", "rating")
	assert.Equal(t, "urn:cts:aci:Media+Data+Service:MediaField:1:http%3A%2F%2Fexample.com%2Fns$rating", field)
	assert.True(t, c.IsPortableFieldReference(field))

	tok, err = Parse(field)
	require.NoError(t, err)
	assert.True(t, tok.IsField())
	assert.Equal(t, "http://example.com/ns", tok.Namespace())
	assert.Equal(t, "rating", tok.FieldName())
	assert.Equal(t, field, tok.String())
}

func TestEncodedTokensArePortable(t *testing.T) {
	c := NewClassifier(services.Default())

	for _, guid := range []string{"asset~1", "a:b", "a/b", "100%", "a+b", "a$b", "é", "x y~z"} {
		ref := EncodeReference("Media Data Service", "Media", "1", guid)
		assert.True(t, c.IsPortableReference(ref), ref)

		tok, err := Parse(ref)
		require.NoError(t, err, ref)
		assert.Equal(t, guid, tok.Key)
	}

	for _, name := range []string{"rating", "a+b", "100%", "score~2", "c:d"} {
		field := EncodeFieldReference("Media Data Service", "MediaField", "1", "http://ns~x/", name)
		assert.True(t, c.IsPortableFieldReference(field), field)

		tok, err := Parse(field)
		require.NoError(t, err, field)
		assert.Equal(t, "http://ns~x/", tok.Namespace())
		assert.Equal(t, name, tok.FieldName())
		assert.Equal(t, field, tok.String())
	}
}

func TestParseRejects(t *testing.T) {
	for _, s := range []string{TargetAccount, NoIDFound, "urn:cts:aci:a:b", "http://x"} {
		_, err := Parse(s)
		assert.ErrorIs(t, err, ErrMalformedToken, s)
	}
}

func TestSentinels(t *testing.T) {
	assert.True(t, IsUnresolved(NoIDFound))
	assert.True(t, IsUnresolved(NoGUIDFound))
	assert.True(t, IsUnresolved(NoQualifiedFieldNameFound))
	assert.False(t, IsUnresolved(TargetAccount))
	assert.True(t, IsSentinel(TargetAccount))
}
