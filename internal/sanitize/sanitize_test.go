package sanitize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDisplayName_StripsExecutableMarkup(t *testing.T) {
	req := require.New(t)

	got := DisplayName("<script>alert(1)</script>Bob")

	req.NotContains(got, "<")
	req.NotContains(got, ">")
	req.Contains(got, "Bob")
	req.Equal("alert(1)Bob", got)
}

func TestDisplayName_EncodesEntities(t *testing.T) {
	req := require.New(t)

	req.Equal("Bob &amp; Alice", DisplayName("Bob & Alice"))
	req.Equal("O&#39;Brien", DisplayName("  O'Brien  "))
}

func TestDisplayName_TruncatesToBound(t *testing.T) {
	req := require.New(t)

	got := DisplayName(strings.Repeat("a", 150))

	req.Len(got, MaxDisplayNameLength)
}

func TestDisplayName_EmptyAfterStripping(t *testing.T) {
	req := require.New(t)

	req.Empty(DisplayName("<b></b>   "))
	req.Empty(DisplayName("<script></script>"))
}

func TestMessageText_DoesNotTruncate(t *testing.T) {
	req := require.New(t)

	long := strings.Repeat("m", MaxMessageLength+1)

	// Over-long text survives sanitization; the chat service rejects it.
	req.Len(MessageText(long), MaxMessageLength+1)
}

func TestPeerSignalingID_Alphabet(t *testing.T) {
	req := require.New(t)

	req.Equal("peer-123", PeerSignalingID("peer-123"))
	req.Equal("peer_123", PeerSignalingID("peer _1 23!"))
	req.Empty(PeerSignalingID("!!! ###"))
}

func TestPeerSignalingID_TruncatesToBound(t *testing.T) {
	req := require.New(t)

	got := PeerSignalingID(strings.Repeat("p", 80))

	req.Len(got, MaxPeerIDLength)
}

func TestToken_HexOnlyLowercased(t *testing.T) {
	req := require.New(t)

	req.Equal("abc123def", Token(" ABC123DEF "))
	req.Equal("ee", Token("zzz'e--e%"))
	req.Empty(Token("ZZZZ!"))
}

func TestMaskIP_V4(t *testing.T) {
	req := require.New(t)

	req.Equal("203.0.113.x", MaskIP("203.0.113.42"))
	req.Equal("10.0.0.x", MaskIP("10.0.0.1"))
}

func TestMaskIP_V6(t *testing.T) {
	req := require.New(t)

	got := MaskIP("2001:db8:85a3:8d3:1319:8a2e:370:7348")

	req.Equal("2001:db8:85a3:8d3:x:x:x:x", got)
}

func TestMaskIP_Invalid(t *testing.T) {
	req := require.New(t)

	req.Equal("invalid", MaskIP("not-an-ip"))
	req.Equal("invalid", MaskIP(""))
}
