package netio

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestAddress_ConstructorsAndAccessors(t *testing.T) {
	a := NewAddress(8080, true, false)
	require.Equal(t, unix.AF_INET, a.Family())
	require.Equal(t, uint16(8080), a.Port())
	require.Equal(t, "127.0.0.1", a.IP().String())

	b, err := NewAddressFromIPPort("10.0.0.5", 443, false)
	require.NoError(t, err)
	require.Equal(t, "10.0.0.5:443", b.String())

	_, err = NewAddressFromIPPort("not-an-ip", 1, false)
	require.Error(t, err)
}

func TestAddress_V6Wildcard(t *testing.T) {
	a := NewAddress(0, false, true)
	require.Equal(t, unix.AF_INET6, a.Family())
	require.True(t, a.IP().Equal(net.IPv6unspecified))
}
