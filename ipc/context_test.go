package ipc_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mobcore/emu/ipc"
	"github.com/mobcore/emu/kernel"
	"github.com/mobcore/emu/mem"
	"github.com/mobcore/emu/status"
)

func TestGetDescriptorRoundTrip(t *testing.T) {
	as := mem.NewAddressSpace(mem.LayoutModern)
	_, dataAddr, err := as.AllocChunk("data", 64, mem.Attr{Read: true, Write: true})
	require.NoError(t, err)
	_, hdrAddr, err := as.AllocChunk("hdr", 8, mem.Attr{Read: true, Write: true})
	require.NoError(t, err)

	payload := []byte("hello")
	require.NoError(t, as.WriteBytes(dataAddr, payload))
	require.NoError(t, as.NewDescriptorHeader(hdrAddr, dataAddr, false, false, uint32(len(payload)), 0))

	msg := &kernel.Message{Args: [4]kernel.Arg{{Kind: kernel.ArgDescriptorIn, Value: uint32(hdrAddr)}}}
	c := ipc.New(kernel.New(as, nil, nil, nil, nil), msg)

	got, err := c.GetDescriptor(0)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestWriteDescriptorOverflowLeavesBufferUntouched(t *testing.T) {
	as := mem.NewAddressSpace(mem.LayoutModern)
	_, dataAddr, err := as.AllocChunk("data", 64, mem.Attr{Read: true, Write: true})
	require.NoError(t, err)
	_, hdrAddr, err := as.AllocChunk("hdr", 12, mem.Attr{Read: true, Write: true})
	require.NoError(t, err)

	require.NoError(t, as.WriteBytes(dataAddr, []byte("XXXX")))
	require.NoError(t, as.NewDescriptorHeader(hdrAddr, dataAddr, false, true, 0, 2))

	msg := &kernel.Message{Args: [4]kernel.Arg{{Kind: kernel.ArgDescriptorOut, Value: uint32(hdrAddr)}}}
	c := ipc.New(kernel.New(as, nil, nil, nil, nil), msg)

	code := c.WriteDescriptor(0, []byte("too long"))
	require.Equal(t, status.Argument, code)

	got, err := as.ReadBytes(dataAddr, 4)
	require.NoError(t, err)
	require.Equal(t, []byte("XXXX"), got)
}

func TestGetPackageReadsRawBytes(t *testing.T) {
	as := mem.NewAddressSpace(mem.LayoutModern)
	_, addr, err := as.AllocChunk("pkg", 16, mem.Attr{Read: true, Write: true})
	require.NoError(t, err)
	require.NoError(t, as.Write32(addr, 0xDEADBEEF))

	msg := &kernel.Message{Args: [4]kernel.Arg{{Kind: kernel.ArgPackage, Value: uint32(addr)}}}
	c := ipc.New(kernel.New(as, nil, nil, nil, nil), msg)

	got, err := c.GetPackage(0, 4)
	require.NoError(t, err)
	require.Len(t, got, 4)
}
