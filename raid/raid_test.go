package raid_test

import (
	"testing"

	"github.com/batra98/wfs/diskio"
	"github.com/batra98/wfs/ondisk"
	"github.com/batra98/wfs/raid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"
)

func makeDisks(t *testing.T, n int, size int64) diskio.Array {
	t.Helper()
	arr := make(diskio.Array, n)
	for i := range arr {
		stream := bytesextra.NewReadWriteSeeker(make([]byte, size))
		arr[i] = diskio.New(stream, size)
	}
	return arr
}

func TestStripeLocateRoundRobin(t *testing.T) {
	m := raid.New(makeDisks(t, 2, ondisk.BlockSize*4), ondisk.ModeStripe)

	d, phys, err := m.Locate(0)
	require.NoError(t, err)
	assert.Equal(t, 0, d)
	assert.EqualValues(t, 0, phys)

	d, phys, err = m.Locate(1)
	require.NoError(t, err)
	assert.Equal(t, 1, d)
	assert.EqualValues(t, 0, phys)

	d, phys, err = m.Locate(2)
	require.NoError(t, err)
	assert.Equal(t, 0, d)
	assert.EqualValues(t, 1, phys)
}

func TestMirrorLocateAlwaysPrimary(t *testing.T) {
	m := raid.New(makeDisks(t, 3, ondisk.BlockSize*4), ondisk.ModeMirror)
	for logical := int64(0); logical < 4; logical++ {
		d, phys, err := m.Locate(logical)
		require.NoError(t, err)
		assert.Equal(t, 0, d)
		assert.Equal(t, logical, phys)
	}
}

func TestMirrorDataBlockWriteReplicatesToAllDisks(t *testing.T) {
	disks := makeDisks(t, 3, ondisk.BlockSize*2)
	m := raid.New(disks, ondisk.ModeMirror)

	payload := make([]byte, ondisk.BlockSize)
	for i := range payload {
		payload[i] = 0xAB
	}
	require.NoError(t, m.WriteDataBlock(0, 1, payload))

	for i, d := range disks {
		buf := make([]byte, ondisk.BlockSize)
		require.NoError(t, d.ReadAt(ondisk.BlockSize, buf))
		assert.Equal(t, payload, buf, "disk %d did not receive replicated write", i)
	}
}

func TestStripeDataBlockStaysOnMappedDiskOnly(t *testing.T) {
	disks := makeDisks(t, 2, ondisk.BlockSize*2)
	m := raid.New(disks, ondisk.ModeStripe)

	payload := make([]byte, ondisk.BlockSize)
	for i := range payload {
		payload[i] = 0x7A
	}
	require.NoError(t, m.WriteDataBlock(0, 1, payload))

	other := make([]byte, ondisk.BlockSize)
	require.NoError(t, disks[0].ReadAt(0, other))
	assert.NotEqual(t, payload, other, "stripe mode must not replicate")
}

func TestVerifiedMirrorReadsPluralityValue(t *testing.T) {
	disks := makeDisks(t, 3, ondisk.BlockSize)
	m := raid.New(disks, ondisk.ModeVerifiedMirror)

	majority := make([]byte, ondisk.BlockSize)
	for i := range majority {
		majority[i] = 0x11
	}
	minority := make([]byte, ondisk.BlockSize)
	for i := range minority {
		minority[i] = 0x22
	}

	require.NoError(t, disks[0].WriteAt(0, majority))
	require.NoError(t, disks[1].WriteAt(0, majority))
	require.NoError(t, disks[2].WriteAt(0, minority))

	got, err := m.ReadDataBlock(0, 0)
	require.NoError(t, err)
	assert.Equal(t, majority, got)
}

func TestMetaWriteReplicatesOnlyUnderMirror(t *testing.T) {
	disks := makeDisks(t, 2, ondisk.BlockSize)
	m := raid.New(disks, ondisk.ModeStripe)
	payload := []byte("superblock-ish")
	require.NoError(t, m.WriteMeta(0, payload))

	other := make([]byte, len(payload))
	require.NoError(t, disks[1].ReadAt(0, other))
	assert.NotEqual(t, payload, other)
}

func TestLocateRejectsNegativeIndex(t *testing.T) {
	m := raid.New(makeDisks(t, 2, ondisk.BlockSize), ondisk.ModeStripe)
	_, _, err := m.Locate(-1)
	assert.Error(t, err)
}
