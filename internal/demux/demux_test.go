package demux

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiocore/audiocore/internal/jitter"
	rtpwire "github.com/audiocore/audiocore/internal/rtp"
)

func newTestJitter() jitter.Jitter {
	return jitter.NewScatterGather(jitter.Config{Name: "t", Count: 4, BlockSize: 64, Threshold: 1})
}

func TestFeedAllocatesFirstSessionAsActive(t *testing.T) {
	var gotSSRC uint32
	var gotPT uint8
	var gotMime string

	d := New(func(ssrc uint32, pt uint8, mime string) (jitter.Jitter, error) {
		gotSSRC, gotPT, gotMime = ssrc, pt, mime
		return newTestJitter(), nil
	}, nil)

	err := d.Feed(rtpwire.Packet{SSRC: 1, PayloadType: rtpwire.PTMP3, SequenceNumber: 0, Payload: []byte("hi")})
	require.NoError(t, err)

	assert.Equal(t, uint32(1), gotSSRC)
	assert.Equal(t, rtpwire.PTMP3, gotPT)
	assert.Equal(t, "audio/mpeg", gotMime)
	require.Len(t, d.Descriptors(), 1)
}

func TestFeedDeliversPayloadToJitter(t *testing.T) {
	j := newTestJitter()
	d := New(func(uint32, uint8, string) (jitter.Jitter, error) { return j, nil }, nil)

	require.NoError(t, d.Feed(rtpwire.Packet{SSRC: 1, PayloadType: rtpwire.PTPCM, SequenceNumber: 1, Payload: []byte("payload")}))

	data, _ := j.Peer()
	assert.Equal(t, []byte("payload"), data)
}

func TestFeedSecondSSRCBecomesSuggestionNotActive(t *testing.T) {
	d := New(func(uint32, uint8, string) (jitter.Jitter, error) { return newTestJitter(), nil }, nil)

	require.NoError(t, d.Feed(rtpwire.Packet{SSRC: 1, PayloadType: rtpwire.PTMP3, SequenceNumber: 0}))

	var suggestedSSRC uint32
	d.OnSuggested(func(ssrc uint32, pt uint8, mime string) { suggestedSSRC = ssrc })

	require.NoError(t, d.Feed(rtpwire.Packet{SSRC: 2, PayloadType: rtpwire.PTMP3, SequenceNumber: 0}))

	assert.Equal(t, uint32(2), suggestedSSRC)
	assert.Len(t, d.Descriptors(), 1, "suggested ssrc must not be promoted to a tracked session")
}

func TestFeedTracksMissingSequenceNumbers(t *testing.T) {
	d := New(func(uint32, uint8, string) (jitter.Jitter, error) { return newTestJitter(), nil }, nil)

	require.NoError(t, d.Feed(rtpwire.Packet{SSRC: 1, PayloadType: rtpwire.PTMP3, SequenceNumber: 10}))
	require.NoError(t, d.Feed(rtpwire.Packet{SSRC: 1, PayloadType: rtpwire.PTMP3, SequenceNumber: 15}))

	descs := d.Descriptors()
	require.Len(t, descs, 1)
	assert.Equal(t, uint64(4), descs[0].Missing)
}

func TestFeedSeqOriginPerDescriptorNotGlobal(t *testing.T) {
	// A fresh descriptor (new ssrc after EndES) must not inherit the
	// previous descriptor's sequence origin -- this is the
	// REDESIGN FLAG fix: each Descriptor anchors its own seqorig.
	d := New(func(uint32, uint8, string) (jitter.Jitter, error) { return newTestJitter(), nil }, nil)

	require.NoError(t, d.Feed(rtpwire.Packet{SSRC: 1, PayloadType: rtpwire.PTMP3, SequenceNumber: 5000}))
	d.EndES()

	require.NoError(t, d.Feed(rtpwire.Packet{SSRC: 2, PayloadType: rtpwire.PTMP3, SequenceNumber: 0}))
	descs := d.Descriptors()
	require.Len(t, descs, 1)
	assert.Equal(t, uint64(0), descs[0].Missing, "new session must not see missing packets from an unrelated prior sequence space")
}

func TestFeedRoutesControlExtensionToCallback(t *testing.T) {
	d := New(func(uint32, uint8, string) (jitter.Jitter, error) { return newTestJitter(), nil }, nil)

	var gotCmds []rtpwire.Cmd
	d.OnControl(func(cmds []rtpwire.Cmd) { gotCmds = cmds })

	block, err := rtpwire.EncodeControlBlock([]rtpwire.Cmd{rtpwire.VolumeCmd(60)})
	require.NoError(t, err)

	require.NoError(t, d.Feed(rtpwire.Packet{PayloadType: rtpwire.PTControl, Extension: block}))

	require.Len(t, gotCmds, 1)
	assert.Equal(t, rtpwire.CmdVolume, gotCmds[0].ID)
	assert.Empty(t, d.Descriptors(), "control packets must not create a tracked session")
}

func TestEndESFlushesAndClearsSessions(t *testing.T) {
	j := newTestJitter()
	d := New(func(uint32, uint8, string) (jitter.Jitter, error) { return j, nil }, nil)

	require.NoError(t, d.Feed(rtpwire.Packet{SSRC: 1, PayloadType: rtpwire.PTMP3, SequenceNumber: 0}))
	require.Len(t, d.Descriptors(), 1)

	d.EndES()

	assert.Empty(t, d.Descriptors())
	assert.Equal(t, jitter.StateFlush, j.State())
}

func TestPayloadTypeOverrides(t *testing.T) {
	var gotMime string
	d := New(func(ssrc uint32, pt uint8, mime string) (jitter.Jitter, error) {
		gotMime = mime
		return newTestJitter(), nil
	}, map[uint8]string{200: "application/custom"})

	require.NoError(t, d.Feed(rtpwire.Packet{SSRC: 1, PayloadType: 200, SequenceNumber: 0}))
	assert.Equal(t, "application/custom", gotMime)
}
