package moq

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSubscriberTrackAdvance(t *testing.T) {
	st := &SubscriberTrack{Track: Track{Name: "video"}, State: TrackPending}

	require.NoError(t, st.Advance(TrackOpen))
	require.Equal(t, TrackOpen, st.State)

	require.NoError(t, st.Advance(TrackEnded))
	require.Equal(t, TrackEnded, st.State)

	require.Error(t, st.Advance(TrackOpen))
}

func TestSubscriberTrackRejectsBackwardMove(t *testing.T) {
	st := &SubscriberTrack{Track: Track{Name: "audio"}, State: TrackOpen}
	require.Error(t, st.Advance(TrackPending))
	require.Equal(t, TrackOpen, st.State)
}
