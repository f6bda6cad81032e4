package transporthealth

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyHealthy(t *testing.T) {
	snapshot := Snapshot{FailureStreak: 0, QueueDepth: 0, LastCycleFailed: 0}
	require.Equal(t, Healthy, snapshot.Classify().State)
}

func TestClassifyDegradedOnLowFailureStreak(t *testing.T) {
	for _, streak := range []int{1, 2} {
		snapshot := Snapshot{FailureStreak: streak}
		require.Equal(t, Degraded, snapshot.Classify().State)
	}
}

func TestClassifyDegradedOnQueueDepthOrLastCycleFailed(t *testing.T) {
	require.Equal(t, Degraded, Snapshot{QueueDepth: 1}.Classify().State)
	require.Equal(t, Degraded, Snapshot{LastCycleFailed: 1}.Classify().State)
}

func TestClassifyUnhealthyAtThreeOrMoreFailureStreak(t *testing.T) {
	require.Equal(t, Unhealthy, Snapshot{FailureStreak: 3}.Classify().State)
	require.Equal(t, Unhealthy, Snapshot{FailureStreak: 10}.Classify().State)
}
