package copyscheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeAdmission_ReservedShareServesHigherPriorityFirst(t *testing.T) {
	// Two non-empty classes, each wants more than its reserved share, but the
	// budget only covers reserved shares: the higher-priority (lower index)
	// class must not be starved in favor of the lower one.
	queueLen := []int{5, 5}
	reserved := []uint32{1, 1}
	weight := []uint32{1, 1}

	assigned := computeAdmission(queueLen, 2, 100, 0, reserved, weight)
	assert.Equal(t, []int{1, 1}, assigned)
}

func TestComputeAdmission_NeverExceedsQueueLength(t *testing.T) {
	queueLen := []int{2, 0, 3}
	reserved := []uint32{1, 1, 1}
	weight := []uint32{1, 1, 1}

	assigned := computeAdmission(queueLen, 100, 100, 0, reserved, weight)
	for i, n := range assigned {
		assert.LessOrEqual(t, n, queueLen[i])
	}
}

func TestComputeAdmission_GlobalCapBoundsTotalAssignment(t *testing.T) {
	queueLen := []int{10, 10, 10}
	reserved := []uint32{1, 1, 1}
	weight := []uint32{1, 1, 1}

	assigned := computeAdmission(queueLen, 1000, 5, 0, reserved, weight)
	total := 0
	for _, n := range assigned {
		total += n
	}
	assert.Equal(t, 5, total)
}

func TestComputeAdmission_NoRoomWhenAlreadyAtGlobalCap(t *testing.T) {
	queueLen := []int{5, 5}
	reserved := []uint32{1, 1}
	weight := []uint32{1, 1}

	assigned := computeAdmission(queueLen, 100, 5, 5, reserved, weight)
	assert.Equal(t, []int{0, 0}, assigned)
}

func TestComputeAdmission_SkipsEmptyClassesInReservedPass(t *testing.T) {
	queueLen := []int{0, 5}
	reserved := []uint32{1, 1}
	weight := []uint32{1, 1}

	assigned := computeAdmission(queueLen, 1, 100, 0, reserved, weight)
	assert.Equal(t, []int{0, 1}, assigned)
}

func TestComputeAdmission_WeightedResidualDistribution(t *testing.T) {
	// Reserved shares are zero, so the whole budget is distributed by
	// weight: class 0 should receive roughly twice what class 1 receives.
	queueLen := []int{100, 100}
	reserved := []uint32{0, 0}
	weight := []uint32{2, 1}

	assigned := computeAdmission(queueLen, 30, 1000, 0, reserved, weight)
	total := assigned[0] + assigned[1]
	require.Equal(t, 30, total)
	assert.Greater(t, assigned[0], assigned[1])
}

func TestComputeAdmission_TerminatesWithZeroWeightEverywhere(t *testing.T) {
	queueLen := []int{5, 5}
	reserved := []uint32{0, 0}
	weight := []uint32{0, 0}

	assert.NotPanics(t, func() {
		assigned := computeAdmission(queueLen, 10, 100, 0, reserved, weight)
		assert.Equal(t, []int{0, 0}, assigned)
	})
}

func TestComputeAdmission_FullyDrainsWhenBudgetSufficient(t *testing.T) {
	queueLen := []int{3, 4, 2}
	reserved := []uint32{1, 1, 1}
	weight := []uint32{1, 1, 1}

	assigned := computeAdmission(queueLen, 100, 100, 0, reserved, weight)
	assert.Equal(t, queueLen, assigned)
}
