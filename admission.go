package copyscheduler

// computeAdmission implements the admission controller's per-cycle
// algorithm (spec §4.3): given each class's current queue length, the
// cycle's quota and global cap, and per-class reserved/weight shares, it
// returns how many requests to admit from each class this cycle.
//
// classes are addressed by dense index (PriorityClass values are already a
// contiguous 0..classCount-1 range; see enumerateClasses). queueLen, reserved
// and weight must all be len(classes)-sized slices, one entry per class, in
// ascending (highest-to-lowest priority) order.
//
// The algorithm never starves a non-empty higher-priority class in favor of
// a lower-priority one within the same cycle: step 1 gives every non-empty
// class its reserved share first, in ascending index order, before any
// residual quota is distributed by weight.
func computeAdmission(queueLen []int, cycleQuota, maxInflightGlobal, totalInflight uint32, reserved, weight []uint32) []int {
	n := len(queueLen)
	assigned := make([]int, n)

	budget := cycleQuota
	if room := maxInflightGlobal - totalInflight; maxInflightGlobal <= totalInflight {
		budget = 0
	} else if room < budget {
		budget = room
	}
	remaining := int(budget)
	if remaining <= 0 {
		return assigned
	}

	// Step 1: reserved shares, ascending class index, non-empty classes only.
	for c := 0; c < n && remaining > 0; c++ {
		if queueLen[c] == 0 {
			continue
		}
		take := minInt(queueLen[c], int(reserved[c]))
		take = minInt(take, remaining)
		assigned[c] += take
		remaining -= take
	}

	// Step 2: distribute any residual quota by weight, ascending index,
	// iterating until either the budget is exhausted or no class can
	// accept more.
	for remaining > 0 {
		var totalWeight uint64
		anyCapacity := false
		for c := 0; c < n; c++ {
			if queueLen[c]-assigned[c] > 0 {
				totalWeight += uint64(weight[c])
				anyCapacity = true
			}
		}
		if !anyCapacity || totalWeight == 0 {
			break
		}

		progressed := false
		for c := 0; c < n && remaining > 0; c++ {
			capacity := queueLen[c] - assigned[c]
			if capacity <= 0 {
				continue
			}
			// Each class's share is taken from what is still unassigned,
			// against the weight of the classes not yet served this round.
			share := ceilDiv(uint64(remaining)*uint64(weight[c]), totalWeight)
			totalWeight -= uint64(weight[c])
			take := minInt(capacity, int(share))
			take = minInt(take, remaining)
			if take <= 0 {
				continue
			}
			assigned[c] += take
			remaining -= take
			progressed = true
		}
		if !progressed {
			break
		}
	}

	return assigned
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func ceilDiv(a, b uint64) uint64 {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}
