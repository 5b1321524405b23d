package copyscheduler

import "fmt"

// CopyDirection distinguishes an outbound pull (fetch content from a remote
// peer into the local store) from an outbound push (send content to a
// remote peer).
type CopyDirection uint8

const (
	// OutboundPull fetches content from a remote peer into the local store.
	OutboundPull CopyDirection = iota
	// OutboundPush sends content to a remote peer.
	OutboundPush
)

// String implements fmt.Stringer.
func (d CopyDirection) String() string {
	switch d {
	case OutboundPull:
		return "OutboundPull"
	case OutboundPush:
		return "OutboundPush"
	default:
		return fmt.Sprintf("CopyDirection(%d)", uint8(d))
	}
}

// CopyReason is the closed set of reasons a copy may be requested, ordered
// by importance (most important first). This ordering is part of the
// priority function (Classify) and must never be reshuffled.
type CopyReason uint8

const (
	// ReasonPin is an explicit, user-requested pin of content.
	ReasonPin CopyReason = iota
	// ReasonPlace is a placement decision made by the build engine.
	ReasonPlace
	// ReasonCentralStorage is a copy to/from a central, durable store.
	ReasonCentralStorage
	// ReasonAsyncCopyOnPin is a best-effort copy triggered as a side effect
	// of a pin.
	ReasonAsyncCopyOnPin
	// ReasonProactiveBackground is a background proactive replication copy.
	ReasonProactiveBackground
	// ReasonProactiveCopyOnPut is a proactive copy triggered as a side
	// effect of a local put.
	ReasonProactiveCopyOnPut
	// ReasonNone is the least important / unclassified reason.
	ReasonNone

	reasonCount = int(ReasonNone) + 1
)

// String implements fmt.Stringer.
func (r CopyReason) String() string {
	switch r {
	case ReasonPin:
		return "Pin"
	case ReasonPlace:
		return "Place"
	case ReasonCentralStorage:
		return "CentralStorage"
	case ReasonAsyncCopyOnPin:
		return "AsyncCopyOnPin"
	case ReasonProactiveBackground:
		return "ProactiveBackground"
	case ReasonProactiveCopyOnPut:
		return "ProactiveCopyOnPut"
	case ReasonNone:
		return "None"
	default:
		return fmt.Sprintf("CopyReason(%d)", uint8(r))
	}
}

// ProactiveCopyLocationSource distinguishes the source used to pick a
// destination for a proactive push: a designated peer is preferred over a
// randomly chosen one. It is meaningful only for CopyDirection ==
// OutboundPush.
type ProactiveCopyLocationSource uint8

const (
	// SourceDesignated is a specifically chosen, preferred destination.
	SourceDesignated ProactiveCopyLocationSource = iota
	// SourceRandom is a randomly chosen destination.
	SourceRandom
)

// String implements fmt.Stringer.
func (s ProactiveCopyLocationSource) String() string {
	switch s {
	case SourceDesignated:
		return "Designated"
	case SourceRandom:
		return "Random"
	default:
		return fmt.Sprintf("ProactiveCopyLocationSource(%d)", uint8(s))
	}
}

// MaxAttempt is the highest attempt value Classify distinguishes; attempts
// above this are clamped, so all sufficiently-retried requests share the
// lowest-priority attempt tier.
const MaxAttempt = 4

// PriorityClass is a dense, zero-based index into the scheduler's enumerated
// class set. Lower values are higher priority. The scheduler precomputes
// every class Classify can produce and allocates one FIFO queue per class.
type PriorityClass uint32

// classCount is the size of the dense class index space: direction (2) x
// reason (reasonCount) x attempt tier (MaxAttempt+1) x source tier (2).
// Pulls are folded to source tier 0, so the pull indexes with source tier 1
// are part of the space but are never produced by Classify.
const (
	attemptTiers = MaxAttempt + 1
	sourceTiers  = 2
	classCount   = 2 * reasonCount * attemptTiers * sourceTiers
)

// clampAttempt bounds attempt to [0, MaxAttempt]; fresh attempts rank ahead
// of retries, and everything beyond MaxAttempt ranks together at the back.
func clampAttempt(attempt int) int {
	if attempt < 0 {
		return 0
	}
	if attempt > MaxAttempt {
		return MaxAttempt
	}
	return attempt
}

// Classify is the pure, total priority function. Lower return values mean
// higher priority. Its output is built, high-bit to low-bit, from:
//
//  1. direction (pulls rank ahead of pushes at equal reason/attempt)
//  2. reason ordinal (CopyReason's declared order)
//  3. attempt, clamped to [0, MaxAttempt] (fresher attempts rank ahead)
//  4. for pushes only, source (Designated ranks ahead of Random; pulls are
//     folded to a constant tier so they never interleave with push source
//     tiers)
//
// Classify never errors and never panics: an out-of-range reason is treated
// as ReasonNone, and out-of-range direction/source values are treated as
// their zero value, rather than rejected, since the function must be total
// over any Request a caller can construct.
func Classify(direction CopyDirection, reason CopyReason, attempt int, source ProactiveCopyLocationSource) PriorityClass {
	dir := 0
	if direction == OutboundPush {
		dir = 1
	}

	r := int(reason)
	if r < 0 || r >= reasonCount {
		r = int(ReasonNone)
	}

	a := clampAttempt(attempt)

	src := 0 // pulls (and any push without an explicit source) sort ahead of Random
	if direction == OutboundPush && source == SourceRandom {
		src = 1
	}

	class := dir
	class = class*reasonCount + r
	class = class*attemptTiers + a
	class = class*sourceTiers + src

	return PriorityClass(class)
}

// enumerateClasses returns every index in the dense class space (a superset
// of what Classify produces; see classCount), in ascending
// (highest-to-lowest priority) order, precomputed once at startup so the
// scheduler can allocate one queue per class up front.
func enumerateClasses() []PriorityClass {
	classes := make([]PriorityClass, 0, classCount)
	for dir := 0; dir < 2; dir++ {
		for r := 0; r < reasonCount; r++ {
			for a := 0; a < attemptTiers; a++ {
				for src := 0; src < sourceTiers; src++ {
					class := dir
					class = class*reasonCount + r
					class = class*attemptTiers + a
					class = class*sourceTiers + src
					classes = append(classes, PriorityClass(class))
				}
			}
		}
	}
	return classes
}
