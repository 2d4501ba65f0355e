package regrade

import (
	"testing"
)

func labeledStaffMsg(accepted bool, minutes int) Message {
	m := staffMsg("response", minutes)
	m.Outcome = boolPtr(accepted)
	return m
}

func TestPropagateOutcomes_LatestStaffMessageWins(t *testing.T) {
	// Earlier rejection superseded by a later acceptance.
	record := conversation(3, 0,
		studentMsg("please regrade", 0),
		labeledStaffMsg(false, 1),
		studentMsg("but look again", 2),
		labeledStaffMsg(true, 3),
	)
	linkMap := LinkMap{"link": record}

	PropagateOutcomes(linkMap)

	if record.Outcome == nil || !*record.Outcome {
		t.Errorf("outcome = %v, expected true (latest staff message wins)", record.Outcome)
	}
}

func TestPropagateOutcomes_LaterRejectionWinsToo(t *testing.T) {
	record := conversation(3, 0, labeledStaffMsg(true, 0), labeledStaffMsg(false, 5))
	PropagateOutcomes(LinkMap{"link": record})

	if record.Outcome == nil || *record.Outcome {
		t.Errorf("outcome = %v, expected false", record.Outcome)
	}
}

func TestPropagateOutcomes_NoStaffResponse(t *testing.T) {
	record := conversation(3, 10, studentMsg("hello?", 0))
	PropagateOutcomes(LinkMap{"link": record})

	if record.Outcome != nil {
		t.Errorf("outcome = %v, expected nil for unanswered request", record.Outcome)
	}
}

func TestPropagateOutcomes_EmptyConversation(t *testing.T) {
	record := conversation(0, 0)
	PropagateOutcomes(LinkMap{"link": record})

	if record.Outcome != nil {
		t.Errorf("outcome = %v, expected nil for empty conversation", record.Outcome)
	}
}

func TestPropagateOutcomes_TimestampTieKeepsEarliest(t *testing.T) {
	first := labeledStaffMsg(true, 1)
	second := labeledStaffMsg(false, 1)
	record := conversation(3, 0, first, second)

	PropagateOutcomes(LinkMap{"link": record})

	if record.Outcome == nil || !*record.Outcome {
		t.Errorf("outcome = %v, expected true (earliest-seen among equal timestamps)", record.Outcome)
	}
}

func TestPropagateOutcomes_UnlabeledStaffMessageCountsAsRejected(t *testing.T) {
	record := conversation(3, 0, staffMsg("unlabeled", 0))
	PropagateOutcomes(LinkMap{"link": record})

	if record.Outcome == nil || *record.Outcome {
		t.Errorf("outcome = %v, expected false", record.Outcome)
	}
}

func TestPropagateOutcomes_Idempotent(t *testing.T) {
	linkMap := LinkMap{
		"a": conversation(3, 0, labeledStaffMsg(true, 0), labeledStaffMsg(false, 2)),
		"b": conversation(3, 0, studentMsg("pending", 0)),
		"c": conversation(3, 0, labeledStaffMsg(true, 4)),
	}

	PropagateOutcomes(linkMap)

	snapshot := make(map[string]*bool, len(linkMap))
	for link, record := range linkMap {
		snapshot[link] = record.Outcome
	}

	PropagateOutcomes(linkMap)

	for link, record := range linkMap {
		before, after := snapshot[link], record.Outcome
		switch {
		case before == nil && after == nil:
		case before != nil && after != nil && *before == *after:
		default:
			t.Errorf("record %s: outcome changed across runs (%v -> %v)", link, before, after)
		}
	}
}
