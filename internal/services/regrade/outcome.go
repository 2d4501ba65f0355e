package regrade

// PropagateOutcomes reduces each record's per-message labels to one terminal
// outcome: the label of the chronologically last staff message. A strictly
// later timestamp supersedes earlier responses, so an early rejection can be
// overturned by a later acceptance; equal timestamps keep the earliest-seen
// message. Records without any staff response stay undecided (nil).
// Re-running over an already-propagated map yields identical outcomes.
func PropagateOutcomes(linkMap LinkMap) {
	for _, record := range linkMap {
		record.Outcome = terminalOutcome(record.Messages)
	}
}

func terminalOutcome(messages []Message) *bool {
	var found bool
	var lastSeen Message

	for _, msg := range messages {
		if msg.Sender != SenderStaff {
			continue
		}
		if !found || msg.Timestamp.After(lastSeen.Timestamp) {
			found = true
			lastSeen = msg
		}
	}

	if !found {
		return nil
	}
	// An unlabeled staff message counts as rejected.
	accepted := lastSeen.Outcome != nil && *lastSeen.Outcome
	return boolPtr(accepted)
}
