package regrade

// ComputeStudentStats fills in NumAccepted and NumResponded on every summary
// row by joining its requests against the finalized conversation records.
// Requests whose conversation is still undecided count toward neither field.
// The computation is a pure fold over (summary, linkMap): counters are reset
// first, so recomputing from the same inputs is idempotent.
func ComputeStudentStats(summary SummaryMap, linkMap LinkMap) {
	for _, student := range summary {
		accepted, responded := 0, 0
		for _, req := range student.Requests {
			record, ok := linkMap[req.ReviewLink]
			if !ok || record.Outcome == nil {
				continue
			}
			responded++
			if *record.Outcome {
				accepted++
			}
		}
		student.NumAccepted = accepted
		student.NumResponded = responded
	}
}

// ComputeStaffStats groups every request across all students by grader name
// and applies the same responded/accepted counting rule. NumRequested counts
// all requests for the grader regardless of outcome.
func ComputeStaffStats(summary SummaryMap, linkMap LinkMap) map[string]*StaffSummary {
	stats := make(map[string]*StaffSummary)

	for _, student := range summary {
		for _, req := range student.Requests {
			staff := stats[req.Grader]
			if staff == nil {
				staff = &StaffSummary{}
				stats[req.Grader] = staff
			}
			staff.NumRequested++

			record, ok := linkMap[req.ReviewLink]
			if !ok || record.Outcome == nil {
				continue
			}
			staff.NumResponded++
			if *record.Outcome {
				staff.NumAccepted++
			}
		}
	}

	return stats
}
