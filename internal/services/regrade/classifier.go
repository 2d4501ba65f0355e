package regrade

import (
	"context"
	"fmt"
	"strings"
)

// Classification policy. These mirror the grading culture the tool was tuned
// for and should not be re-derived; see DESIGN.md.
const (
	LabelAccepted = "accepted"
	LabelRejected = "rejected"

	// HypothesisTemplate frames the zero-shot entailment question; {} is
	// replaced with a label by the classifier backend.
	HypothesisTemplate = "The request for additional credit was {}."

	// AcceptThreshold is the minimum top-label confidence for a tentative
	// accept. Below it, ambiguous responses default to rejected.
	AcceptThreshold = 0.6

	// BlankResponseText substitutes empty staff replies before
	// classification: blank responses empirically accompany acceptance.
	BlankResponseText = "accepted"
)

// LabelScore is one entry of a ranked classification result.
type LabelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Ranking is the ranked label list for one input, highest confidence first,
// scores summing to 1.
type Ranking []LabelScore

// Classifier is a zero-shot text classifier. Implementations must return
// exactly one Ranking per input text, in input order.
type Classifier interface {
	Classify(ctx context.Context, texts []string, labels []string, hypothesisTemplate string) ([]Ranking, error)
}

// staffMessageRef addresses one staff message inside a LinkMap.
type staffMessageRef struct {
	link  string
	index int
	text  string
}

// ClassifyOutcomes labels every staff message across all records in one
// batch call to clf, then applies the deterministic score/weight overrides.
// The classifier is a hard dependency here: on error no message is labeled
// and the error is returned for the caller to decide policy.
func ClassifyOutcomes(ctx context.Context, linkMap LinkMap, clf Classifier) error {
	if clf == nil {
		return fmt.Errorf("no classifier provided")
	}

	var refs []staffMessageRef
	for link, record := range linkMap {
		for idx, msg := range record.Messages {
			if msg.Sender == SenderStaff {
				refs = append(refs, staffMessageRef{link: link, index: idx, text: strings.TrimSpace(msg.Text)})
			}
		}
	}
	if len(refs) == 0 {
		return nil
	}

	texts := make([]string, len(refs))
	for i, ref := range refs {
		if ref.text == "" {
			texts[i] = BlankResponseText
		} else {
			texts[i] = ref.text
		}
	}

	rankings, err := clf.Classify(ctx, texts, []string{LabelAccepted, LabelRejected}, HypothesisTemplate)
	if err != nil {
		return fmt.Errorf("classify staff responses: %w", err)
	}
	if len(rankings) != len(texts) {
		return fmt.Errorf("classifier returned %d results for %d inputs", len(rankings), len(texts))
	}

	for i, ref := range refs {
		record := linkMap[ref.link]
		accepted := tentativeLabel(rankings[i])

		// Score overrides beat the model outright. Full credit means the
		// request must have succeeded; zero credit means it must have failed.
		if record.Weight > 0 && record.Score >= record.Weight {
			accepted = true
		} else if record.Weight > 0 && record.Score <= 0 {
			accepted = false
		}

		record.Messages[ref.index].Outcome = boolPtr(accepted)
	}

	return nil
}

// tentativeLabel converts a ranking into the conservative boolean label.
func tentativeLabel(ranking Ranking) bool {
	if len(ranking) == 0 {
		return false
	}
	top := ranking[0]
	return top.Label == LabelAccepted && top.Score >= AcceptThreshold
}
