package analysis

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/datadrive/analysis-backend/internal"
)

// reFenced matches a fenced ```json block. Models that honor the analyst
// prompt return their structured payload inside one.
var reFenced = regexp.MustCompile("(?s)```\\s*json\\s*\\n?([\\s\\S]+?)\\n?\\s*```")

// Interpretation is a normalized completion-service response: the full raw
// text plus, when one could be extracted, its structured payload.
type Interpretation struct {
	Content  string
	Analysis *internal.StructuredAnalysis
}

// Interpret turns free-form completion text into an Interpretation. The
// fenced ```json block is the primary contract; a greedy first-{ to last-}
// scan remains as a compatibility fallback for models that answer with bare
// JSON mixed into prose. Extraction is best effort: malformed or
// unrecognized payloads degrade to plain text, never to an error.
func Interpret(raw string) Interpretation {
	out := Interpretation{Content: raw}
	if a := extractAnalysis(raw); a != nil {
		out.Analysis = a
	}
	return out
}

func extractAnalysis(raw string) *internal.StructuredAnalysis {
	if m := reFenced.FindStringSubmatch(raw); len(m) > 1 {
		if a := decodeAnalysis(strings.TrimSpace(m[1])); a != nil {
			return a
		}
	}
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end <= start {
		return nil
	}
	return decodeAnalysis(raw[start : end+1])
}

// decodeAnalysis parses candidate JSON into the tagged union selected by the
// "type" field. Payloads that are not objects, fail to parse, or carry an
// unknown kind are rejected (nil) so the caller falls back to plain text.
func decodeAnalysis(candidate string) *internal.StructuredAnalysis {
	var a internal.StructuredAnalysis
	dec := json.NewDecoder(strings.NewReader(candidate))
	dec.UseNumber()
	if err := dec.Decode(&a); err != nil {
		return nil
	}
	if a.Kind == "" {
		// Legacy payloads used "kind" before the prompt settled on "type".
		var alias struct {
			Kind internal.AnalysisKind `json:"kind"`
		}
		if err := json.Unmarshal([]byte(candidate), &alias); err == nil {
			a.Kind = alias.Kind
		}
	}
	if !internal.ValidKind(a.Kind) {
		return nil
	}
	return &a
}
