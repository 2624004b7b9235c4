package analysis

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/datadrive/analysis-backend/internal"
)

// SampleRows is how many leading rows of the active file travel with each
// query. Enough for the model to see shape and types without large payloads.
const SampleRows = 5

// SystemPrompt is the fixed analyst persona sent with every completion call.
// It fixes the response-shape convention the interpreter decodes: a single
// fenced JSON object with type/chartType/title/description/data/insights.
const SystemPrompt = `You are an expert data analyst assisting a business user inside a file dashboard.
You receive a sample of a tabular data file, a classification of its columns, the user's recent questions, and analysis settings.

Answer the user's question about the data. When the answer benefits from a chart, table, forecast, statistics, or a set of insights, include exactly one fenced JSON code block describing it, using this shape:

` + "```json" + `
{
  "type": "chart | table | insight | forecast | statistics",
  "chartType": "bar | line | pie | area | scatter",
  "title": "short title",
  "description": "one-sentence description",
  "data": <payload appropriate to the type>,
  "insights": ["optional bullet insights"]
}
` + "```" + `

Rules:
- At most one JSON block per answer; plain prose around it is welcome.
- For "forecast", respect the forecast horizon and confidence level from the settings.
- If the question is casual or cannot be answered from the data, reply in plain prose with no JSON block.
- Never invent columns that are not in the provided list.`

// FileContext is everything about the data file the prompt carries.
type FileContext struct {
	Name     string
	Columns  []string
	RowCount int
	Sample   []map[string]any
	Summary  *internal.DataSummary
}

// FileContextFrom builds a FileContext from a session data file, trimming
// rows to the sample size.
func FileContextFrom(f internal.DataFile) FileContext {
	sample := f.Rows
	if len(sample) > SampleRows {
		sample = sample[:SampleRows]
	}
	return FileContext{
		Name:     f.Name,
		Columns:  f.Columns,
		RowCount: len(f.Rows),
		Sample:   sample,
		Summary:  f.Summary,
	}
}

// BuildPrompt assembles the user-side prompt for one analysis round-trip:
// file descriptor, column classification, data sample, recent queries,
// settings, then the question itself.
func BuildPrompt(query string, file FileContext, recent []string, cfg internal.AnalysisConfig) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Data file: %s (%d rows)\n", file.Name, file.RowCount)
	fmt.Fprintf(&b, "Columns: %s\n", strings.Join(file.Columns, ", "))
	if s := file.Summary; s != nil {
		fmt.Fprintf(&b, "Numeric columns: %s\n", strings.Join(s.NumericColumns, ", "))
		fmt.Fprintf(&b, "Date columns: %s\n", strings.Join(s.DateColumns, ", "))
		fmt.Fprintf(&b, "Text columns: %s\n", strings.Join(s.TextColumns, ", "))
		fmt.Fprintf(&b, "Missing values: %d, duplicate rows: %d\n", s.MissingValueCount, s.DuplicateRowCount)
	}

	if len(file.Sample) > 0 {
		b.WriteString("\nSample rows (JSON):\n")
		if sample, err := json.Marshal(file.Sample); err == nil {
			b.Write(sample)
			b.WriteString("\n")
		}
	}

	if len(recent) > 0 {
		b.WriteString("\nRecent questions in this session:\n")
		for _, q := range recent {
			fmt.Fprintf(&b, "- %s\n", q)
		}
	}

	fmt.Fprintf(&b, "\nSettings: confidence level %d%%, forecast horizon %d periods, seasonality %v\n",
		cfg.ConfidenceLevel, cfg.ForecastHorizon, cfg.IncludeSeasonality)

	fmt.Fprintf(&b, "\nQuestion: %s\n", query)
	return b.String()
}
