package internal

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// AnalysisKind tags the shape of a structured analysis payload.
type AnalysisKind string

const (
	KindChart      AnalysisKind = "chart"
	KindTable      AnalysisKind = "table"
	KindInsight    AnalysisKind = "insight"
	KindForecast   AnalysisKind = "forecast"
	KindStatistics AnalysisKind = "statistics"
)

// ValidKind reports whether k is one of the known analysis kinds.
func ValidKind(k AnalysisKind) bool {
	switch k {
	case KindChart, KindTable, KindInsight, KindForecast, KindStatistics:
		return true
	}
	return false
}

// StructuredAnalysis is the machine-interpretable payload an assistant
// message may carry alongside its free-text rendering. Field names follow
// the response-shape convention the analyst prompt asks the model for.
type StructuredAnalysis struct {
	Kind         AnalysisKind `json:"type"`
	ChartVariant string       `json:"chartType,omitempty"`
	Title        string       `json:"title,omitempty"`
	Description  string       `json:"description,omitempty"`
	Payload      any          `json:"data,omitempty"`
	Insights     []string     `json:"insights,omitempty"`
}

type Message struct {
	ID        string              `json:"id"`
	Role      Role                `json:"role"`
	Content   string              `json:"content"`
	CreatedAt time.Time           `json:"created_at"`
	Analysis  *StructuredAnalysis `json:"analysis,omitempty"`
	Pending   bool                `json:"pending,omitempty"`
	ErrorText string              `json:"error,omitempty"`
}

// MessagePatch carries the fields UpdateMessage may change when a pending
// message resolves. Nil fields are left untouched.
type MessagePatch struct {
	Content   *string
	Analysis  *StructuredAnalysis
	Pending   *bool
	ErrorText *string
}

// DataSummary classifies the columns of a data file and counts data-quality
// signals. The three column sets are disjoint and together cover every column.
type DataSummary struct {
	RowCount          int      `json:"row_count"`
	NumericColumns    []string `json:"numeric_columns"`
	DateColumns       []string `json:"date_columns"`
	TextColumns       []string `json:"text_columns"`
	MissingValueCount int      `json:"missing_value_count"`
	DuplicateRowCount int      `json:"duplicate_row_count"`
}

// DataFile is one uploaded tabular file held for the session. Rows use the
// column names as keys; Columns preserves upload order. Immutable after
// creation except for removal.
type DataFile struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Size       int              `json:"size"`
	Columns    []string         `json:"columns"`
	Rows       []map[string]any `json:"rows"`
	UploadedAt time.Time        `json:"uploaded_at"`
	Summary    *DataSummary     `json:"summary,omitempty"`
}

// AnalysisConfig is the per-session tuning the dashboard settings form edits.
// Ranges are constrained by the UI, not re-validated here.
type AnalysisConfig struct {
	ConfidenceLevel    int    `json:"confidence_level"`
	ForecastHorizon    int    `json:"forecast_horizon"`
	IncludeSeasonality bool   `json:"include_seasonality"`
	ChartTheme         string `json:"chart_theme"`
}

// DefaultConfig returns the analysis settings a fresh session starts with.
func DefaultConfig() AnalysisConfig {
	return AnalysisConfig{
		ConfidenceLevel:    95,
		ForecastHorizon:    12,
		IncludeSeasonality: true,
		ChartTheme:         "default",
	}
}

// --- Wire types ---

type ChatHistory struct {
	Messages []Message `json:"messages"`
}

type QueryRequest struct {
	Query string `json:"query"`
}

type QueryResponse struct {
	Reply Message `json:"reply"`
	Model string  `json:"model"`
}

// AnalysisFileData is the inline file payload of the stateless analysis
// endpoint.
type AnalysisFileData struct {
	Name    string           `json:"name"`
	Columns []string         `json:"columns"`
	Data    []map[string]any `json:"data"`
	Summary *DataSummary     `json:"summary,omitempty"`
}

type AnalysisSettings struct {
	ConfidenceLevel    *int  `json:"confidenceLevel,omitempty"`
	ForecastPeriods    *int  `json:"forecastPeriods,omitempty"`
	IncludeSeasonality *bool `json:"includeSeasonality,omitempty"`
}

type AnalysisRequest struct {
	Query    string            `json:"query"`
	FileData *AnalysisFileData `json:"fileData"`
	Context  []string          `json:"context"`
	Settings AnalysisSettings  `json:"settings"`
}

type AnalysisResponse struct {
	Response  string              `json:"response"`
	Analysis  *StructuredAnalysis `json:"analysis"`
	Timestamp string              `json:"timestamp"`
}

type UploadFileRequest struct {
	Name    string           `json:"name"`
	Columns []string         `json:"columns,omitempty"`
	Rows    []map[string]any `json:"rows,omitempty"`
	// Text carries raw CSV content as an alternative to pre-parsed rows.
	Text string `json:"text,omitempty"`
}

type UploadFileResponse struct {
	File  DataFile `json:"file"`
	Total int      `json:"total"`
}

type ConfigPatch struct {
	ConfidenceLevel    *int    `json:"confidence_level,omitempty"`
	ForecastHorizon    *int    `json:"forecast_horizon,omitempty"`
	IncludeSeasonality *bool   `json:"include_seasonality,omitempty"`
	ChartTheme         *string `json:"chart_theme,omitempty"`
}
