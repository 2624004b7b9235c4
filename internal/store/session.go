package store

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/datadrive/analysis-backend/internal"
)

// ContextWindow is how many recent query strings are retained for prompt
// context. Oldest entries are evicted first.
const ContextWindow = 10

// SessionStore is the single source of truth for one analysis session:
// uploaded data files, the chat transcript, the active-file selection and
// the analysis settings. All mutations go through its methods; reads return
// copies so callers never alias internal slices. Lifetime is the process
// lifetime, nothing is persisted.
type SessionStore struct {
	mu           sync.Mutex
	files        []internal.DataFile
	activeFileID string
	messages     []internal.Message
	context      []string
	config       internal.AnalysisConfig
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		files:    make([]internal.DataFile, 0, 8),
		messages: make([]internal.Message, 0, 64),
		config:   internal.DefaultConfig(),
	}
}

// AddFile appends a file to the session. The first file ever added becomes
// the active file unless a selection already exists.
func (s *SessionStore) AddFile(f internal.DataFile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files = append(s.files, f)
	if s.activeFileID == "" {
		s.activeFileID = f.ID
	}
}

// RemoveFile drops the file with the given id. Removing the active file
// clears the active selection. Unknown ids are a no-op.
func (s *SessionStore) RemoveFile(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.files[:0]
	for _, f := range s.files {
		if f.ID != id {
			out = append(out, f)
		}
	}
	s.files = out
	if s.activeFileID == id {
		s.activeFileID = ""
	}
}

// SetActiveFile sets the active selection unconditionally, without checking
// that id is registered. Callers are expected to add the file first.
func (s *SessionStore) SetActiveFile(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeFileID = id
}

// ActiveFile returns the currently selected file, or false when no selection
// exists or the selection does not resolve.
func (s *SessionStore) ActiveFile() (internal.DataFile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeFileID == "" {
		return internal.DataFile{}, false
	}
	for _, f := range s.files {
		if f.ID == s.activeFileID {
			return f, true
		}
	}
	return internal.DataFile{}, false
}

func (s *SessionStore) Files() []internal.DataFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]internal.DataFile, len(s.files))
	copy(cp, s.files)
	return cp
}

// AddMessage synthesizes id and timestamp for the partial message and
// appends it, returning the stored record.
func (s *SessionStore) AddMessage(m internal.Message) internal.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.ID = uuid.NewString()
	m.CreatedAt = time.Now()
	s.messages = append(s.messages, m)
	return m
}

// UpdateMessage merges the non-nil patch fields into the message with the
// given id. Unknown ids are a no-op.
func (s *SessionStore) UpdateMessage(id string, patch internal.MessagePatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		if s.messages[i].ID != id {
			continue
		}
		if patch.Content != nil {
			s.messages[i].Content = *patch.Content
		}
		if patch.Analysis != nil {
			s.messages[i].Analysis = patch.Analysis
		}
		if patch.Pending != nil {
			s.messages[i].Pending = *patch.Pending
		}
		if patch.ErrorText != nil {
			s.messages[i].ErrorText = *patch.ErrorText
		}
		return
	}
}

func (s *SessionStore) Messages() []internal.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]internal.Message, len(s.messages))
	copy(cp, s.messages)
	return cp
}

// ClearChat empties the transcript and the recent-context window in one
// step. Files and settings are untouched.
func (s *SessionStore) ClearChat() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = s.messages[:0]
	s.context = s.context[:0]
}

// PushContext appends a query string to the recent-context window, evicting
// the oldest entry once the window exceeds ContextWindow.
func (s *SessionStore) PushContext(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.context = append(s.context, text)
	if len(s.context) > ContextWindow {
		s.context = s.context[len(s.context)-ContextWindow:]
	}
}

func (s *SessionStore) Context() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]string, len(s.context))
	copy(cp, s.context)
	return cp
}

// SetConfig shallow-merges the patch into the analysis settings. Range
// validation is the caller's concern.
func (s *SessionStore) SetConfig(patch internal.ConfigPatch) internal.AnalysisConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	if patch.ConfidenceLevel != nil {
		s.config.ConfidenceLevel = *patch.ConfidenceLevel
	}
	if patch.ForecastHorizon != nil {
		s.config.ForecastHorizon = *patch.ForecastHorizon
	}
	if patch.IncludeSeasonality != nil {
		s.config.IncludeSeasonality = *patch.IncludeSeasonality
	}
	if patch.ChartTheme != nil {
		s.config.ChartTheme = *patch.ChartTheme
	}
	return s.config
}

func (s *SessionStore) Config() internal.AnalysisConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}
