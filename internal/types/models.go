package types

import "time"

// Card is one drawable item from the deck catalog.
type Card struct {
	Name  string `json:"name"`
	Image string `json:"image"`
}

// LogEntry is one row of the append-only reading log. Entries are written
// once, after the session has finished, and never updated.
type LogEntry struct {
	SessionID SessionID `json:"session_id"`
	UserID    UserID    `json:"user_id"`
	Username  string    `json:"username,omitempty"`
	Question  string    `json:"question"`
	Cards     []string  `json:"cards"`
	At        time.Time `json:"at"`
	Success   bool      `json:"success"`
}

// UserCount is one entry of the top-users stats list.
type UserCount struct {
	Username string `json:"username"`
	Count    int64  `json:"count"`
}

// QuestionCount is one entry of the top-questions stats list.
type QuestionCount struct {
	Question string `json:"question"`
	Count    int64  `json:"count"`
}

// Stats is an aggregate over the reading log restricted to a trailing window.
type Stats struct {
	Window       time.Duration   `json:"window"`
	Total        int64           `json:"total"`
	UniqueUsers  int64           `json:"unique_users"`
	Success      int64           `json:"success"`
	Failure      int64           `json:"failure"`
	TopUsers     []UserCount     `json:"top_users"`
	TopQuestions []QuestionCount `json:"top_questions"`
}
