package domain

import "time"

type LogEntry struct {
	Host       string                 `json:"host"`
	Level      string                 `json:"level"`
	Time       time.Time              `json:"time"`
	LoggerName string                 `json:"logger_name"`
	Message    string                 `json:"message"`
	Caller     string                 `json:"caller,omitempty"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
}
