package errors

import (
	"fmt"
	"sync"
	"time"
)

// Severity of a collected problem.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

// String returns the string representation of the severity
func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// Problem is a non-fatal issue found while loading map inputs, such as a
// boundary file that had to be skipped.
type Problem struct {
	Source    string    `json:"source"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"-"`
	Level     string    `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
}

// Error implements the error interface
func (p *Problem) Error() string {
	return fmt.Sprintf("%s: %s: %s", p.Source, p.Severity, p.Message)
}

// Collector gathers problems from a load pass. It is safe for concurrent use.
type Collector struct {
	problems []Problem
	mutex    sync.RWMutex
}

// NewCollector creates a new problem collector
func NewCollector() *Collector {
	return &Collector{problems: make([]Problem, 0)}
}

// Add records a problem for source.
func (c *Collector) Add(source string, severity Severity, err error) {
	if err == nil {
		return
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.problems = append(c.problems, Problem{
		Source:    source,
		Message:   err.Error(),
		Severity:  severity,
		Level:     severity.String(),
		Timestamp: time.Now(),
	})
}

// Problems returns a copy of the collected problems in insertion order.
func (c *Collector) Problems() []Problem {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	result := make([]Problem, len(c.problems))
	copy(result, c.problems)
	return result
}

// HasErrors reports whether any problem has error severity.
func (c *Collector) HasErrors() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	for _, p := range c.problems {
		if p.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Len returns the number of collected problems.
func (c *Collector) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.problems)
}

// Clear removes all problems.
func (c *Collector) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.problems = c.problems[:0]
}
