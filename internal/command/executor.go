// Package command provides a text command surface for the label engine
package command

import (
	"fmt"
	"strings"

	"github.com/thereceipt/label-engine/internal/printer"
)

// Executor executes commands
type Executor struct {
	manager *printer.Manager
}

// NewExecutor creates a new command executor
func NewExecutor(manager *printer.Manager) *Executor {
	return &Executor{manager: manager}
}

// Result represents the result of executing a command
type Result struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Error   string                 `json:"error,omitempty"`
	Code    string                 `json:"code,omitempty"`
}

func failure(err error) *Result {
	return &Result{
		Success: false,
		Error:   err.Error(),
		Code:    printer.Code(err),
	}
}

func usage(text string) *Result {
	return &Result{
		Success: false,
		Error:   "usage: " + text,
		Code:    "INVALID_ARGUMENT",
	}
}

// Execute executes a command string and returns a result
func (e *Executor) Execute(cmdStr string) *Result {
	parts := parseCommand(cmdStr)
	if len(parts) == 0 {
		return usage("<command> [args...]. Type 'help' for available commands")
	}

	command := strings.ToLower(parts[0])
	args := parts[1:]

	switch command {
	case "scan":
		return e.handleScan(args)
	case "stop":
		return e.handleStop(args)
	case "devices":
		return e.handleDevices(args)
	case "connect":
		return e.handleConnect(args)
	case "disconnect":
		return e.handleDisconnect(args)
	case "state":
		return e.handleState(args)
	case "status":
		return e.handleStatus(args)
	case "print":
		return e.handlePrint(args)
	case "cancel":
		return e.handleCancel(args)
	case "jobs":
		return e.handleJobs(args)
	case "job":
		return e.handleJob(args)
	case "known":
		return e.handleKnown(args)
	case "name":
		return e.handleName(args)
	case "help":
		return e.handleHelp(args)
	default:
		return &Result{
			Success: false,
			Error:   fmt.Sprintf("unknown command: %s. Type 'help' for available commands", command),
			Code:    "INVALID_ARGUMENT",
		}
	}
}

// parseCommand parses a command string into parts, handling quoted strings
func parseCommand(cmdStr string) []string {
	cmdStr = strings.TrimSpace(cmdStr)
	if cmdStr == "" {
		return []string{}
	}

	var parts []string
	var current strings.Builder
	inQuotes := false
	quoteChar := byte(0)

	for i := 0; i < len(cmdStr); i++ {
		char := cmdStr[i]

		if char == '"' || char == '\'' {
			if !inQuotes {
				inQuotes = true
				quoteChar = char
			} else if char == quoteChar {
				inQuotes = false
				quoteChar = 0
			} else {
				current.WriteByte(char)
			}
		} else if char == ' ' && !inQuotes {
			if current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
		} else {
			current.WriteByte(char)
		}
	}

	if current.Len() > 0 {
		parts = append(parts, current.String())
	}

	return parts
}
