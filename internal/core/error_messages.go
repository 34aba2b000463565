package core

// error_messages.go maps technical errors to user messages with codes for
// support reference.
//
// # Import Errors (IMP001-IMP099)
//
//	IMP001 - Empty file: the statement contains no lines
//	IMP002 - Missing column: date, account or amount column not found
//	IMP003 - Line too long: a line exceeds the 1 MiB limit
//	IMP004 - Import cancelled
//
// # Snapshot Errors (SNAP001-SNAP099)
//
//	SNAP001 - Invalid snapshot: the document is empty or not valid JSON
//	SNAP002 - No backups: there is no backup to restore
//	SNAP003 - Backups disabled
//
// # Reconciliation Errors (REC001-REC099)
//
//	REC001 - Unresolved reference: an account, group or category is missing
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Commit failed: the ledger could not be saved
//	DB002 - Conflict: the ledger changed while the operation ran
//	DB003 - Connection refused
//
// # Policy Errors (POL001-POL099)
//
//	POL001 - Unsupported strategy
//
// # Upload Errors (UPL001-UPL099)
//
//	UPL001 - File too large
//	UPL002 - System busy: another import or reconciliation is running
//	UPL003 - No file
//	UPL004 - Request cancelled
//	UPL005 - Request timeout
//
// Typed errors are classified first; everything else is matched by
// case-insensitive substring, first match wins. ERR000 is the fallback.

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/bookkeeper/internal/backup"
	"github.com/JonMunkholm/bookkeeper/internal/ledger"
	"github.com/JonMunkholm/bookkeeper/internal/store"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action"`
	Code    string `json:"code"`
}

var (
	msgEmptyFile = UserMessage{
		Message: "The statement file is empty",
		Action:  "Export the statement again and upload a file with a header and data rows",
		Code:    "IMP001",
	}
	msgMissingColumn = UserMessage{
		Message: "A required column is missing from the statement",
		Action:  "Make sure the file has date, account and amount columns",
		Code:    "IMP002",
	}
	msgLineTooLong = UserMessage{
		Message: "The statement contains a line that is too long",
		Action:  "Check that the file is a CSV export and not a binary file",
		Code:    "IMP003",
	}
	msgImportCancelled = UserMessage{
		Message: "The import was cancelled",
		Action:  "Nothing was saved. Start the import again when ready",
		Code:    "IMP004",
	}
	msgInvalidSnapshot = UserMessage{
		Message: "The snapshot document could not be read",
		Action:  "Upload a file produced by the snapshot export",
		Code:    "SNAP001",
	}
	msgNoBackups = UserMessage{
		Message: "There is no backup to restore",
		Action:  "Enable backups or restore from an exported snapshot file",
		Code:    "SNAP002",
	}
	msgBackupsDisabled = UserMessage{
		Message: "Backups are not configured",
		Action:  "Set BACKUP_ENABLED and BACKUP_DIR or BACKUP_GCS_BUCKET",
		Code:    "SNAP003",
	}
	msgUnresolved = UserMessage{
		Message: "The snapshot references an account, group or category that does not exist",
		Action:  "Use the merge strategy to skip incomplete entries, or fix the snapshot",
		Code:    "REC001",
	}
	msgCommitFailed = UserMessage{
		Message: "The ledger could not be saved",
		Action:  "Nothing was changed. Please try again",
		Code:    "DB001",
	}
	msgConflict = UserMessage{
		Message: "The ledger was changed by another operation",
		Action:  "Please try again",
		Code:    "DB002",
	}
	msgPolicy = UserMessage{
		Message: "The reconciliation strategy is not supported",
		Action:  "Use replace, merge, preserve-local or ask-user",
		Code:    "POL001",
	}
	msgBusy = UserMessage{
		Message: "Another import or reconciliation is in progress",
		Action:  "Please wait a moment and try again",
		Code:    "UPL002",
	}
	msgCancelled = UserMessage{
		Message: "Request was cancelled",
		Action:  "Please try again",
		Code:    "UPL004",
	}
	msgTimeout = UserMessage{
		Message: "Request timed out",
		Action:  "Try a smaller file or try again later",
		Code:    "UPL005",
	}
)

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns is consulted after the typed checks in MapError. More
// specific patterns come first.
var errorPatterns = []errorPattern{
	{pattern: "file is empty", msg: msgEmptyFile},
	{pattern: "missing required column", msg: msgMissingColumn},
	{pattern: "line too long", msg: msgLineTooLong},
	{pattern: "import cancelled", msg: msgImportCancelled},
	{pattern: "snapshot document", msg: msgInvalidSnapshot},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB003",
		},
	},
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds maximum size limit",
			Action:  "Split the statement into smaller exports",
			Code:    "UPL001",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was provided",
			Action:  "Select a statement or snapshot file to upload",
			Code:    "UPL003",
		},
	},
	{pattern: "context canceled", msg: msgCancelled},
	{pattern: "context deadline exceeded", msg: msgTimeout},
}

// defaultMessage is returned when no pattern matches.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error into a user-friendly message.
// Returns an empty UserMessage for a nil error.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	switch {
	case errors.Is(err, ErrBusy):
		return msgBusy
	case errors.Is(err, backup.ErrNoBackups):
		return msgNoBackups
	case errors.Is(err, ErrBackupsDisabled):
		return msgBackupsDisabled
	case ledger.IsPolicy(err):
		return msgPolicy
	case ledger.IsReference(err):
		return msgUnresolved
	case errors.Is(err, store.ErrConflict):
		return msgConflict
	case errors.Is(err, context.DeadlineExceeded):
		return msgTimeout
	case ledger.IsPersistence(err):
		return msgCommitFailed
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}
	return defaultMessage
}

// FormatUserError formats err as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
