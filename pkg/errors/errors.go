// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hookguard Contributors

package errors

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
type Code string

const (
	CodeStateLoadReadFailure   Code = "state.load.read.failure"
	CodeStateParseInvalid      Code = "state.parse.invalid"
	CodeStateTampered          Code = "state.integrity.tampered"
	CodeStateWriteFailure      Code = "state.write.failure"
	CodeStateLockTimeout       Code = "state.lock.timeout"
	CodeStateLockFailure       Code = "state.lock.failure"
	CodeStateSectionUnknown    Code = "state.section.not_found"
	CodeStateKeyUnavailable    Code = "state.key.unavailable"
	CodeStateKeyGenerateFailed Code = "state.key.generate.failure"

	CodeConfigLoadReadFailure      Code = "config.load.read.failure"
	CodeConfigParseInvalidFormat   Code = "config.parse.invalid_format"
	CodeConfigValidateInvalidValue Code = "config.validate.invalid_value"

	CodeGatePathDenied       Code = "gate.path.denied"
	CodeGateStateFileDenied  Code = "gate.statefile.denied"
	CodeGateSizeExceeded     Code = "gate.filesize.exceeded"
	CodeGateShellBypass      Code = "gate.shell.bypass"
	CodeGateBreakerTripped   Code = "gate.breaker.tripped"
	CodeGateResearchMissing  Code = "gate.research.incomplete"
	CodeGateRequirementOpen  Code = "gate.requirement.unsatisfied"
	CodeGateGamingDetected   Code = "gate.gaming.detected"
	CodeGateAttemptsExceeded Code = "gate.attempts.exceeded"
	CodeGateHalted           Code = "gate.refusal.halted"
	CodeGateInputInvalid     Code = "gate.input.invalid"

	CodeJournalAppendFailure Code = "journal.append.failure"
	CodeJournalReadFailure   Code = "journal.read.failure"

	CodeHistoryOpenFailure  Code = "history.open.failure"
	CodeHistoryQueryFailure Code = "history.query.failure"
	CodeHistoryWriteFailure Code = "history.write.failure"

	CodeHookPayloadInvalid Code = "hook.payload.invalid"
	CodeHookInternal       Code = "hook.internal.failure"

	CodeCLIInputInvalid Code = "cli.input.invalid"
	CodeCLISetupFailure Code = "cli.setup.failure"
)

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// Field creates a structured error field.
func Field(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

func FieldTool(value string) Attr {
	return Field("tool", value)
}

func FieldRule(value string) Attr {
	return Field("rule", value)
}

func FieldPath(value string) Attr {
	return Field("path", value)
}

func FieldSessionID(value string) Attr {
	return Field("session_id", value)
}

func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(code).With(flatten(fields)...).New(msg)
}

func Errorf(code Code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).With(flatten(fields)...).Wrapf(err, "%s", msg)
}

func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).Wrapf(err, format, args...)
}

// With adds structured fields to an existing error chain.
func With(err error, fields ...Attr) error {
	if err == nil {
		return nil
	}

	code := CodeOf(err)
	if code == "" {
		code = CodeHookInternal
	}

	return oops.Code(code).With(flatten(fields)...).Wrap(err)
}

func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}

	if code, ok := oopsErr.Code().(Code); ok {
		return code
	}

	if code, ok := oopsErr.Code().(string); ok {
		return Code(code)
	}

	return Code(fmt.Sprintf("%v", oopsErr.Code()))
}

func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}

	return oopsErr.Context()
}

func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

// IsLockTimeout reports whether err is the bounded-wait lock timeout. Callers
// treat this as the fail-open signal: proceed on defaults, decide allow.
func IsLockTimeout(err error) bool {
	return HasCode(err, CodeStateLockTimeout)
}

// IsTampered reports whether err marks an integrity-code mismatch on the
// persisted state record.
func IsTampered(err error) bool {
	return HasCode(err, CodeStateTampered)
}

func IsDenied(err error) bool {
	r := reason(CodeOf(err))
	return r == "denied" || r == "tripped" || r == "halted"
}

func IsInvalidInput(err error) bool {
	r := reason(CodeOf(err))
	return r == "invalid" || r == "invalid_input" || r == "invalid_value" || r == "invalid_format"
}

func IsNotFound(err error) bool {
	return reason(CodeOf(err)) == "not_found"
}

func Join(errs ...error) error {
	return oops.Code(CodeHookInternal).Wrap(stderrors.Join(errs...))
}

func flatten(fields []Attr) []any {
	pairs := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		if field.Key == "" {
			continue
		}
		pairs = append(pairs, field.Key, field.Value)
	}
	return pairs
}

func reason(code Code) string {
	if code == "" {
		return ""
	}

	raw := string(code)
	idx := strings.LastIndex(raw, ".")
	if idx == -1 || idx == len(raw)-1 {
		return raw
	}
	return raw[idx+1:]
}
