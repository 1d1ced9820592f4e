package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"
)

func TestWrapKeepsCauseAndCode(t *testing.T) {
	cause := stdErrors.New("disk I/O error")
	err := Wrap(CodeStorageFailure, cause, "插入任务失败")

	if !stdErrors.Is(err, cause) {
		t.Fatalf("expected wrapped cause to be reachable")
	}
	if got := CodeOf(fmt.Errorf("outer: %w", err)); got != CodeStorageFailure {
		t.Fatalf("unexpected code: %s", got)
	}
	if got := err.Detail(); got != "插入任务失败: disk I/O error" {
		t.Fatalf("unexpected detail: %q", got)
	}
	if !ShouldAlert(err) {
		t.Fatalf("storage failures should alert")
	}
	if SeverityOf(err) != SeverityCritical {
		t.Fatalf("unexpected severity: %s", SeverityOf(err))
	}
}

func TestIsComparesCodes(t *testing.T) {
	a := New(CodeNotFound, "task 1")
	b := New(CodeNotFound, "task 2")
	if !stdErrors.Is(a, b) {
		t.Fatalf("errors with the same code should match")
	}
	if stdErrors.Is(a, New(CodeInvalidArgument, "")) {
		t.Fatalf("errors with different codes should not match")
	}
}

func TestOptionsOverrideAttributes(t *testing.T) {
	err := New(CodeInvalidArgument, "", WithAlert(true), WithSeverity(SeverityWarning), WithMetadata("field", "title"))
	if err.Message() != "invalid argument" {
		t.Fatalf("expected default message, got %q", err.Message())
	}
	if !err.ShouldAlert() || err.Severity() != SeverityWarning {
		t.Fatalf("options not applied: alert=%v severity=%s", err.ShouldAlert(), err.Severity())
	}
	if err.Metadata()["field"] != "title" {
		t.Fatalf("unexpected metadata: %+v", err.Metadata())
	}
}

func TestUnknownCodeFallsBack(t *testing.T) {
	attr := AttributesOf(Code("NOPE"))
	if attr != AttributesOf(CodeUnknown) {
		t.Fatalf("expected unknown attributes, got %+v", attr)
	}
	if !ShouldAlert(stdErrors.New("plain")) {
		t.Fatalf("plain errors should alert")
	}
	if ShouldAlert(nil) {
		t.Fatalf("nil error should not alert")
	}
}
