// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"errors"
	"strings"
	"testing"
)

func TestActionableErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  *ActionableError
		want string
	}{
		{
			name: "operation only",
			err:  &ActionableError{Operation: "load project config"},
			want: "failed to load project config",
		},
		{
			name: "operation with resource",
			err: &ActionableError{
				Operation: "load project config",
				Resource:  "./boxman.yml",
			},
			want: "failed to load project config: ./boxman.yml",
		},
		{
			name: "operation with cause",
			err: &ActionableError{
				Operation: "parse config",
				Cause:     errors.New("syntax error at line 5"),
			},
			want: "failed to parse config: syntax error at line 5",
		},
		{
			name: "full context",
			err: &ActionableError{
				Operation: "load project config",
				Resource:  "./boxman.yml",
				Cause:     errors.New("file not found"),
			},
			want: "failed to load project config: ./boxman.yml: file not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestActionableErrorUnwrapsCause(t *testing.T) {
	cause := errors.New("underlying error")
	err := &ActionableError{Operation: "define network", Cause: cause}

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}

	noCause := &ActionableError{Operation: "define network"}
	if noCause.Unwrap() != nil {
		t.Error("Unwrap() = non-nil for an error without a cause")
	}
}

func TestActionableErrorFormat(t *testing.T) {
	tests := []struct {
		name     string
		err      *ActionableError
		verbose  bool
		contains []string
		excludes []string
	}{
		{
			name: "suggestions are bulleted",
			err: &ActionableError{
				Operation:   "load project config",
				Resource:    "./boxman.yml",
				Suggestions: []string{"Create a boxman.yml", "Check file permissions"},
			},
			contains: []string{
				"failed to load project config: ./boxman.yml",
				"• Create a boxman.yml",
				"• Check file permissions",
			},
		},
		{
			name: "cause chain only in verbose mode",
			err: &ActionableError{
				Operation: "parse config",
				Cause:     errors.New("syntax error"),
			},
			contains: []string{"failed to parse config: syntax error"},
			excludes: []string{"Error chain:"},
		},
		{
			name: "verbose walks nested causes",
			err: &ActionableError{
				Operation: "start runtime",
				Cause: &ActionableError{
					Operation: "read compose file",
					Cause:     errors.New("permission denied"),
				},
			},
			verbose: true,
			contains: []string{
				"Error chain:",
				"1. failed to read compose file: permission denied",
				"2. permission denied",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.err.Format(tt.verbose)
			for _, s := range tt.contains {
				if !strings.Contains(got, s) {
					t.Errorf("Format() missing %q\ngot:\n%s", s, got)
				}
			}
			for _, s := range tt.excludes {
				if strings.Contains(got, s) {
					t.Errorf("Format() should not contain %q\ngot:\n%s", s, got)
				}
			}
		})
	}
}

func TestErrorContextBuild(t *testing.T) {
	cause := errors.New("parse error")
	err := NewErrorContext().
		WithOperation("load config").
		WithResource("/etc/boxman/config.yaml").
		WithSuggestion("Check syntax").
		WithSuggestion("Verify permissions").
		Wrap(cause).
		Build()

	if err == nil {
		t.Fatal("Build() returned nil")
	}
	if err.Operation != "load config" {
		t.Errorf("Operation = %q", err.Operation)
	}
	if err.Resource != "/etc/boxman/config.yaml" {
		t.Errorf("Resource = %q", err.Resource)
	}
	if len(err.Suggestions) != 2 {
		t.Errorf("Suggestions count = %d, want 2", len(err.Suggestions))
	}
	if !errors.Is(err, cause) {
		t.Error("Build() dropped the cause")
	}
}

func TestErrorContextBuildRequiresOperation(t *testing.T) {
	if err := NewErrorContext().WithResource("some/path").Build(); err != nil {
		t.Errorf("Build() = %v, want nil without an operation", err)
	}
	// BuildError must be an untyped nil, not a typed-nil *ActionableError.
	if err := NewErrorContext().BuildError(); err != nil {
		t.Errorf("BuildError() = %v, want nil", err)
	}
}

func TestErrorContextBuildError(t *testing.T) {
	err := NewErrorContext().WithOperation("clone domain").BuildError()
	if err == nil {
		t.Fatal("BuildError() returned nil")
	}
	var ae *ActionableError
	if !errors.As(err, &ae) {
		t.Errorf("BuildError() type = %T, want *ActionableError", err)
	}
}

func TestErrorContextReuseAcrossCauses(t *testing.T) {
	ctx := NewErrorContext().
		WithOperation("attach disk").
		WithResource("lab_vm1")

	err1 := ctx.Wrap(errors.New("error 1")).Build()
	err2 := ctx.Wrap(errors.New("error 2")).Build()

	if err1.Cause.Error() == err2.Cause.Error() {
		t.Error("reused context should carry the latest cause")
	}
	if err1.Operation != err2.Operation {
		t.Error("reused context should preserve the operation")
	}
}
