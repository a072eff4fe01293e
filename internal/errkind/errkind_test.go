package errkind

import (
	"errors"
	"fmt"
	"testing"
)

func TestWrap_Nil(t *testing.T) {
	if Wrap(Precondition, "boot", nil) != nil {
		t.Error("Wrap(nil) should return nil")
	}
}

func TestIs(t *testing.T) {
	err := Wrap(BudgetExhausted, "type2.consume", errors.New("daily budget used"))
	if !Is(err, BudgetExhausted) {
		t.Error("expected Is(err, BudgetExhausted) true")
	}
	if Is(err, ProviderExecution) {
		t.Error("expected Is(err, ProviderExecution) false")
	}
}

func TestIs_WrappedFurther(t *testing.T) {
	inner := Wrap(SubprocessTimeout, "inference.run", errors.New("killed after 60s"))
	outer := fmt.Errorf("run_with_fallback: %w", inner)
	if !Is(outer, SubprocessTimeout) {
		t.Error("expected Is to see through fmt.Errorf wrapping")
	}
}

func TestIs_NonErrkindError(t *testing.T) {
	if Is(errors.New("plain"), Unknown) {
		t.Error("plain error should not match any Kind")
	}
}

func TestError_String(t *testing.T) {
	err := Wrap(OperatorInput, "router.dispatch", errors.New("unknown command"))
	want := "OperatorInputError: router.dispatch: unknown command"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestKind_String(t *testing.T) {
	tests := []struct {
		k    Kind
		want string
	}{
		{Precondition, "PreconditionFailure"},
		{ProviderUnavailable, "ProviderUnavailable"},
		{ProviderExecution, "ProviderExecutionError"},
		{TransientIO, "TransientIOError"},
		{OperatorInput, "OperatorInputError"},
		{BudgetExhausted, "BudgetExhausted"},
		{SubprocessTimeout, "SubprocessTimeout"},
		{Unknown, "Unknown"},
	}
	for _, tt := range tests {
		if got := tt.k.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, want %q", tt.k, got, tt.want)
		}
	}
}
