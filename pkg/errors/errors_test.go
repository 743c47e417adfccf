package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized},
		{code: CodeNotFound, status: http.StatusNotFound},
		{code: CodeInternal, status: http.StatusInternalServerError, retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, retryable: true, detailsOK: true},
		{code: CodeInvalidTransition, status: http.StatusUnprocessableEntity, detailsOK: true},
		{code: CodeFinalizedOrder, status: http.StatusUnprocessableEntity, detailsOK: true},
		{code: CodeNotOwner, status: http.StatusForbidden},
		{code: CodeWindowExpired, status: http.StatusUnprocessableEntity},
		{code: CodeDuplicatePending, status: http.StatusConflict},
		{code: CodeAlreadyApproved, status: http.StatusConflict},
		{code: CodeInvalidAmount, status: http.StatusBadRequest, detailsOK: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage == "" {
			t.Fatalf("code %s missing public message", tt.code)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestWrapAndAs(t *testing.T) {
	cause := stdErrors.New("db down")
	wrapped := Wrap(CodeDependency, cause, "load order")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatal("expected wrapped error to unwrap to cause")
	}

	outer := fmt.Errorf("service: %w", wrapped)
	typed := As(outer)
	if typed == nil || typed.Code() != CodeDependency {
		t.Fatalf("expected dependency code through fmt wrapping, got %v", typed)
	}
	if !IsCode(outer, CodeDependency) {
		t.Fatal("expected IsCode to match")
	}
	if IsCode(cause, CodeDependency) {
		t.Fatal("untyped error should not match")
	}
}

func TestWithDetails(t *testing.T) {
	err := New(CodeInvalidTransition, "bad").WithDetails(map[string]string{"from": "PENDING"})
	details, ok := err.Details().(map[string]string)
	if !ok || details["from"] != "PENDING" {
		t.Fatalf("unexpected details %#v", err.Details())
	}
	if err.Error() != "INVALID_TRANSITION: bad" {
		t.Fatalf("unexpected error string %q", err.Error())
	}
}

func TestNilErrorAccessors(t *testing.T) {
	var err *Error
	if err.Code() != CodeInternal {
		t.Fatalf("nil error should report internal code")
	}
	if err.Message() != "" || err.Details() != nil || err.Unwrap() != nil {
		t.Fatal("nil error accessors should return zero values")
	}
}

func TestDumpCarriesMetadata(t *testing.T) {
	err := fmt.Errorf("outer: %w", Wrap(CodeDependency, stdErrors.New("timeout"), "smtp"))
	d := Dump(err)
	if d.Code != CodeDependency || d.HTTPStatus != http.StatusServiceUnavailable || !d.Retryable {
		t.Fatalf("unexpected dump %+v", d)
	}
	if len(d.Chain) != 3 {
		t.Fatalf("expected 3 chain entries, got %d: %v", len(d.Chain), d.Chain)
	}
	if Dump(nil).TopMessage != "" {
		t.Fatal("expected empty dump for nil")
	}
}

func TestDumpNamesIdempotencyAnchor(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "payout_invoices_org_period_key", TableName: "payout_invoices"}
	d := Dump(fmt.Errorf("insert invoice: %w", pgErr))
	if d.PGCode != "23505" || d.PGTable != "payout_invoices" {
		t.Fatalf("driver fields not extracted: %+v", d)
	}
	if d.Anchor != "payout_period" {
		t.Fatalf("expected payout_period anchor, got %q", d.Anchor)
	}

	other := Dump(&pq.Error{Code: "23503", Constraint: "orders_payout_invoice_fk"})
	if other.Anchor != "" || other.PGConstraint != "orders_payout_invoice_fk" {
		t.Fatalf("unexpected dump for fk violation %+v", other)
	}
}
