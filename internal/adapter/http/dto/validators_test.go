package dto

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// --- SanitizeStruct tests ---

func TestSanitizeStruct_TrimsWhitespace(t *testing.T) {
	req := TransferRequest{
		RecipientID: "  bob  ",
		Amount:      1500,
	}
	SanitizeStruct(&req)

	assert.Equal(t, "bob", req.RecipientID)
}

func TestSanitizeStruct_EscapesHTML(t *testing.T) {
	desc := "dinner <script>alert('x')</script> downtown"
	req := CreateSplitRequest{
		Description: &desc,
		Shares:      []SplitShareRequest{{UserID: "bob", AmountOwed: 1000}},
	}
	SanitizeStruct(&req)

	assert.Contains(t, *req.Description, "&lt;script&gt;")
	assert.NotContains(t, *req.Description, "<script>")
}

func TestSanitizeStruct_HandlesPointerString(t *testing.T) {
	payer := "  bob  "
	req := CreateRequestRequest{
		PayerID: &payer,
		Amount:  2000,
	}
	SanitizeStruct(&req)

	assert.Equal(t, "bob", *req.PayerID)
}

func TestSanitizeStruct_NilPointerIsNoOp(t *testing.T) {
	req := CreateRequestRequest{Amount: 2000}
	SanitizeStruct(&req)
	assert.Nil(t, req.PayerID)
}

func TestSanitizeStruct_NonPointerIsNoOp(t *testing.T) {
	s := "hello"
	SanitizeStruct(s) // should not panic
}

// --- Custom Validator tests ---

func TestSafeID_Valid(t *testing.T) {
	cases := []string{
		"user-001",
		"USER_002",
		"a.b.c",
		"simple123",
		"alice@example.com",
	}
	for _, tc := range cases {
		assert.True(t, safeStringRe.MatchString(tc), "expected valid: %s", tc)
	}
}

func TestSafeID_Invalid(t *testing.T) {
	cases := []string{
		"user 001",    // space
		"user<001>",   // angle brackets
		"user;DROP",   // semicolon
		"",            // empty
		"hello world", // space
		"user\n001",   // newline
	}
	for _, tc := range cases {
		assert.False(t, safeStringRe.MatchString(tc), "expected invalid: %s", tc)
	}
}
