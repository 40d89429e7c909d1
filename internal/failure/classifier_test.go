package failure

import (
	"errors"
	"testing"

	"github.com/vietddude/docforge/internal/core/domain"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		message   string
		wantCode  domain.ErrorCode
		wantType  domain.ErrorType
		wantSev   domain.Severity
		wantRetry bool
	}{
		{
			name:     "out of memory",
			message:  "runtime: out of memory allocating buffer",
			wantCode: domain.CodeMemoryExhaustion,
			wantType: domain.ErrorTypeSystem,
			wantSev:  domain.SeverityCritical,
		},
		{
			name:     "heap overflow",
			message:  "heap overflow in tokenizer",
			wantCode: domain.CodeMemoryExhaustion,
			wantType: domain.ErrorTypeSystem,
			wantSev:  domain.SeverityCritical,
		},
		{
			name:     "corrupt file",
			message:  "Unexpected end of file at byte 51233",
			wantCode: domain.CodeFileCorruption,
			wantType: domain.ErrorTypeValidation,
			wantSev:  domain.SeverityHigh,
		},
		{
			name:      "network timeout",
			message:   "request timeout after 30s",
			wantCode:  domain.CodeNetworkTimeout,
			wantType:  domain.ErrorTypeSystem,
			wantSev:   domain.SeverityMedium,
			wantRetry: true,
		},
		{
			name:     "parser error",
			message:  "XML parse error at line 4, column 12",
			wantCode: domain.CodeParserError,
			wantType: domain.ErrorTypeParsing,
			wantSev:  domain.SeverityMedium,
		},
		{
			name:      "quota",
			message:   "API quota exceeded for project",
			wantCode:  domain.CodeQuotaExceeded,
			wantType:  domain.ErrorTypeSystem,
			wantSev:   domain.SeverityMedium,
			wantRetry: true,
		},
		{
			name:     "permission",
			message:  "open /srv/docs: permission denied",
			wantCode: domain.CodePermissionDenied,
			wantType: domain.ErrorTypeSystem,
			wantSev:  domain.SeverityHigh,
		},
		{
			name:      "unmatched message",
			message:   "something odd happened",
			wantCode:  domain.CodeUnknown,
			wantType:  domain.ErrorTypeSystem,
			wantSev:   domain.SeverityMedium,
			wantRetry: true,
		},
		{
			// "invalid xml" appears before "parse error" in the rule table,
			// so corruption wins when both substrings are present.
			name:     "first match wins",
			message:  "invalid xml: parse error at line 1",
			wantCode: domain.CodeFileCorruption,
			wantType: domain.ErrorTypeValidation,
			wantSev:  domain.SeverityHigh,
		},
		{
			name:      "matching is case-insensitive",
			message:   "CONNECTION REFUSED by upstream",
			wantCode:  domain.CodeNetworkTimeout,
			wantType:  domain.ErrorTypeSystem,
			wantSev:   domain.SeverityMedium,
			wantRetry: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := Classify(errors.New(tt.message), nil)
			if rec.Code != tt.wantCode {
				t.Errorf("Code = %s, want %s", rec.Code, tt.wantCode)
			}
			if rec.Type != tt.wantType {
				t.Errorf("Type = %s, want %s", rec.Type, tt.wantType)
			}
			if rec.Severity != tt.wantSev {
				t.Errorf("Severity = %s, want %s", rec.Severity, tt.wantSev)
			}
			if rec.IsRetriable != tt.wantRetry {
				t.Errorf("IsRetriable = %v, want %v", rec.IsRetriable, tt.wantRetry)
			}
			if rec.Message != tt.message {
				t.Errorf("Message = %q, want original text preserved", rec.Message)
			}
			if len(rec.SuggestedActions) == 0 {
				t.Error("Expected suggested actions")
			}
		})
	}
}

func TestClassify_StampsJobContext(t *testing.T) {
	job := &domain.Job{
		ID:            "job-1",
		Type:          domain.JobTypeParse,
		FileName:      "big.xml",
		FileType:      "xml",
		FileSizeBytes: 9000,
		RetryAttempt:  2,
	}

	rec := Classify(errors.New("parse error: unexpected token"), job)
	ctx := rec.Context
	if ctx.JobID != "job-1" || ctx.JobType != domain.JobTypeParse {
		t.Errorf("Job identity not stamped: %+v", ctx)
	}
	if ctx.FileName != "big.xml" || ctx.FileType != "xml" || ctx.FileSizeBytes != 9000 {
		t.Errorf("File context not stamped: %+v", ctx)
	}
	if ctx.RetryAttempt != 2 {
		t.Errorf("RetryAttempt = %d, want 2", ctx.RetryAttempt)
	}
}
