package krak

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/elsanchez/krakguard/internal/domain"
	"github.com/elsanchez/krakguard/internal/optimizer"
)

func TestClassifyStatus(t *testing.T) {
	abort := []domain.APIStatus{
		domain.APIStatusBadRequest,
		domain.APIStatusUnauthorized,
		domain.APIStatusForbidden,
		domain.APIStatusRequestLimitReached,
		domain.APIStatusUnexpectedError,
	}
	for _, s := range abort {
		assert.Equal(t, domain.OutcomeAbortBatch, ClassifyStatus(s), s.String())
	}

	skip := []domain.APIStatus{
		domain.APIStatusFileTooLarge,
		domain.APIStatusUnsupportedMediaType,
		domain.APIStatusUnprocessableEntity,
		domain.APIStatusOk,
		domain.APIStatus(418),
		domain.APIStatus(0),
	}
	for _, s := range skip {
		assert.Equal(t, domain.OutcomeSkipItem, ClassifyStatus(s), s.String())
	}
}

func TestClassifyOutcome(t *testing.T) {
	tests := []struct {
		name   string
		result *optimizer.Result
		err    error
		want   domain.Outcome
	}{
		{"success", &optimizer.Result{Success: true}, nil, domain.OutcomeApply},
		{"success false", &optimizer.Result{Success: false}, nil, domain.OutcomeSkipItem},
		{"nil result", nil, nil, domain.OutcomeSkipItem},
		{"unauthorized", nil, &optimizer.APIError{Status: domain.APIStatusUnauthorized}, domain.OutcomeAbortBatch},
		{"wrapped quota", nil, fmt.Errorf("call: %w", &optimizer.APIError{Status: domain.APIStatusRequestLimitReached}), domain.OutcomeAbortBatch},
		{"too large", nil, &optimizer.APIError{Status: domain.APIStatusFileTooLarge}, domain.OutcomeSkipItem},
		{"unknown code", nil, &optimizer.APIError{Status: domain.APIStatus(499)}, domain.OutcomeSkipItem},
		{"transport", nil, errors.New("connection refused"), domain.OutcomeAbortBatch},
		{"timeout", nil, context.DeadlineExceeded, domain.OutcomeAbortBatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyOutcome(tt.result, tt.err))
		})
	}
}

func TestErrorStatus(t *testing.T) {
	assert.Equal(t, domain.APIStatusOk, ErrorStatus(nil))
	assert.Equal(t, domain.APIStatusForbidden, ErrorStatus(&optimizer.APIError{Status: domain.APIStatusForbidden}))
	assert.Equal(t, domain.APIStatusUnexpectedError, ErrorStatus(errors.New("boom")))
}
