package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/project-tktt/job-scout/internal/domain"
)

type stubSink struct {
	errs     map[string]error
	inserted []string
}

func (s *stubSink) Insert(_ context.Context, rec domain.Record) error {
	if err := s.errs[rec.URL]; err != nil {
		return err
	}
	s.inserted = append(s.inserted, rec.URL)
	return nil
}

func rec(url string) domain.Record {
	return domain.Record{Title: "role", URL: url, Status: domain.StatusPending}
}

func TestStoreResults(t *testing.T) {
	sink := &stubSink{}
	stored, skipped, err := StoreResults(context.Background(), sink,
		[]domain.Record{rec("https://a/1"), rec("https://a/2")})
	require.NoError(t, err)
	assert.Equal(t, 2, stored)
	assert.Zero(t, skipped)
	assert.Equal(t, []string{"https://a/1", "https://a/2"}, sink.inserted)
}

func TestStoreResultsSkipsDuplicates(t *testing.T) {
	sink := &stubSink{errs: map[string]error{
		"https://a/2": ErrDuplicate,
	}}
	stored, skipped, err := StoreResults(context.Background(), sink,
		[]domain.Record{rec("https://a/1"), rec("https://a/2"), rec("https://a/3")})
	require.NoError(t, err)
	assert.Equal(t, 2, stored)
	assert.Equal(t, 1, skipped)
	assert.Equal(t, []string{"https://a/1", "https://a/3"}, sink.inserted)
}

func TestStoreResultsStopsOnOtherErrors(t *testing.T) {
	sink := &stubSink{errs: map[string]error{
		"https://a/2": errors.New("connection reset"),
	}}
	stored, skipped, err := StoreResults(context.Background(), sink,
		[]domain.Record{rec("https://a/1"), rec("https://a/2"), rec("https://a/3")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "https://a/2")
	assert.Equal(t, 1, stored)
	assert.Zero(t, skipped)
	// The record after the failure is never attempted.
	assert.NotContains(t, sink.inserted, "https://a/3")
}
