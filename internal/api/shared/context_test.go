package shared

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

var traceIDPattern = regexp.MustCompile(`^[0-9a-f]{32}$`)

func TestSetAndGetTraceID(t *testing.T) {
	ctx := SetTraceID(context.Background())
	id := GetTraceID(ctx)
	assert.Regexp(t, traceIDPattern, id)
	assert.NotEqual(t, id, GetTraceID(SetTraceID(context.Background())))

	assert.Empty(t, GetTraceID(context.Background()))
	assert.Empty(t, GetTraceID(context.WithValue(context.Background(), TraceIDKey, 42)))
}

func TestSubject(t *testing.T) {
	_, ok := GetSubject(context.Background())
	assert.False(t, ok)

	_, ok = GetSubject(SetSubject(context.Background(), ""))
	assert.False(t, ok)

	subject, ok := GetSubject(SetSubject(context.Background(), "ort-scanner"))
	assert.True(t, ok)
	assert.Equal(t, "ort-scanner", subject)
}

func TestGenerateTraceIDFallback(t *testing.T) {
	orig := randRead
	t.Cleanup(func() { randRead = orig })

	randRead = func(b []byte) (int, error) { return 0, errors.New("entropy exhausted") }
	first := generateTraceID()
	second := generateTraceID()
	assert.Regexp(t, traceIDPattern, first)
	assert.NotEqual(t, first, second)

	randRead = func(b []byte) (int, error) { return len(b) / 2, nil }
	assert.Regexp(t, traceIDPattern, generateTraceID())
}
