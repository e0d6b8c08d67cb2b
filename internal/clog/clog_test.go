package clog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnableIsGlobalAndIdempotent(t *testing.T) {
	assert.False(t, Enabled())
	Enable()
	assert.True(t, Enabled())
	Enable() // calling twice must not panic or toggle off
	assert.True(t, Enabled())
}

func TestNewDoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		l := New("test", "id-1")
		l.Printf("hello %s", "world")
		l.Errorf("always logged")
	})
}
