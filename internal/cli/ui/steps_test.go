package ui

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStepperPlainOutput(t *testing.T) {
	var buf bytes.Buffer
	s := NewStepper(&buf, true)

	s.Phase("Importing workbook from %s", "./sheets")
	s.Detail("imported %d entities", 12)
	s.Done("submission complete")

	out := buf.String()
	assert.Contains(t, out, "→ Importing workbook from ./sheets\n")
	assert.Contains(t, out, "  imported 12 entities\n")
	assert.Contains(t, out, "✓ submission complete\n")
}

func TestStepperFailure(t *testing.T) {
	var buf bytes.Buffer
	s := NewStepper(&buf, true)

	s.Failed(errors.New("registry unreachable"))

	assert.Equal(t, "✗ registry unreachable\n", buf.String())
}
