package clierr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExitCodeOf(t *testing.T) {
	base := errors.New("boom")
	assert.Equal(t, 0, ExitCodeOf(nil))
	assert.Equal(t, CodeFailure, ExitCodeOf(base))
	assert.Equal(t, CodeScript, ExitCodeOf(New(CodeScript, "x")))
	assert.Equal(t, CodeLaunch, ExitCodeOf(fmt.Errorf("run: %w", Wrap(CodeLaunch, "launch", base))))
	assert.Equal(t, CodeFailure, ExitCodeOf(New(0, "zero")))
}

func TestExitError_Wraps(t *testing.T) {
	base := errors.New("boom")
	err := Wrap(CodeScript, "script failed", base)
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "script failed: boom", err.Error())
	assert.Equal(t, "boom", Wrap(CodeScript, "", base).Error())
	assert.Equal(t, "plain", Wrap(CodeScript, "plain", nil).Error())
}
