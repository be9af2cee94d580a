package procutil

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsPidAlive_CurrentProcess(t *testing.T) {
	assert.True(t, IsPidAlive(os.Getpid()))
}

func TestIsPidAlive_ImplausiblePid(t *testing.T) {
	assert.False(t, IsPidAlive(2000000000))
}

func TestIsPidAlive_NonPositive(t *testing.T) {
	assert.False(t, IsPidAlive(0))
	assert.False(t, IsPidAlive(-1))
}
