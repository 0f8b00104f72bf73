package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet(t *testing.T) {
	info := Get()
	assert.Equal(t, Version, info.Version)
	assert.Equal(t, runtime.Version(), info.GoVersion)
}

func TestInfoString(t *testing.T) {
	info := Info{Version: "v1.2.0", Commit: "abc123", BuildTime: "2026-01-01T00:00:00Z", GoVersion: "go1.24.0"}
	assert.Equal(t, "middleman v1.2.0 (commit abc123, built 2026-01-01T00:00:00Z, go1.24.0)", info.String())
}
