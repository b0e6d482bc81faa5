// Package sandbox isolates code execution requested through the
// execute_code tool. The gateway never runs model-supplied code in its
// own process: the disabled engine rejects every request, and the
// docker engine runs code in a throwaway container with no network.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os/exec"

	"github.com/modelrelay/modelrelay/gateway/internal/config"
	"github.com/modelrelay/modelrelay/gateway/pkg/contracts"
)

// New selects the engine named in the config. Disabled is the default:
// enabling execution is an explicit operator decision.
func New(cfg config.SandboxConfig) (contracts.SandboxEngine, error) {
	switch cfg.Engine {
	case "", "disabled":
		return DisabledEngine{}, nil
	case "docker":
		if _, err := exec.LookPath("docker"); err != nil {
			return nil, fmt.Errorf("docker not found in PATH — install Docker to use the docker sandbox")
		}
		return &DockerEngine{image: cfg.Image, timeout: cfg.Timeout}, nil
	default:
		return nil, fmt.Errorf("unknown sandbox engine %q (want disabled or docker)", cfg.Engine)
	}
}

// DisabledEngine refuses all execution requests.
type DisabledEngine struct{}

func (DisabledEngine) Name() string { return "disabled" }

func (DisabledEngine) Run(_ context.Context, _, _ string) (string, error) {
	return "", errors.New("code execution is disabled on this gateway")
}
