package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// maxOutput bounds how much container output is returned to the model.
const maxOutput = 16 << 10

const nodeImage = "node:22-alpine"

// DockerEngine runs code in a one-shot container. Containers get no
// network, memory/cpu/pids caps, a read-only root and an unprivileged
// user; the code arrives on stdin so nothing is written to disk.
type DockerEngine struct {
	image   string
	timeout time.Duration
}

func (e *DockerEngine) Name() string { return "docker" }

func (e *DockerEngine) Run(ctx context.Context, language, code string) (string, error) {
	image, interpreter, err := e.runtimeFor(language)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	args := []string{
		"run", "--rm", "-i",
		"--network=none",
		"--memory=128m",
		"--cpus=0.5",
		"--pids-limit=64",
		"--read-only",
		"--user", "nobody",
		image,
	}
	args = append(args, interpreter...)

	start := time.Now()
	cmd := exec.CommandContext(ctx, "docker", args...)
	cmd.Stdin = strings.NewReader(code)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	output := stdout.String()
	if stderr.Len() > 0 {
		if output != "" {
			output += "\n"
		}
		output += stderr.String()
	}
	if len(output) > maxOutput {
		output = output[:maxOutput] + "\n... output truncated"
	}

	log.Debug().
		Str("language", language).
		Str("image", image).
		Dur("duration", time.Since(start)).
		Err(runErr).
		Msg("Sandbox run finished")

	if ctx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("execution timed out after %s", e.timeout)
	}
	if runErr != nil {
		// A nonzero exit with output is still a result: the model
		// should see the traceback, not a connector failure.
		if output != "" {
			return output, nil
		}
		return "", fmt.Errorf("sandbox run failed: %w", runErr)
	}

	return output, nil
}

func (e *DockerEngine) runtimeFor(language string) (image string, interpreter []string, err error) {
	switch strings.ToLower(language) {
	case "python", "py", "":
		return e.image, []string{"python3", "-"}, nil
	case "javascript", "js", "node":
		return nodeImage, []string{"node", "-"}, nil
	default:
		return "", nil, fmt.Errorf("unsupported language %q (supported: python, javascript)", language)
	}
}
