package subject

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/moby/moby/api/pkg/stdcopy"
	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/client"
)

// DockerOpts configures the long-lived subject container.
type DockerOpts struct {
	Image       string
	Name        string
	OpenSSLPath string
	CPULimit    float64
	MemoryLimit int64
}

// DockerEnv hosts the subject inside one Docker container kept alive for
// the duration of a run. Commands are issued with exec so repeated
// invocations skip container startup cost entirely.
type DockerEnv struct {
	cli         *client.Client
	containerID string
	openssl     string
}

// killGrace is how long a timed-out subject gets between TERM and KILL.
const killGrace = 5 * time.Second

// Acquire creates and starts the subject container. The container runs an
// idle init process; all subject commands are exec'd into it. Callers own
// the environment and must Release it.
func Acquire(ctx context.Context, opts *DockerOpts) (*DockerEnv, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}

	initTrue := true
	createResp, err := cli.ContainerCreate(ctx, client.ContainerCreateOptions{
		Config: &container.Config{
			Image:  opts.Image,
			Cmd:    []string{"sleep", "infinity"},
			Labels: map[string]string{"pqbench": "true"},
		},
		HostConfig: dockerHostConfig(opts, &initTrue),
		Name:       opts.Name,
	})
	if err != nil {
		cli.Close()
		return nil, fmt.Errorf("creating subject container: %w", err)
	}
	if _, err := cli.ContainerStart(ctx, createResp.ID, client.ContainerStartOptions{}); err != nil {
		cli.ContainerRemove(context.Background(), createResp.ID, client.ContainerRemoveOptions{Force: true})
		cli.Close()
		return nil, fmt.Errorf("starting subject container: %w", err)
	}

	openssl := opts.OpenSSLPath
	if openssl == "" {
		openssl = "openssl"
	}
	return &DockerEnv{cli: cli, containerID: createResp.ID, openssl: openssl}, nil
}

func dockerHostConfig(opts *DockerOpts, initTrue *bool) *container.HostConfig {
	hostCfg := &container.HostConfig{Init: initTrue}
	if opts.CPULimit > 0 {
		hostCfg.NanoCPUs = int64(opts.CPULimit * 1e9)
	}
	if opts.MemoryLimit > 0 {
		hostCfg.Memory = opts.MemoryLimit
	}
	return hostCfg
}

// OpenSSL returns the subject binary path inside the container.
func (e *DockerEnv) OpenSSL() string {
	return e.openssl
}

// Version reports the daemon version, recorded as run provenance.
func (e *DockerEnv) Version(ctx context.Context) (string, error) {
	v, err := e.cli.ServerVersion(ctx, client.ServerVersionOptions{})
	if err != nil {
		return "", fmt.Errorf("querying docker version: %w", err)
	}
	return v.Version, nil
}

// Invoke execs argv inside the subject container. With a timeout the
// command is supervised: the subject is forcibly terminated once the
// budget expires and the attempt comes back with TimedOut set and a
// failing exit status. Terminating an already-exited subject is a no-op.
func (e *DockerEnv) Invoke(ctx context.Context, argv []string, timeout time.Duration) (*Attempt, error) {
	cmd := argv
	if timeout > 0 {
		// timeout(1) is the in-container watchdog: TERM at the budget,
		// KILL after the grace period. Exit 124 marks expiry.
		secs := strconv.FormatFloat(timeout.Seconds(), 'f', -1, 64)
		cmd = append([]string{"timeout", "-k", strconv.Itoa(int(killGrace.Seconds())), secs}, argv...)
	}

	execResp, err := e.cli.ExecCreate(ctx, e.containerID, client.ExecCreateOptions{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return nil, fmt.Errorf("creating exec in subject container: %w", err)
	}

	attach, err := e.cli.ExecAttach(ctx, execResp.ID, client.ExecAttachOptions{})
	if err != nil {
		return nil, fmt.Errorf("attaching to subject exec: %w", err)
	}
	defer attach.Close()

	started := time.Now()

	var stdout, stderr bytes.Buffer
	copyDone := make(chan error, 1)
	go func() {
		_, err := stdcopy.StdCopy(&stdout, &stderr, attach.Reader)
		copyDone <- err
	}()

	// Harness-side backstop on top of the in-container watchdog, so a
	// stuck exec can never block the run.
	backstop := time.Duration(1<<63 - 1)
	if timeout > 0 {
		backstop = timeout + killGrace + 5*time.Second
	}
	timedOut, err := awaitCopy(ctx, copyDone, backstop, func() { attach.Close() })
	if err != nil {
		return nil, err
	}
	ended := time.Now()

	exitCode := 124
	if !timedOut {
		inspect, err := e.cli.ExecInspect(ctx, execResp.ID, client.ExecInspectOptions{})
		if err != nil {
			return nil, fmt.Errorf("inspecting subject exec: %w", err)
		}
		exitCode = inspect.ExitCode
		if timeout > 0 && (exitCode == 124 || exitCode == 137) {
			timedOut = true
		}
	}

	return &Attempt{
		StartedAt: started,
		EndedAt:   ended,
		ExitCode:  exitCode,
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		TimedOut:  timedOut,
	}, nil
}

// awaitCopy waits for the output copier goroutine to finish. When the
// backstop expires or the context is canceled first, the stream is
// closed to unblock the copier and its completion is still awaited
// before returning, so the output buffers are never read while the
// copier may still be writing them.
func awaitCopy(ctx context.Context, copyDone <-chan error, backstop time.Duration, closeStream func()) (timedOut bool, err error) {
	select {
	case err := <-copyDone:
		if err != nil {
			return false, fmt.Errorf("reading subject output: %w", err)
		}
		return false, nil
	case <-time.After(backstop):
		closeStream()
		<-copyDone
		return true, nil
	case <-ctx.Done():
		closeStream()
		<-copyDone
		return false, fmt.Errorf("subject invocation canceled: %w", ctx.Err())
	}
}

// Supports checks whether the subject build knows the given signature
// algorithm, by searching the subject's own algorithm listing. The check
// is a capability probe, not a measurement; its output is never recorded.
func (e *DockerEnv) Supports(ctx context.Context, algorithm string) (bool, error) {
	att, err := e.Invoke(ctx, []string{e.openssl, "list", "-signature-algorithms"}, 30*time.Second)
	if err != nil {
		return false, err
	}
	if !att.OK() {
		return false, nil
	}
	listing := strings.ToLower(att.Stdout)
	return strings.Contains(listing, strings.ToLower(algorithm)), nil
}

// Release removes the subject container. Safe to call after a failed
// acquire path has already removed it.
func (e *DockerEnv) Release(ctx context.Context) error {
	_, err := e.cli.ContainerRemove(ctx, e.containerID, client.ContainerRemoveOptions{Force: true})
	e.cli.Close()
	if err != nil {
		return fmt.Errorf("removing subject container: %w", err)
	}
	return nil
}
