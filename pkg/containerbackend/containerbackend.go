// BSD 2-Clause License
//
// Copyright (c) 2020, Andrea Giacomo Baldan
// All rights reserved.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions are met:
//
// * Redistributions of source code must retain the above copyright notice, this
//   list of conditions and the following disclaimer.
//
// * Redistributions in binary form must reproduce the above copyright notice,
//   this list of conditions and the following disclaimer in the documentation
//   and/or other materials provided with the distribution.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
// AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
// IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE LIABLE
// FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR CONSEQUENTIAL
// DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS INTERRUPTION) HOWEVER
// CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN CONTRACT, STRICT LIABILITY,
// OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH DAMAGE.

// Package containerbackend runs a submission's argv inside an ephemeral
// Docker container instead of a bare child process, for endpoints and
// cells that opt into container isolation.
package containerbackend

import (
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	docker "github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/codepr/narwhal/pkg/logrouter"
)

// Backend runs argv vectors inside containers of a single image,
// streaming demultiplexed output through a LogRouter the same way the
// native subprocess backend does.
type Backend struct {
	client *docker.Client
	image  string
}

// New connects to the Docker daemon using the environment's usual
// DOCKER_HOST/DOCKER_CERT_PATH conventions.
func New(image string) (*Backend, error) {
	cli, err := docker.NewClientWithOpts(docker.FromEnv, docker.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("containerbackend: connecting to docker: %w", err)
	}
	return &Backend{client: cli, image: image}, nil
}

// Run pulls Backend's image, creates and starts a container
// running argv, and blocks until it exits, routing its demultiplexed
// stdout/stderr through router under cellID. Returns the container's
// exit code.
func (b *Backend) Run(ctx context.Context, cellID string, argv []string, env map[string]string, router *logrouter.LogRouter) (int, error) {
	reader, err := b.client.ImagePull(ctx, b.image, types.ImagePullOptions{})
	if err != nil {
		return -1, fmt.Errorf("containerbackend: pulling image %s: %w", b.image, err)
	}
	io.Copy(io.Discard, reader)
	reader.Close()

	envList := make([]string, 0, len(env))
	for k, v := range env {
		envList = append(envList, k+"="+v)
	}

	resp, err := b.client.ContainerCreate(ctx, &container.Config{
		Image: b.image,
		Cmd:   argv,
		Env:   envList,
		Tty:   false,
	}, nil, nil, "")
	if err != nil {
		return -1, fmt.Errorf("containerbackend: creating container: %w", err)
	}
	defer b.client.ContainerRemove(context.Background(), resp.ID, types.ContainerRemoveOptions{Force: true})

	if err := b.client.ContainerStart(ctx, resp.ID, types.ContainerStartOptions{}); err != nil {
		return -1, fmt.Errorf("containerbackend: starting container: %w", err)
	}

	logs, err := b.client.ContainerLogs(ctx, resp.ID, types.ContainerLogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		return -1, fmt.Errorf("containerbackend: attaching to logs: %w", err)
	}
	defer logs.Close()

	stdoutR, stdoutW := io.Pipe()
	stderrR, stderrW := io.Pipe()
	go func() {
		stdcopy.StdCopy(stdoutW, stderrW, logs)
		stdoutW.Close()
		stderrW.Close()
	}()
	scope := router.Capture(cellID, stdoutR, stderrR)
	defer scope.Close()

	statusCh, errCh := b.client.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)
	for {
		select {
		case err := <-errCh:
			if err != nil {
				return -1, fmt.Errorf("containerbackend: waiting for container: %w", err)
			}
		case status := <-statusCh:
			return int(status.StatusCode), nil
		}
	}
}
