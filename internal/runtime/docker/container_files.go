package docker

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/Salako07/WKL/internal/domain/execution"
)

// maxArtifactBytes bounds the build artifact copied out of a compile sandbox.
const maxArtifactBytes = 64 << 20

// fileSpec is a file placed into the sandbox workdir.
type fileSpec struct {
	Name string
	Mode int64
	Data []byte
}

// fileOwner is the numeric owner given to injected files so the sandbox
// user can read them.
type fileOwner struct {
	uid, gid int
}

// parseOwner reads a "uid[:gid]" container user. Named users and an empty
// string leave files owned by root.
func parseOwner(user string) fileOwner {
	uidPart, gidPart, hasGID := strings.Cut(user, ":")
	uid, err := strconv.Atoi(uidPart)
	if err != nil || uid < 0 {
		return fileOwner{}
	}
	owner := fileOwner{uid: uid, gid: uid}
	if hasGID {
		gid, err := strconv.Atoi(gidPart)
		if err != nil || gid < 0 {
			return fileOwner{uid: uid}
		}
		owner.gid = gid
	}
	return owner
}

// injectFiles copies files into the sandbox workdir before it starts.
func (c *containerEngine) injectFiles(ctx context.Context, containerID string, env execution.Environment, files []fileSpec) error {
	if len(files) == 0 {
		return nil
	}

	reader, err := archiveFiles(files, parseOwner(env.User))
	if err != nil {
		return err
	}

	return c.cli.CopyToContainer(ctx, containerID, env.Workdir, reader, types.CopyToContainerOptions{AllowOverwriteDirWithFile: true})
}

func archiveFiles(files []fileSpec, owner fileOwner) (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	now := time.Now()
	for _, file := range files {
		if file.Name == "" || strings.Contains(file.Name, "..") {
			return nil, fmt.Errorf("invalid sandbox file name %q", file.Name)
		}
		mode := file.Mode
		if mode == 0 {
			mode = 0o644
		}

		header := &tar.Header{
			Name:    file.Name,
			Mode:    mode,
			Size:    int64(len(file.Data)),
			Uid:     owner.uid,
			Gid:     owner.gid,
			ModTime: now,
		}
		if err := tw.WriteHeader(header); err != nil {
			return nil, fmt.Errorf("write tar header: %w", err)
		}
		if _, err := tw.Write(file.Data); err != nil {
			return nil, fmt.Errorf("write tar contents: %w", err)
		}
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("close tar writer: %w", err)
	}
	return bytes.NewReader(buf.Bytes()), nil
}

// extractArtifact returns the build artifact at artifactPath. Docker wraps
// it in a tar stream; the first regular file is the artifact.
func (c *containerEngine) extractArtifact(ctx context.Context, containerID, artifactPath string) ([]byte, error) {
	reader, stat, err := c.cli.CopyFromContainer(ctx, containerID, artifactPath)
	if err != nil {
		return nil, fmt.Errorf("copy from container: %w", err)
	}
	defer reader.Close()

	if stat.Size > maxArtifactBytes {
		return nil, fmt.Errorf("artifact %s is %d bytes, limit is %d", artifactPath, stat.Size, maxArtifactBytes)
	}

	tr := tar.NewReader(reader)
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read tar: %w", err)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}
		if header.Size > maxArtifactBytes {
			return nil, fmt.Errorf("artifact %s is %d bytes, limit is %d", artifactPath, header.Size, maxArtifactBytes)
		}

		data, err := io.ReadAll(io.LimitReader(tr, maxArtifactBytes))
		if err != nil {
			return nil, fmt.Errorf("read artifact: %w", err)
		}
		return data, nil
	}

	return nil, fmt.Errorf("artifact %s not found in container archive", artifactPath)
}

func (c *containerEngine) waitForExit(ctx context.Context, containerID string) (*container.WaitResponse, error) {
	statusCh, errCh := c.cli.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	select {
	case status := <-statusCh:
		if status.Error != nil {
			return nil, fmt.Errorf("container error: %s", status.Error.Message)
		}
		return &status, nil
	case err := <-errCh:
		return nil, fmt.Errorf("wait for container: %w", err)
	case <-ctx.Done():
		return nil, fmt.Errorf("wait for container: %w", ctx.Err())
	}
}

// streamLogs follows the container output until it stops, demultiplexing
// into the supplied writers.
func (c *containerEngine) streamLogs(ctx context.Context, containerID string, stdout, stderr io.Writer) error {
	logs, err := c.cli.ContainerLogs(ctx, containerID, container.LogsOptions{ShowStdout: true, ShowStderr: true, Follow: true})
	if err != nil {
		return err
	}
	defer logs.Close()

	if _, err := stdcopy.StdCopy(stdout, stderr, logs); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
