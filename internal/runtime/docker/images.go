package docker

import (
	"context"
	"fmt"
	"io"
	"sync"

	typesimage "github.com/docker/docker/api/types/image"
	"github.com/docker/docker/errdefs"
)

type imagePull struct {
	once sync.Once
	err  error
}

// imageCache makes sure every image is present locally, pulling each one at
// most once per successful attempt.
type imageCache struct {
	cli dockerClient

	mu    sync.Mutex
	pulls map[string]*imagePull
}

func newImageCache(cli dockerClient) *imageCache {
	return &imageCache{cli: cli, pulls: make(map[string]*imagePull)}
}

func (c *imageCache) ensure(ctx context.Context, ref string) error {
	c.mu.Lock()
	pull, ok := c.pulls[ref]
	if !ok {
		pull = &imagePull{}
		c.pulls[ref] = pull
	}
	c.mu.Unlock()

	pull.once.Do(func() {
		pull.err = c.fetch(ctx, ref)
	})

	if pull.err != nil {
		c.mu.Lock()
		if c.pulls[ref] == pull {
			delete(c.pulls, ref)
		}
		c.mu.Unlock()
	}
	return pull.err
}

func (c *imageCache) fetch(ctx context.Context, ref string) error {
	if _, _, err := c.cli.ImageInspectWithRaw(ctx, ref); err == nil {
		return nil
	} else if !errdefs.IsNotFound(err) {
		return fmt.Errorf("inspect image %s: %w", ref, err)
	}

	reader, err := c.cli.ImagePull(ctx, ref, typesimage.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", ref, err)
	}
	defer reader.Close()

	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("consume pull output for %s: %w", ref, err)
	}
	return nil
}
