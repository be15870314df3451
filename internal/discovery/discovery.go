// Package discovery resolves dynamic enum parameters (volumes, networks,
// images) against the container runtime on the execution host.
package discovery

import (
	"context"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
)

// lister is the slice of the docker client the prober needs.
type lister interface {
	VolumeList(ctx context.Context, opts volume.ListOptions) (volume.ListResponse, error)
	NetworkList(ctx context.Context, opts network.ListOptions) ([]network.Summary, error)
	ImageList(ctx context.Context, opts image.ListOptions) ([]image.Summary, error)
	Close() error
}

func newDockerClient() (lister, error) {
	return client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
}

// cacheTTL bounds how stale a discovered list may be before a non-refresh
// probe hits the runtime again.
const cacheTTL = 30 * time.Second

type cached struct {
	values []string
	at     time.Time
}

// Docker probes the container runtime for enum values, caching per kind.
type Docker struct {
	mu        sync.Mutex
	cache     map[string]cached
	newClient func() (lister, error)
}

// NewDocker creates a runtime-backed discovery prober.
func NewDocker() *Docker {
	return &Docker{
		cache:     make(map[string]cached),
		newClient: newDockerClient,
	}
}

// Discover lists the values for an enum parameter id. A nil result with a
// nil error means the id maps to no discoverable resource; callers keep
// such fields visible and statically defined. refresh bypasses the cache.
func (d *Docker) Discover(ctx context.Context, kind string, refresh bool) ([]string, error) {
	resource := resourceFor(kind)
	if resource == "" {
		return nil, nil
	}

	d.mu.Lock()
	if !refresh {
		if c, ok := d.cache[resource]; ok && time.Since(c.at) < cacheTTL {
			d.mu.Unlock()
			return c.values, nil
		}
	}
	d.mu.Unlock()

	values, err := d.probe(ctx, resource)
	if err != nil {
		log.Printf("[Discovery] probe %s failed: %v", resource, err)
		return nil, err
	}

	d.mu.Lock()
	d.cache[resource] = cached{values: values, at: time.Now()}
	d.mu.Unlock()
	return values, nil
}

// resourceFor maps an enum parameter id onto a runtime resource. Ids are
// matched loosely so "volumes", "volume", and "data_volume" all probe
// volumes.
func resourceFor(kind string) string {
	switch {
	case strings.Contains(kind, "volume"):
		return "volumes"
	case strings.Contains(kind, "network"):
		return "networks"
	case strings.Contains(kind, "image"):
		return "images"
	}
	return ""
}

func (d *Docker) probe(ctx context.Context, resource string) ([]string, error) {
	cli, err := d.newClient()
	if err != nil {
		return nil, err
	}
	defer func() { _ = cli.Close() }()

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var values []string
	switch resource {
	case "volumes":
		resp, err := cli.VolumeList(ctx, volume.ListOptions{})
		if err != nil {
			return nil, err
		}
		for _, v := range resp.Volumes {
			values = append(values, v.Name)
		}
	case "networks":
		nets, err := cli.NetworkList(ctx, network.ListOptions{})
		if err != nil {
			return nil, err
		}
		for _, n := range nets {
			values = append(values, n.Name)
		}
	case "images":
		images, err := cli.ImageList(ctx, image.ListOptions{})
		if err != nil {
			return nil, err
		}
		for _, img := range images {
			for _, tag := range img.RepoTags {
				if tag != "<none>:<none>" {
					values = append(values, tag)
				}
			}
		}
	}

	sort.Strings(values)
	if values == nil {
		values = []string{}
	}
	return values, nil
}
