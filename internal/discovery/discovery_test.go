package discovery

import (
	"context"
	"errors"
	"testing"

	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/volume"
)

type fakeLister struct {
	volumeCalls int
	fail        bool
}

func (f *fakeLister) VolumeList(context.Context, volume.ListOptions) (volume.ListResponse, error) {
	f.volumeCalls++
	if f.fail {
		return volume.ListResponse{}, errors.New("daemon unavailable")
	}
	return volume.ListResponse{Volumes: []*volume.Volume{
		{Name: "web-data"},
		{Name: "app-config"},
	}}, nil
}

func (f *fakeLister) NetworkList(context.Context, network.ListOptions) ([]network.Summary, error) {
	return []network.Summary{{Name: "bridge"}, {Name: "proxy"}}, nil
}

func (f *fakeLister) ImageList(context.Context, image.ListOptions) ([]image.Summary, error) {
	return []image.Summary{
		{RepoTags: []string{"nginx:1.27"}},
		{RepoTags: []string{"<none>:<none>"}},
	}, nil
}

func (f *fakeLister) Close() error { return nil }

func newFakeDocker(f *fakeLister) *Docker {
	d := NewDocker()
	d.newClient = func() (lister, error) { return f, nil }
	return d
}

func TestDiscoverVolumesSorted(t *testing.T) {
	d := newFakeDocker(&fakeLister{})
	values, err := d.Discover(context.Background(), "volumes", false)
	if err != nil {
		t.Fatal(err)
	}
	if len(values) != 2 || values[0] != "app-config" || values[1] != "web-data" {
		t.Fatalf("values = %v", values)
	}
}

func TestDiscoverCachesUntilRefresh(t *testing.T) {
	f := &fakeLister{}
	d := newFakeDocker(f)

	for i := 0; i < 3; i++ {
		if _, err := d.Discover(context.Background(), "volumes", false); err != nil {
			t.Fatal(err)
		}
	}
	if f.volumeCalls != 1 {
		t.Fatalf("volume calls = %d, want 1 (cached)", f.volumeCalls)
	}

	if _, err := d.Discover(context.Background(), "volumes", true); err != nil {
		t.Fatal(err)
	}
	if f.volumeCalls != 2 {
		t.Fatalf("volume calls = %d, want 2 after refresh", f.volumeCalls)
	}
}

func TestDiscoverImageFiltersUntagged(t *testing.T) {
	d := newFakeDocker(&fakeLister{})
	values, err := d.Discover(context.Background(), "base_image", false)
	if err != nil {
		t.Fatal(err)
	}
	if len(values) != 1 || values[0] != "nginx:1.27" {
		t.Fatalf("values = %v", values)
	}
}

func TestDiscoverUnknownKind(t *testing.T) {
	d := newFakeDocker(&fakeLister{})
	values, err := d.Discover(context.Background(), "hostname", false)
	if err != nil || values != nil {
		t.Fatalf("unknown kind: values = %v, err = %v, want nil/nil", values, err)
	}
}

func TestDiscoverProbeError(t *testing.T) {
	d := newFakeDocker(&fakeLister{fail: true})
	if _, err := d.Discover(context.Background(), "volumes", false); err == nil {
		t.Fatal("expected probe error")
	}
}
