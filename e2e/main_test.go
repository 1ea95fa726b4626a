//go:build e2e

package e2e

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/docker/docker/api/types/build"
	"github.com/testcontainers/testcontainers-go"
)

func TestMain(m *testing.M) {
	if err := buildImage(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build image: %v\n", err)
		os.Exit(1)
	}
	os.Exit(m.Run())
}

func buildImage() error {
	ctx := context.Background()
	rootDir, err := findRoot()
	if err != nil {
		return err
	}

	fmt.Printf("Pre-building %s image...\n", ImageName)
	req := testcontainers.ContainerRequest{
		FromDockerfile: testcontainers.FromDockerfile{
			Context:    rootDir,
			Dockerfile: "Dockerfile",
			KeepImage:  true,
			Repo:       "rpld-debug",
			Tag:        "latest",
			BuildOptionsModifier: func(buildOptions *build.ImageBuildOptions) {
				buildOptions.Target = "debug"
			},
		},
	}

	// creating the container triggers the build, only the image is kept
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          false,
	})
	if err != nil {
		return fmt.Errorf("failed to build image: %v", err)
	}
	if err := c.Terminate(ctx); err != nil {
		fmt.Printf("Warning: failed to terminate builder container: %v\n", err)
	}
	return nil
}
