// Package containernet implements the higher-level container-network
// orchestrator: Dockerfile/Container values (C6/C7) and the
// ContainerNetwork that composes them with procio's command runner to
// drive the docker CLI. Grounded on
// super_orchestrator/src/cli_docker/docker_container.rs and
// src/docker_network.rs.
package containernet

// DockerfileKind tags which of the three Dockerfile variants is in use.
type DockerfileKind int

const (
	DockerfileNameTag DockerfileKind = iota
	DockerfilePath
	DockerfileContents
)

// Dockerfile is the tagged variant: a pre-built name:tag reference, a
// path to a dockerfile on disk, or inline contents.
type Dockerfile struct {
	Kind     DockerfileKind
	NameTag  string
	Path     string
	Contents string
}

// FromNameTag references an already-built image by name:tag.
func FromNameTag(nameTag string) Dockerfile {
	return Dockerfile{Kind: DockerfileNameTag, NameTag: nameTag}
}

// FromPath points at a dockerfile on disk.
func FromPath(path string) Dockerfile {
	return Dockerfile{Kind: DockerfilePath, Path: path}
}

// FromContents carries inline dockerfile text, written to a temporary
// file at build time.
func FromContents(contents string) Dockerfile {
	return Dockerfile{Kind: DockerfileContents, Contents: contents}
}
