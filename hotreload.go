package hotreload

import (
	"os"
	"strconv"

	"github.com/ZenLiuCN/hotreload/builder"
)

const (
	// ArtifactID names the isolated module and the artifact file.
	ArtifactID = builder.ArtifactID
	// EnvSignal is present in the environment of artifact builds only.
	EnvSignal = builder.EnvSignal
	// BuildTag selects the artifact form of generated reloadable functions.
	BuildTag = builder.BuildTag
)

// ArtifactBuild reports whether the current process environment carries the artifact build signal.
func ArtifactBuild() bool {
	v, ok := os.LookupEnv(EnvSignal)
	if !ok {
		return false
	}
	b, err := strconv.ParseBool(v)
	return err != nil || b
}
