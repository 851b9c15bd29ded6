package app

import (
	"github.com/vk/markovbuild/internal/registry"
	"github.com/vk/markovbuild/modules/copy"
	"github.com/vk/markovbuild/modules/exec"
	"github.com/vk/markovbuild/modules/java_exec"
	"github.com/vk/markovbuild/modules/javac"
)

// coreModules is the definitive list of all runner modules that are
// compiled into the markovbuild binary.
var coreModules = []registry.Module{
	&exec.Module{},
	&copy.Module{},
	&javac.Module{},
	&java_exec.Module{},
}
