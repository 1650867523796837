//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

// Compiles the GLSL sources into the SPIR-V blobs the renderer loads.
func (Build) Shaders() error {
	shaders := []string{"triangle.vert", "triangle.frag"}
	for _, shader := range shaders {
		src := "shaders/" + shader
		out := src + ".spv"
		if _, err := executeCmd("glslc", withArgs(src, "-o", out), withStream()); err != nil {
			return err
		}
	}
	return nil
}

// Builds the engine binary.
func (Build) Engine() error {
	mg.Deps(Build.Shaders)
	if _, err := executeCmd("go", withArgs("build", "-o", "bin/ember", "."), withStream()); err != nil {
		return err
	}
	return nil
}

// Runs vet and the test suite.
func (Build) Check() error {
	if _, err := executeCmd("go", withArgs("vet", "./..."), withStream()); err != nil {
		return err
	}
	if _, err := executeCmd("go", withArgs("test", "./..."), withStream()); err != nil {
		return err
	}
	return nil
}
