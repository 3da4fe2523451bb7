// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package modbackend

import (
	"testing"
)

const sampleSpiderOutput = `-----------------------------------------------------------------------------------------------------------------------------------------
  python:
-----------------------------------------------------------------------------------------------------------------------------------------
    Description:
      Specifically for use on GPU nodes, The Deep Learning software stack contains GPU capable Python packages including TensorFlow,
      Torch and cupy, a GPU capable plug and play replacement for numpy. All packages are compatible with the latest installed GPU
      hardware.

     Versions:
        python/gpu/3.10.10
        python/gpu/3.11.5
        python/3.11.4
        python/3.12.4
        python/3.13.5
     Other possible modules matches:
        spyder/python3.12  spyder/python3.13  vibrant/python3.7  wxpython

-----------------------------------------------------------------------------------------------------------------------------------------
  To find other possible module matches execute:

      $ module -r spider '.*python.*'

-----------------------------------------------------------------------------------------------------------------------------------------
  For detailed information about a specific "python" package (including how to load the modules) use the module's full name.
  Note that names that have a trailing (E) are extensions provided by other modules.
  For example:

     $ module spider python/3.13.5
-----------------------------------------------------------------------------------------------------------------------------------------`

func TestParseSpiderOutput(t *testing.T) {
	names := ParseSpiderOutput(sampleSpiderOutput, "python")
	expected := []string{
		"python",
		"python/gpu/3.10.10",
		"python/gpu/3.11.5",
		"python/3.11.4",
		"python/3.12.4",
		"python/3.13.5",
		"spyder/python3.12",
		"spyder/python3.13",
		"vibrant/python3.7",
		"wxpython",
	}
	if len(names) != len(expected) {
		t.Fatalf("parsed %d names, expected %d: %v", len(names), len(expected), names)
	}
	for i, name := range expected {
		if names[i] != name {
			t.Errorf("result %d = %q, expected %q", i, names[i], name)
		}
	}
}

func TestParseSpiderOutputDedupes(t *testing.T) {
	out := "  mpi:\n     Versions:\n        mpi/4.0\n        mpi/4.0\n"
	names := ParseSpiderOutput(out, "mpi")
	if len(names) != 2 {
		t.Errorf("expected base + one version, got %v", names)
	}
}

func TestParseSpiderOutputEmpty(t *testing.T) {
	if names := ParseSpiderOutput("", "x"); len(names) != 0 {
		t.Errorf("empty output produced %v", names)
	}
}
