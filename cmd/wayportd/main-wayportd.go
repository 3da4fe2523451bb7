// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/wayportdev/wayport/cmd/wayportd/cmd"
)

func main() {
	cmd.Execute()
}
