package main

import (
	"github.com/vectorplane/onboardctl/cmd/onboardctl/cmd"
)

func main() {
	cmd.Execute()
}
