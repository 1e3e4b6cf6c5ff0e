package main

import (
	"github.com/codachain/node/app/tooling/cli/commands"
)

func main() {
	commands.Execute()
}
