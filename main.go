package main

import (
	"github.com/chemviz/chemviz/cmd/chemviz/commands"
)

func main() {
	commands.Execute()
}
