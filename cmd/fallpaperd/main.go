package main

import (
	"github.com/fallpaper/fallpaper/cmd/fallpaperd/commands"
)

func main() {
	commands.Execute()
}
