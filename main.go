package main

import "github.com/sinain-hud/core/cmd"

func main() {
	cmd.Execute()
}
