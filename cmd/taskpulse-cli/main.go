package main

import "github.com/taskpulse/taskpulse/cmd/taskpulse-cli/cmd"

func main() {
	cmd.Execute()
}
