package main

import "github.com/aristath/lifecycle/cmd/lifecycle/commands"

func main() {
	commands.Execute()
}
