package main

import "github.com/dunamismax/shrinkit/cmd/shrinkit/commands"

func main() {
	commands.Execute()
}
