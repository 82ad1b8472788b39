package main

import "convodb/cmd/convoctl/cmd"

func main() {
	cmd.Execute()
}
