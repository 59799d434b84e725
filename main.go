package main

import "github.com/fakeyudi/storyline/cmd"

func main() {
	cmd.Execute()
}
