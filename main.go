package main

import "github.com/fakeyudi/respira/cmd"

func main() {
	cmd.Execute()
}
