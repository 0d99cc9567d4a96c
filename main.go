package main

import "github.com/kiesman99/julia/cmd"

func main() {
	cmd.Execute()
}
