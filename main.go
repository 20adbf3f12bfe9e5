package main

import "github.com/rebound-ai/rebound/cmd"

func main() {
	cmd.Execute()
}
