package main

import "github.com/kozaktomas/mouthtrack/cmd"

func main() {
	cmd.Execute()
}
