package main

import "voiceagent/internal/cli"

func main() {
	cli.Execute()
}
