package main

import "github.com/viktsys/bolsaingest/cmd"

func main() {
	cmd.Execute()
}
