package main

import "callq/cmd"

func main() {
	cmd.Run()
}
