package main

import "fscli/cmd"

func main() {
	cmd.Execute()
}
