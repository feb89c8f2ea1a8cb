package main

import "github.com/netly/taskctl/internal/cli"

func main() {
	cli.Execute()
}
