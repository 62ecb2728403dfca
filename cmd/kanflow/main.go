package main

import "github.com/amterp/kanflow/internal/cli"

func main() {
	cli.Run()
}
