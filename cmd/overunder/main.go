package main

import "github.com/mchmarny/overunder/pkg/cli"

func main() {
	cli.Execute()
}
