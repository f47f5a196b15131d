package main

import "github.com/notely/notely/internal/client/cli"

func main() {
	cli.Execute()
}
