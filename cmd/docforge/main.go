package main

import "github.com/vietddude/docforge/internal/cli"

func main() {
	cli.Execute()
}
