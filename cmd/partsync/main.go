package main

import "github.com/vietddude/partsync/internal/cli"

func main() {
	cli.Execute()
}
