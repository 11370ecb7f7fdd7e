package main

import "github.com/peakmind/coach/internal/cli"

func main() {
	cli.Execute()
}
