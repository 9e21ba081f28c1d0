package main

import "github.com/goplus/brewer/cmd/brewer/internal"

func main() {
	internal.Execute()
}
