package main

import "github.com/cloakscan/cloakscan/cmd/cloakscan"

func main() { cloakscan.Execute() }
