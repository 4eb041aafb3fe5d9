package main

import (
	"github.com/robotalks/pruspi.go/pkg/cli/sh"
)

func main() {
	sh.Main()
}
