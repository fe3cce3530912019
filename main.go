package main

import (
	"github.com/BrianLudlam/block-racer/cmd"
)

func main() {
	cmd.Execute()
}
