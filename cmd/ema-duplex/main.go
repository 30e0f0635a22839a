package main

import "github.com/koscakluka/ema-duplex/internal/cli"

func main() {
	cli.Execute()
}
