package main

import "github.com/qrave1/LiveRoom/cmd"

func main() {
	cmd.Execute()
}
