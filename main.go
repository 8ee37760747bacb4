package main

import "github.com/mselser95/lending-liquidator/cmd"

func main() {
	cmd.Execute()
}
