package main

import "github.com/vibast-solutions/ms-go-refunds/cmd"

func main() {
	cmd.Execute()
}
