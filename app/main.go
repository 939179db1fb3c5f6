package main

import "github.com/dynavault/dynavault/app/cmd"

func main() {
	cmd.Execute()
}
