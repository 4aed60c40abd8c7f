// Copyright © 2018 The ELPS authors

package main

import "github.com/luthersystems/e2ec/cmd"

func main() {
	cmd.Execute()
}
