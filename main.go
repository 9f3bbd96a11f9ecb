package main

import "github.com/ValentinKolb/scdb/cmd"

func main() {
	cmd.Execute()
}
