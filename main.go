package main

import "github.com/navio/ally/cmd"

func main() {
	cmd.Execute()
}
