package main

import "github.com/aweris/assetcache/cmd/assetcache/cmd"

func main() {
	cmd.Execute()
}
