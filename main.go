// Command catalog-crawler crawls grocery catalogs into keyed product tables.
package main

import "github.com/JakeFAU/grocery-catalog-crawler/cmd"

func main() {
	cmd.Execute()
}
